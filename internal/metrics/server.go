package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

// Server exposes /metrics and /healthz on a dedicated listener.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer builds the admin HTTP server for the given registry.
// Extra routes (such as the live-fix websocket) can be mounted on the
// returned router before Start is called.
func NewServer(addr string, gatherer prometheus.Gatherer, log *logger.Logger) (*Server, *chi.Mux) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.Named("metrics"),
	}
	return s, r
}

// Start begins serving; it returns once the listener stops.
func (s *Server) Start() error {
	s.log.Info("Starting admin HTTP server", logger.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

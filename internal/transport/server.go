package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/ognpipe/ognpipe/internal/envelope"
	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// Server accepts ingester connections on a Unix socket and forwards the
// decoded envelopes to the intake queue.
type Server struct {
	socketPath string
	log        *logger.Logger
	metrics    *metrics.Metrics

	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer returns a server for the given socket path. Call Start to bind.
func NewServer(socketPath string, log *logger.Logger, m *metrics.Metrics) *Server {
	return &Server{
		socketPath: socketPath,
		log:        log.Named("socket-server"),
		metrics:    m,
	}
}

// Start removes any stale socket file, binds the listener and applies
// group-writable permissions so ingest processes under the same group can
// connect.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		l.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}

	s.listener = l
	s.log.Info("Listening for ingesters", logger.String("path", s.socketPath))
	return nil
}

// AcceptLoop accepts connections until the context is cancelled or the
// listener is closed, spawning one handler goroutine per connection.
func (s *Server) AcceptLoop(ctx context.Context, intake chan<- *envelope.Envelope) error {
	if s.listener == nil {
		return errors.New("server not started")
	}

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.metrics.ConnectionsAccepted.Inc()
		s.metrics.ConnectionsActive.Inc()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				conn.Close()
				s.metrics.ConnectionsActive.Dec()
				s.metrics.ConnectionsClosed.Inc()
			}()
			s.handleConn(ctx, conn, intake)
		}()
	}
}

// handleConn reads length-prefixed envelopes off one connection. Framing
// violations are fatal for the connection; a corrupt envelope payload only
// drops that message, since the stream itself is still aligned.
func (s *Server) handleConn(ctx context.Context, conn net.Conn, intake chan<- *envelope.Envelope) {
	var prefix [4]byte
	for {
		if _, err := io.ReadFull(conn, prefix[:]); err != nil {
			if err != io.EOF {
				s.log.Warn("Connection read failed", logger.Error(err))
			}
			return
		}

		length := binary.LittleEndian.Uint32(prefix[:])
		if length > envelope.MaxMessageSize {
			s.metrics.OversizeMessages.Inc()
			s.log.Error("Message exceeds size cap, dropping connection",
				logger.Uint64("length", uint64(length)))
			return
		}
		if length == 0 {
			s.metrics.ZeroLengthMessages.Inc()
			s.log.Warn("Skipping zero-length message")
			continue
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			s.log.Warn("Truncated message, dropping connection", logger.Error(err))
			return
		}

		env, err := envelope.Unmarshal(payload)
		if err != nil {
			s.metrics.EnvelopeParseErrors.Inc()
			s.log.Warn("Discarding undecodable envelope",
				logger.Int("bytes", len(payload)),
				logger.Error(err))
			continue
		}

		s.metrics.MessagesReceived.Inc()
		s.metrics.MessageSizeBytes.Observe(float64(len(payload)))

		// Block under backpressure rather than dropping the connection.
		// The socket buffer pushes the stall back to the ingester.
		select {
		case intake <- env:
		case <-ctx.Done():
			s.metrics.QueueSendErrors.Inc()
			return
		}
	}
}

// Close shuts the listener down and waits for connection handlers.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// The ingest process connects to one upstream feed and forwards every raw
// message to the router over the unix socket. Run one process per feed so a
// misbehaving upstream cannot stall the others.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ognpipe/ognpipe/internal/config"
	"github.com/ognpipe/ognpipe/internal/envelope"
	"github.com/ognpipe/ognpipe/internal/ingest"
	"github.com/ognpipe/ognpipe/internal/lock"
	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/internal/transport"
	"github.com/ognpipe/ognpipe/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// Version is injected at build time
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	source := flag.String("source", "", "Feed to ingest: ogn, beast or sbs")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ognpipe ingest",
		logger.String("version", Version),
		logger.String("source", *source))

	instanceLock, err := lock.Acquire("ognpipe-ingest-"+*source, log)
	if err != nil {
		log.Error("Failed to acquire instance lock", logger.Error(err))
		os.Exit(1)
	}
	defer instanceLock.Release()

	m := metrics.New(prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("Received shutdown signal")
		cancel()
	}()

	switch *source {
	case "ogn":
		if !cfg.APRS.Enabled {
			log.Error("APRS feed is disabled in configuration")
			os.Exit(1)
		}
		client := newForwarder(cfg, envelope.SourceOgn, log, m)
		defer client.Close()
		ingest.NewAPRSClient(ingest.APRSConfig{
			Server:   cfg.APRS.Server,
			Port:     cfg.APRS.Port,
			Callsign: cfg.APRS.Callsign,
			Password: cfg.APRS.Password,
			Filter:   cfg.APRS.Filter,
		}, client, log).Run(ctx)
	case "beast":
		if !cfg.Beast.Enabled {
			log.Error("Beast feed is disabled in configuration")
			os.Exit(1)
		}
		client := newForwarder(cfg, envelope.SourceBeast, log, m)
		defer client.Close()
		ingest.NewBeastClient(ingest.BeastConfig{
			Host: cfg.Beast.Host,
			Port: cfg.Beast.Port,
		}, client, log).Run(ctx)
	case "sbs":
		if !cfg.SBS.Enabled {
			log.Error("SBS feed is disabled in configuration")
			os.Exit(1)
		}
		client := newForwarder(cfg, envelope.SourceSbs, log, m)
		defer client.Close()
		ingest.NewSBSClient(ingest.SBSConfig{
			Host: cfg.SBS.Host,
			Port: cfg.SBS.Port,
		}, client, log).Run(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown source %q (expected ogn, beast or sbs)\n", *source)
		os.Exit(1)
	}

	log.Info("Shutdown complete")
}

// newForwarder dials the router socket. A failed initial connect is not
// fatal; Send retries through Reconnect once the router comes up.
func newForwarder(cfg *config.Config, source envelope.Source, log *logger.Logger, m *metrics.Metrics) *transport.Client {
	client := transport.NewClient(cfg.Transport.SocketPath, source, log, m)
	if err := client.Connect(); err != nil {
		log.Warn("Router socket not reachable yet, will retry on send", logger.Error(err))
	}
	return client
}

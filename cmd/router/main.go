// The router process owns the full pipeline: it accepts envelopes from the
// ingest processes over the unix socket, parses and routes packets, tracks
// flights, persists everything and fans processed fixes out.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ognpipe/ognpipe/internal/batch"
	"github.com/ognpipe/ognpipe/internal/config"
	"github.com/ognpipe/ognpipe/internal/elevation"
	"github.com/ognpipe/ognpipe/internal/envelope"
	"github.com/ognpipe/ognpipe/internal/lock"
	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/internal/publisher"
	"github.com/ognpipe/ognpipe/internal/router"
	"github.com/ognpipe/ognpipe/internal/shutdown"
	"github.com/ognpipe/ognpipe/internal/storage/sqlite"
	"github.com/ognpipe/ognpipe/internal/tracker"
	"github.com/ognpipe/ognpipe/internal/transport"
	"github.com/ognpipe/ognpipe/internal/websocket"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// Version is injected at build time
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
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

	log.Info("Starting ognpipe router", logger.String("version", Version))

	instanceLock, err := lock.Acquire("ognpipe-router", log)
	if err != nil {
		log.Error("Failed to acquire instance lock", logger.Error(err))
		os.Exit(1)
	}
	defer instanceLock.Release()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	db, err := sqlite.Open(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to open storage", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	fixStore := sqlite.NewFixStorage(db)
	flightStore := sqlite.NewFlightStorage(db)
	receiverStore := sqlite.NewReceiverStorage(db)
	rawStore := sqlite.NewRawMessageStorage(db)
	serverStore := sqlite.NewServerMessageStorage(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Elevation is optional; without it fixes simply carry no AGL.
	var elevationSvc tracker.ElevationSource
	if cfg.Elevation.Enabled {
		svc, err := elevation.NewService(cfg.Elevation.DataDir, log, m)
		if err != nil {
			log.Error("Failed to initialize elevation service", logger.Error(err))
			os.Exit(1)
		}
		elevationSvc = svc
	}

	aglWriter := batch.NewWriter("agl", 0, 0, 0, fixStore.BatchUpdateAGL, log, m)
	go aglWriter.Run(ctx)

	wsHub := websocket.NewServer(log, m)
	go wsHub.Run()

	var pub publisher.Publisher
	if cfg.NATS.Enabled {
		conn, err := publisher.Connect(cfg.NATS.URL, log)
		if err != nil {
			log.Error("Failed to connect to NATS", logger.Error(err))
			os.Exit(1)
		}
		if cfg.NATS.JetStream {
			pub, err = publisher.NewJetStreamPublisher(conn, cfg.NATS.Stream, log, m)
			if err != nil {
				log.Error("Failed to initialize JetStream", logger.Error(err))
				os.Exit(1)
			}
		} else {
			pub = publisher.NewNATSPublisher(conn, log, m)
		}
		defer pub.Close()
	}
	fanout := publisher.NewFixFanout(pub, wsHub, log)

	trackerCfg := tracker.Config{
		FlightTimeout:        time.Duration(cfg.Tracker.FlightTimeoutMinutes) * time.Minute,
		TimeoutCheckInterval: time.Duration(cfg.Tracker.TimeoutCheckSeconds) * time.Second,
		StateTTL:             time.Duration(cfg.Tracker.StateTTLHours) * time.Hour,
		CleanupInterval:      time.Duration(cfg.Tracker.CleanupIntervalHours) * time.Hour,
	}
	flightTracker := tracker.New(trackerCfg, flightStore, fixStore, elevationSvc, aglWriter, fanout, log, m)
	go flightTracker.Run(ctx)

	var archive *router.Archive
	if cfg.Archive.Enabled {
		archive, err = router.NewArchive(cfg.Archive.Dir, log)
		if err != nil {
			log.Error("Failed to initialize archive", logger.Error(err))
			os.Exit(1)
		}
		defer archive.Close()
	}

	generic, err := router.NewGenericProcessor(archive, receiverStore, rawStore, log)
	if err != nil {
		log.Error("Failed to initialize generic processor", logger.Error(err))
		os.Exit(1)
	}
	rt := router.New(generic, flightTracker, receiverStore, serverStore, rawStore, router.QueueSizes{
		Aircraft:         cfg.Queues.AircraftSize,
		ReceiverStatus:   cfg.Queues.ReceiverStatusSize,
		ReceiverPosition: cfg.Queues.ReceiverPositionSize,
		ServerStatus:     cfg.Queues.ServerStatusSize,
	}, log, m)

	intake := make(chan *envelope.Envelope, cfg.Queues.IntakeSize)
	socketServer := transport.NewServer(cfg.Transport.SocketPath, log, m)
	if err := socketServer.Start(); err != nil {
		log.Error("Failed to bind transport socket", logger.Error(err))
		os.Exit(1)
	}

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer, mux := metrics.NewServer(httpAddr, registry, log)
	mux.Get("/ws", wsHub.HandleConnection)
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error("HTTP server failed", logger.Error(err))
		}
	}()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		if err := socketServer.AcceptLoop(ctx, intake); err != nil {
			log.Error("Accept loop failed", logger.Error(err))
		}
	}()

	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		rt.Run(ctx, intake)
	}()

	coordinator := shutdown.NewCoordinator(log)
	coordinator.Register(func() map[string]int {
		return map[string]int{"intake": len(intake)}
	})
	coordinator.Register(rt.QueueDepths)
	coordinator.Register(func() map[string]int {
		return map[string]int{"agl": aglWriter.Depth()}
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Received shutdown signal, stopping intake and draining queues")

	// New connections stop first; workers keep draining what was accepted.
	socketServer.Close()
	<-acceptDone

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	coordinator.Wait(drainCtx)
	drainCancel()

	cancel()
	<-routerDone

	aglWriter.Close()
	aglWriter.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	httpServer.Shutdown(shutdownCtx)
	shutdownCancel()

	log.Info("Shutdown complete")
}

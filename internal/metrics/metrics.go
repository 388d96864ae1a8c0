// Package metrics defines the prometheus instrumentation for the pipeline.
// All collectors live on an explicitly constructed Metrics value that is
// passed to the components that need it; there are no package-level globals.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the pipeline exposes
type Metrics struct {
	// Transport client
	ClientConnected   prometheus.Gauge
	MessagesSent      prometheus.Counter
	SendDuration      prometheus.Histogram
	SlowSends         prometheus.Counter
	Reconnects        prometheus.Counter
	ReconnectFailures prometheus.Counter

	// Transport server
	ConnectionsActive   prometheus.Gauge
	ConnectionsAccepted prometheus.Counter
	ConnectionsClosed   prometheus.Counter
	MessagesReceived    prometheus.Counter
	MessageSizeBytes    prometheus.Histogram
	EnvelopeParseErrors prometheus.Counter
	OversizeMessages    prometheus.Counter
	ZeroLengthMessages  prometheus.Counter
	QueueSendErrors     prometheus.Counter

	// Router
	QueueDepth       *prometheus.GaugeVec   // by queue
	PacketsProcessed *prometheus.CounterVec // by category
	ParseFailures    *prometheus.CounterVec // by source
	GenericFailures  prometheus.Counter
	LagSeconds       *prometheus.GaugeVec // by source

	// Flight tracker
	FixesProcessed     prometheus.Counter
	DuplicateFixes     prometheus.Counter
	TakeoffsDetected   prometheus.Counter
	LandingsDetected   prometheus.Counter
	FlightTimeouts     prometheus.Counter
	TowsDetected       prometheus.Counter
	ActiveFlights      prometheus.Gauge
	TrackedAircraft    prometheus.Gauge
	StaleStatesRemoved prometheus.Counter
	TransitionDuration prometheus.Histogram

	// Batch writer
	BatchUpdates  prometheus.Counter
	BatchErrors   prometheus.Counter
	BatchSize     prometheus.Histogram
	BatchDuration prometheus.Histogram

	// Elevation
	ElevationCacheHits   prometheus.Counter
	ElevationCacheMisses prometheus.Counter
	ElevationLookups     prometheus.Histogram

	// Publishers and websocket fan-out
	FixesPublished   *prometheus.CounterVec // by backend
	PublishFailures  *prometheus.CounterVec // by backend
	WebsocketClients prometheus.Gauge
}

// New creates the full collector set and registers it with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClientConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ognpipe", Subsystem: "socket_client",
			Name: "connected", Help: "Whether the transport client is connected (1/0)",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_client",
			Name: "messages_sent_total", Help: "Total envelopes written to the router socket",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ognpipe", Subsystem: "socket_client",
			Name: "send_duration_seconds", Help: "Time to serialize, write and flush one envelope",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		SlowSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_client",
			Name: "slow_sends_total", Help: "Sends that took longer than 100ms",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_client",
			Name: "reconnects_total", Help: "Successful reconnections to the router socket",
		}),
		ReconnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_client",
			Name: "reconnect_failures_total", Help: "Failed reconnection attempts",
		}),

		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ognpipe", Subsystem: "socket_server",
			Name: "connections_active", Help: "Ingester connections currently open",
		}),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_server",
			Name: "connections_accepted_total", Help: "Ingester connections accepted",
		}),
		ConnectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_server",
			Name: "connections_closed_total", Help: "Ingester connections closed",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_server",
			Name: "messages_received_total", Help: "Envelopes received from ingesters",
		}),
		MessageSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ognpipe", Subsystem: "socket_server",
			Name: "message_size_bytes", Help: "Size of received envelope payloads",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8),
		}),
		EnvelopeParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_server",
			Name: "parse_errors_total", Help: "Envelopes that failed to deserialize",
		}),
		OversizeMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_server",
			Name: "message_too_large_total", Help: "Length prefixes exceeding the 1 MiB cap",
		}),
		ZeroLengthMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_server",
			Name: "zero_length_total", Help: "Zero-length messages skipped",
		}),
		QueueSendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "socket_server",
			Name: "queue_send_errors_total", Help: "Failures handing envelopes to the intake queue",
		}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ognpipe", Subsystem: "router",
			Name: "queue_depth", Help: "Current depth of each pipeline queue",
		}, []string{"queue"}),
		PacketsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "router",
			Name: "packets_processed_total", Help: "Packets processed by routed category",
		}, []string{"category"}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "router",
			Name: "parse_failures_total", Help: "Messages that failed to decode, by source",
		}, []string{"source"}),
		GenericFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "router",
			Name: "generic_failures_total", Help: "Packets dropped because generic processing failed",
		}),
		LagSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ognpipe", Subsystem: "router",
			Name: "lag_seconds", Help: "Receipt-to-processing lag by source",
		}, []string{"source"}),

		FixesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "fixes_processed_total", Help: "Fixes accepted by the flight tracker",
		}),
		DuplicateFixes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "duplicate_fixes_total", Help: "Fixes discarded as sub-second duplicates",
		}),
		TakeoffsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "takeoffs_detected_total", Help: "Takeoffs detected",
		}),
		LandingsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "landings_detected_total", Help: "Landings detected",
		}),
		FlightTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "flight_timeouts_total", Help: "Flights closed because fixes stopped arriving",
		}),
		TowsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "tows_detected_total", Help: "Tow pairings established",
		}),
		ActiveFlights: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "active_flights", Help: "Aircraft currently considered airborne",
		}),
		TrackedAircraft: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "tracked_aircraft", Help: "Aircraft states held in memory",
		}),
		StaleStatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "stale_states_removed_total", Help: "Aircraft states evicted after the freshness window",
		}),
		TransitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ognpipe", Subsystem: "tracker",
			Name: "transition_duration_seconds", Help: "Time spent in the per-fix state transition",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),

		BatchUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "batch",
			Name: "updates_total", Help: "Rows written by batched flushes",
		}),
		BatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "batch",
			Name: "errors_total", Help: "Batched flushes that failed (batch discarded)",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ognpipe", Subsystem: "batch",
			Name: "size", Help: "Items per flushed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 75, 100},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ognpipe", Subsystem: "batch",
			Name: "flush_duration_seconds", Help: "Time per batched write",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),

		ElevationCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "elevation",
			Name: "cache_hits_total", Help: "Elevation lookups served from the grid cache",
		}),
		ElevationCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "elevation",
			Name: "cache_misses_total", Help: "Elevation lookups that had to read a tile",
		}),
		ElevationLookups: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ognpipe", Subsystem: "elevation",
			Name: "lookup_duration_seconds", Help: "Elevation lookup latency",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),

		FixesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "publish",
			Name: "fixes_total", Help: "Live fixes published, by backend",
		}, []string{"backend"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ognpipe", Subsystem: "publish",
			Name: "failures_total", Help: "Publish failures, by backend",
		}, []string{"backend"}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ognpipe", Subsystem: "websocket",
			Name: "clients_connected", Help: "Connected live-fix websocket clients",
		}),
	}

	reg.MustRegister(
		m.ClientConnected, m.MessagesSent, m.SendDuration, m.SlowSends,
		m.Reconnects, m.ReconnectFailures,
		m.ConnectionsActive, m.ConnectionsAccepted, m.ConnectionsClosed,
		m.MessagesReceived, m.MessageSizeBytes, m.EnvelopeParseErrors,
		m.OversizeMessages, m.ZeroLengthMessages, m.QueueSendErrors,
		m.QueueDepth, m.PacketsProcessed, m.ParseFailures, m.GenericFailures, m.LagSeconds,
		m.FixesProcessed, m.DuplicateFixes, m.TakeoffsDetected, m.LandingsDetected,
		m.FlightTimeouts, m.TowsDetected, m.ActiveFlights, m.TrackedAircraft,
		m.StaleStatesRemoved, m.TransitionDuration,
		m.BatchUpdates, m.BatchErrors, m.BatchSize, m.BatchDuration,
		m.ElevationCacheHits, m.ElevationCacheMisses, m.ElevationLookups,
		m.FixesPublished, m.PublishFailures, m.WebsocketClients,
	)

	return m
}

// NewForTest creates a Metrics backed by a throwaway registry
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}

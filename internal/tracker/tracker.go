package tracker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

const (
	stateShardCount = 64

	duplicateFixWindow = time.Second

	// aglWorkerLimit caps concurrent elevation lookups. Misses hit disk,
	// so a cold cache under full fix rate must not fan out unbounded.
	aglWorkerLimit = 32
)

// Config holds the tracker's timing knobs.
type Config struct {
	FlightTimeout        time.Duration // close flights with no fix for this long
	TimeoutCheckInterval time.Duration
	StateTTL             time.Duration // evict aircraft states idle this long
	CleanupInterval      time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		FlightTimeout:        time.Hour,
		TimeoutCheckInterval: time.Minute,
		StateTTL:             18 * time.Hour,
		CleanupInterval:      time.Hour,
	}
}

// AGLUpdate is one pending altitude-above-ground enrichment write.
type AGLUpdate struct {
	FixID         uuid.UUID
	AltitudeAGLFt int
}

// AGLSink accepts enrichment updates; Enqueue returns false when the sink
// is full or closed.
type AGLSink interface {
	Enqueue(update AGLUpdate) bool
}

// FixPublisher receives every processed fix for live fan-out. Implementations
// must not block.
type FixPublisher interface {
	PublishFix(fix *Fix)
}

// stateEntry pairs an aircraft's state with the mutex that serializes all
// processing for that aircraft. The lock is held across the full transition,
// persistence included, so two fixes for the same aircraft can never
// interleave; fixes for different aircraft proceed in parallel.
type stateEntry struct {
	mu    sync.Mutex
	state *AircraftState
}

type stateShard struct {
	mu      sync.RWMutex
	entries map[string]*stateEntry
}

// Tracker owns all per-aircraft state and drives flight lifecycle
// persistence from the fix stream.
type Tracker struct {
	cfg       Config
	log       *logger.Logger
	metrics   *metrics.Metrics
	flights   FlightRepository
	fixes     FixRepository
	elevation ElevationSource
	aglSink   AGLSink
	publisher FixPublisher

	shards [stateShardCount]*stateShard
	aglSem chan struct{}
}

// New wires a tracker. elevation, aglSink and publisher may be nil; the
// corresponding enrichment or fan-out is then skipped.
func New(cfg Config, flights FlightRepository, fixes FixRepository, elevation ElevationSource,
	aglSink AGLSink, publisher FixPublisher, log *logger.Logger, m *metrics.Metrics) *Tracker {
	t := &Tracker{
		cfg:       cfg,
		log:       log.Named("tracker"),
		metrics:   m,
		flights:   flights,
		fixes:     fixes,
		elevation: elevation,
		aglSink:   aglSink,
		publisher: publisher,
		aglSem:    make(chan struct{}, aglWorkerLimit),
	}
	for i := range t.shards {
		t.shards[i] = &stateShard{entries: make(map[string]*stateEntry)}
	}
	return t
}

func (t *Tracker) shardFor(aircraftID string) *stateShard {
	h := fnv.New32a()
	h.Write([]byte(aircraftID))
	return t.shards[h.Sum32()%stateShardCount]
}

func (t *Tracker) entryFor(aircraftID string) *stateEntry {
	shard := t.shardFor(aircraftID)
	shard.mu.RLock()
	e, ok := shard.entries[aircraftID]
	shard.mu.RUnlock()
	if ok {
		return e
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if e, ok = shard.entries[aircraftID]; ok {
		return e
	}
	e = &stateEntry{}
	shard.entries[aircraftID] = e
	t.metrics.TrackedAircraft.Inc()
	return e
}

// ProcessFix runs one fix through the state machine and persists it. The
// tracker never fails hard: anything that cannot be derived is left unknown
// and persistence errors are logged and counted.
func (t *Tracker) ProcessFix(ctx context.Context, fix *Fix) {
	start := time.Now()

	isActive := ShouldBeActive(fix)
	if fix.HasTransponderData() {
		isActive = !*fix.TransponderOnGround
	}
	fix.IsActive = isActive

	entry := t.entryFor(fix.AircraftID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.state == nil {
		entry.state = NewAircraftState(fix, isActive)
	} else {
		if last := entry.state.LastFix(); last != nil &&
			fix.Timestamp.Sub(last.Timestamp) < duplicateFixWindow &&
			fix.Timestamp.Sub(last.Timestamp) > -duplicateFixWindow {
			t.metrics.DuplicateFixes.Inc()
			return
		}
		entry.state.AddFix(fix, isActive)
	}

	t.processTransition(ctx, entry.state, fix, isActive)

	if err := t.fixes.Insert(ctx, fix); err != nil {
		t.log.Error("Failed to insert fix",
			logger.String("aircraft", fix.AircraftID),
			logger.Error(err))
	}

	if t.publisher != nil {
		t.publisher.PublishFix(fix)
	}

	// AGL enrichment runs off the hot path; the elevation lookup may hit
	// disk and the write goes through the batch writer. Lookups beyond the
	// worker cap are skipped, not queued.
	if t.elevation != nil && t.aglSink != nil && fix.AltitudeMSLFt != nil && fix.AltitudeAGLFt == nil {
		select {
		case t.aglSem <- struct{}{}:
			go func(id uuid.UUID, lat, lng float64, mslFt int) {
				defer func() { <-t.aglSem }()
				t.enrichAGL(id, lat, lng, mslFt)
			}(fix.ID, fix.Latitude, fix.Longitude, *fix.AltitudeMSLFt)
		default:
			t.log.Debug("AGL enrichment skipped, lookup workers saturated",
				logger.String("aircraft", fix.AircraftID))
		}
	}

	t.metrics.FixesProcessed.Inc()
	t.metrics.TransitionDuration.Observe(time.Since(start).Seconds())
}

const metersToFeet = 3.28084

// calculateAGL subtracts terrain elevation from reported MSL altitude.
func (t *Tracker) calculateAGL(lat, lng float64, altitudeMSLFt int) *int {
	if t.elevation == nil {
		return nil
	}
	elevationM, err := t.elevation.ElevationAt(lat, lng)
	if err != nil || elevationM == nil {
		return nil
	}
	agl := altitudeMSLFt - int(*elevationM*metersToFeet)
	return &agl
}

func (t *Tracker) enrichAGL(fixID uuid.UUID, lat, lng float64, altitudeMSLFt int) {
	agl := t.calculateAGL(lat, lng, altitudeMSLFt)
	if agl == nil {
		return
	}
	if !t.aglSink.Enqueue(AGLUpdate{FixID: fixID, AltitudeAGLFt: *agl}) {
		t.log.Debug("AGL update dropped, sink unavailable")
	}
}

// Run drives the periodic flight-timeout and state-cleanup sweeps until the
// context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	timeoutTicker := time.NewTicker(t.cfg.TimeoutCheckInterval)
	cleanupTicker := time.NewTicker(t.cfg.CleanupInterval)
	defer timeoutTicker.Stop()
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timeoutTicker.C:
			t.timeoutStaleFlights(ctx)
		case <-cleanupTicker.C:
			t.cleanupStaleStates()
		}
	}
}

// timeoutStaleFlights closes flights whose aircraft stopped reporting. The
// phase at closure is recorded so downstream consumers can tell a flight
// that vanished mid-climb from one that faded out in cruise.
func (t *Tracker) timeoutStaleFlights(ctx context.Context) {
	cutoff := time.Now().Add(-t.cfg.FlightTimeout)

	for _, shard := range t.shards {
		shard.mu.RLock()
		entries := make([]*stateEntry, 0, len(shard.entries))
		for _, e := range shard.entries {
			entries = append(entries, e)
		}
		shard.mu.RUnlock()

		for _, e := range entries {
			e.mu.Lock()
			s := e.state
			if s == nil || s.CurrentFlightID == nil {
				e.mu.Unlock()
				continue
			}
			last := s.LastFix()
			if last == nil || last.Timestamp.After(cutoff) {
				e.mu.Unlock()
				continue
			}

			flightID := *s.CurrentFlightID
			phase := s.DetermineFlightPhase()
			lastFixAt := last.Timestamp
			s.CurrentFlightID = nil
			s.CurrentCallsign = ""
			s.TowingInfo = nil
			s.TakeoffRunwayInferred = nil
			e.mu.Unlock()

			if err := t.flights.CloseTimedOut(ctx, flightID, phase, lastFixAt); err != nil {
				t.log.Warn("Failed to close timed-out flight",
					logger.String("flight_id", flightID.String()),
					logger.Error(err))
				continue
			}
			t.metrics.FlightTimeouts.Inc()
			t.metrics.ActiveFlights.Dec()
			t.log.Info("Flight timed out",
				logger.String("flight_id", flightID.String()),
				logger.String("phase", phase.String()),
				logger.Time("last_fix", lastFixAt))
		}
	}
}

// cleanupStaleStates drops aircraft not heard from within the TTL.
func (t *Tracker) cleanupStaleStates() {
	cutoff := time.Now().Add(-t.cfg.StateTTL)
	removed := 0

	for _, shard := range t.shards {
		shard.mu.Lock()
		for id, e := range shard.entries {
			if e.mu.TryLock() {
				stale := e.state != nil && e.state.LastUpdateTime.Before(cutoff) &&
					e.state.CurrentFlightID == nil
				e.mu.Unlock()
				if stale {
					delete(shard.entries, id)
					removed++
				}
			}
		}
		shard.mu.Unlock()
	}

	if removed > 0 {
		t.metrics.TrackedAircraft.Sub(float64(removed))
		t.metrics.StaleStatesRemoved.Add(float64(removed))
		t.log.Info("Removed stale aircraft states", logger.Int("count", removed))
	}
}

// towCandidates snapshots every airborne aircraft's latest position for the
// tow-pairing search. Taken shard by shard without nesting entry locks.
func (t *Tracker) towCandidates() []towCandidate {
	var out []towCandidate
	for _, shard := range t.shards {
		shard.mu.RLock()
		ids := make(map[string]*stateEntry, len(shard.entries))
		for id, e := range shard.entries {
			ids[id] = e
		}
		shard.mu.RUnlock()

		for id, e := range ids {
			if !e.mu.TryLock() {
				continue
			}
			s := e.state
			if s != nil && s.CurrentFlightID != nil {
				if last := s.LastFix(); last != nil {
					out = append(out, towCandidate{
						aircraftID:   id,
						flightID:     *s.CurrentFlightID,
						aircraftType: s.AircraftType,
						lat:          last.Lat,
						lng:          last.Lng,
						fixTime:      last.Timestamp,
					})
				}
			}
			e.mu.Unlock()
		}
	}
	return out
}

package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

type fakeFlightRepo struct {
	mu       sync.Mutex
	flights  map[uuid.UUID]*Flight
	landings map[uuid.UUID]time.Time
	releases map[uuid.UUID]int
	tows     map[uuid.UUID]string
}

func newFakeFlightRepo() *fakeFlightRepo {
	return &fakeFlightRepo{
		flights:  make(map[uuid.UUID]*Flight),
		landings: make(map[uuid.UUID]time.Time),
		releases: make(map[uuid.UUID]int),
		tows:     make(map[uuid.UUID]string),
	}
}

func (r *fakeFlightRepo) Insert(_ context.Context, flight *Flight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *flight
	r.flights[flight.ID] = &cp
	return nil
}

func (r *fakeFlightRepo) SetLandingTime(_ context.Context, flightID uuid.UUID, landedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, landed := r.landings[flightID]; landed {
		return false, nil
	}
	if _, ok := r.flights[flightID]; !ok {
		return false, nil
	}
	r.landings[flightID] = landedAt
	return true, nil
}

func (r *fakeFlightRepo) GetActiveFlightForAircraft(_ context.Context, aircraftID string) (*Flight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.flights {
		if f.AircraftID == aircraftID {
			if _, landed := r.landings[id]; !landed {
				cp := *f
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeFlightRepo) CloseTimedOut(_ context.Context, flightID uuid.UUID, _ FlightPhase, lastFixAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.landings[flightID] = lastFixAt
	return nil
}

func (r *fakeFlightRepo) UpdateTowingInfo(_ context.Context, gliderFlightID uuid.UUID, towAircraftID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tows[gliderFlightID] = towAircraftID
	return nil
}

func (r *fakeFlightRepo) UpdateTowRelease(_ context.Context, gliderFlightID uuid.UUID, releaseHeightFt int, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases[gliderFlightID] = releaseHeightFt
	return nil
}

func (r *fakeFlightRepo) flightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flights)
}

func (r *fakeFlightRepo) landingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.landings)
}

type fakeFixRepo struct {
	mu    sync.Mutex
	fixes []*Fix
}

func (r *fakeFixRepo) Insert(_ context.Context, fix *Fix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *fix
	r.fixes = append(r.fixes, &cp)
	return nil
}

func (r *fakeFixRepo) last() *Fix {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fixes) == 0 {
		return nil
	}
	return r.fixes[len(r.fixes)-1]
}

func newTestTracker(t *testing.T) (*Tracker, *fakeFlightRepo, *fakeFixRepo) {
	t.Helper()
	flights := newFakeFlightRepo()
	fixes := &fakeFixRepo{}
	tr := New(DefaultConfig(), flights, fixes, nil, nil, nil, logger.NewNop(), metrics.NewForTest())
	return tr, flights, fixes
}

func aircraftFix(id string, secondsOffset int, speedKt float32, aglFt int) *Fix {
	ts := testBase.Add(time.Duration(secondsOffset) * time.Second)
	msl := aglFt + 800
	return &Fix{
		ID:            uuid.New(),
		AircraftID:    id,
		Timestamp:     ts,
		ReceivedAt:    ts,
		Latitude:      46.95,
		Longitude:     8.33,
		AltitudeMSLFt: &msl,
		AltitudeAGLFt: &aglFt,
		GroundSpeedKt: &speedKt,
	}
}

func TestTakeoffAfterGroundFixes(t *testing.T) {
	tr, flights, fixes := newTestTracker(t)
	ctx := context.Background()

	// Three parked fixes, then movement.
	for i := 0; i < 3; i++ {
		tr.ProcessFix(ctx, aircraftFix("DDE28B", i*30, 2, 0))
	}
	assert.Equal(t, 0, flights.flightCount())

	tr.ProcessFix(ctx, aircraftFix("DDE28B", 90, 45, 50))

	require.Equal(t, 1, flights.flightCount())
	last := fixes.last()
	require.NotNil(t, last.FlightID)
	assert.True(t, last.IsActive)
	for _, f := range flights.flights {
		assert.True(t, f.TakeoffDetected)
		assert.Equal(t, testBase.Add(90*time.Second), f.TakeoffTime)
	}
}

func TestTakeoffRunwayInferredFromHeading(t *testing.T) {
	tr, flights, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr.ProcessFix(ctx, aircraftFix("DDF666", i*30, 2, 0))
	}
	departure := aircraftFix("DDF666", 90, 45, 50)
	departure.TrackDeg = f32p(228)
	tr.ProcessFix(ctx, departure)

	require.Equal(t, 1, flights.flightCount())
	for _, f := range flights.flights {
		require.NotNil(t, f.TakeoffRunway)
		assert.Equal(t, "23", *f.TakeoffRunway)
		assert.True(t, f.RunwaysInferred)
	}
}

func TestNoRunwayForParaglider(t *testing.T) {
	tr, flights, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		launch := aircraftFix("PGL777", i*30, 2, 0)
		launch.AircraftType = 7
		tr.ProcessFix(ctx, launch)
	}
	departure := aircraftFix("PGL777", 90, 30, 300)
	departure.AircraftType = 7
	departure.TrackDeg = f32p(120)
	tr.ProcessFix(ctx, departure)

	require.Equal(t, 1, flights.flightCount())
	for _, f := range flights.flights {
		assert.Nil(t, f.TakeoffRunway)
		assert.False(t, f.RunwaysInferred)
	}
}

func TestLandingRequiresFiveInactiveFixes(t *testing.T) {
	tr, flights, fixes := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr.ProcessFix(ctx, aircraftFix("DDA111", i*30, 2, 0))
	}
	tr.ProcessFix(ctx, aircraftFix("DDA111", 90, 60, 400))
	require.Equal(t, 1, flights.flightCount())

	// Four inactive fixes: transient dip, flight stays open.
	for i := 0; i < 4; i++ {
		tr.ProcessFix(ctx, aircraftFix("DDA111", 120+i*30, 3, 0))
		assert.Equal(t, 0, flights.landingCount(), "landed too early on fix %d", i+1)
		assert.NotNil(t, fixes.last().FlightID)
	}

	// Fifth consecutive inactive fix closes the flight.
	tr.ProcessFix(ctx, aircraftFix("DDA111", 240, 3, 0))
	assert.Equal(t, 1, flights.landingCount())
}

type flatTerrain struct{ elevationM float64 }

func (f flatTerrain) ElevationAt(_, _ float64) (*float64, error) {
	e := f.elevationM
	return &e, nil
}

func TestHighAGLKeepsFlightAliveDespiteLowSpeed(t *testing.T) {
	flights := newFakeFlightRepo()
	fixes := &fakeFixRepo{}
	tr := New(DefaultConfig(), flights, fixes, flatTerrain{0}, nil, nil, logger.NewNop(), metrics.NewForTest())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr.ProcessFix(ctx, aircraftFix("DDB222", i*30, 2, 0))
	}
	tr.ProcessFix(ctx, aircraftFix("DDB222", 90, 60, 400))
	require.Equal(t, 1, flights.flightCount())

	// A thermalling glider can report near-zero ground speed well above
	// ground. The fix reads inactive, but the elevation lookup shows it is
	// still high, so the flight stays open regardless of debounce.
	for i := 0; i < 6; i++ {
		soaring := aircraftFix("DDB222", 120+i*30, 3, 0)
		soaring.AltitudeAGLFt = nil
		soaring.AltitudeMSLFt = intp(3000)
		tr.ProcessFix(ctx, soaring)
	}
	assert.Equal(t, 0, flights.landingCount())
}

type blockingTerrain struct{ release chan struct{} }

func (b *blockingTerrain) ElevationAt(_, _ float64) (*float64, error) {
	<-b.release
	e := 0.0
	return &e, nil
}

type recordingAGLSink struct {
	mu      sync.Mutex
	updates []AGLUpdate
}

func (s *recordingAGLSink) Enqueue(u AGLUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return true
}

func (s *recordingAGLSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func TestAGLLookupConcurrencyIsCapped(t *testing.T) {
	terrain := &blockingTerrain{release: make(chan struct{})}
	sink := &recordingAGLSink{}
	flights := newFakeFlightRepo()
	fixes := &fakeFixRepo{}
	tr := New(DefaultConfig(), flights, fixes, terrain, sink, nil, logger.NewNop(), metrics.NewForTest())
	ctx := context.Background()

	// Every fix needs enrichment while the terrain lookup is stuck. The
	// lookups beyond the worker cap must be skipped, not piled up.
	for i := 0; i < aglWorkerLimit+10; i++ {
		fix := aircraftFix(fmt.Sprintf("DD%04X", i), i, 90, 0)
		fix.AltitudeAGLFt = nil
		fix.AltitudeMSLFt = intp(3000)
		tr.ProcessFix(ctx, fix)
	}
	assert.Equal(t, aglWorkerLimit, len(tr.aglSem))

	close(terrain.release)
	assert.Eventually(t, func() bool { return sink.count() == aglWorkerLimit },
		2*time.Second, 10*time.Millisecond)

	// Nothing beyond the cap was queued behind the stall.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, aglWorkerLimit, sink.count())
}

func TestMidFlightAppearanceCreatesFlightWithoutTakeoff(t *testing.T) {
	tr, flights, _ := newTestTracker(t)
	ctx := context.Background()

	// First ever fix is fast and high: no takeoff was observed.
	tr.ProcessFix(ctx, aircraftFix("DDC333", 0, 90, 4000))

	require.Equal(t, 1, flights.flightCount())
	for _, f := range flights.flights {
		assert.False(t, f.TakeoffDetected)
	}
}

func TestDuplicateFixesDiscarded(t *testing.T) {
	tr, _, fixes := newTestTracker(t)
	ctx := context.Background()

	tr.ProcessFix(ctx, aircraftFix("DDD444", 0, 45, 400))
	before := len(fixes.fixes)

	// Same second again, from a second receiver.
	tr.ProcessFix(ctx, aircraftFix("DDD444", 0, 45, 400))
	assert.Equal(t, before, len(fixes.fixes))

	tr.ProcessFix(ctx, aircraftFix("DDD444", 2, 46, 420))
	assert.Equal(t, before+1, len(fixes.fixes))
}

func TestCallsignChangeSplitsFlight(t *testing.T) {
	tr, flights, _ := newTestTracker(t)
	ctx := context.Background()

	first := aircraftFix("DDE555", 0, 90, 4000)
	first.Callsign = "WMT437"
	tr.ProcessFix(ctx, first)
	require.Equal(t, 1, flights.flightCount())

	second := aircraftFix("DDE555", 60, 90, 4000)
	second.Callsign = "WMT2574"
	tr.ProcessFix(ctx, second)

	assert.Equal(t, 2, flights.flightCount())
	assert.Equal(t, 1, flights.landingCount())
}

func TestTransponderOnGroundLandsImmediately(t *testing.T) {
	tr, flights, _ := newTestTracker(t)
	ctx := context.Background()

	airborne := aircraftFix("4CA2D6", 0, 150, 5000)
	off := false
	airborne.TransponderOnGround = &off
	tr.ProcessFix(ctx, airborne)
	require.Equal(t, 1, flights.flightCount())

	grounded := aircraftFix("4CA2D6", 60, 10, 0)
	on := true
	grounded.TransponderOnGround = &on
	tr.ProcessFix(ctx, grounded)

	// No five-fix debounce for transponder sources.
	assert.Equal(t, 1, flights.landingCount())
}

func TestTowPairingAndRelease(t *testing.T) {
	tr, flights, _ := newTestTracker(t)
	ctx := context.Background()

	// Glider takes off first, close to the field.
	glider := aircraftFix("GLD001", 0, 50, 300)
	glider.AircraftType = AircraftTypeGlider
	tr.ProcessFix(ctx, glider)
	require.Equal(t, 1, flights.flightCount())

	var gliderFlightID uuid.UUID
	for id := range flights.flights {
		gliderFlightID = id
	}

	// Tug goes from parked to airborne right next to it.
	for i := 0; i < 3; i++ {
		tug := aircraftFix("TUG001", i*2, 2, 0)
		tug.AircraftType = AircraftTypeTowPlane
		tr.ProcessFix(ctx, tug)
	}
	tug := aircraftFix("TUG001", 10, 55, 100)
	tug.AircraftType = AircraftTypeTowPlane
	tr.ProcessFix(ctx, tug)

	assert.Equal(t, "TUG001", flights.tows[gliderFlightID])

	// Tug climbs steadily, then drops into a descent: release.
	for i := 1; i <= 4; i++ {
		climb := aircraftFix("TUG001", 10+i*10, 60, 100+i*300)
		climb.AircraftType = AircraftTypeTowPlane
		climb.ClimbFpm = intp(600)
		tr.ProcessFix(ctx, climb)
	}
	assert.Empty(t, flights.releases)

	descent := aircraftFix("TUG001", 60, 60, 1400)
	descent.AircraftType = AircraftTypeTowPlane
	descent.ClimbFpm = intp(-400)
	tr.ProcessFix(ctx, descent)

	require.Contains(t, flights.releases, gliderFlightID)
	assert.Equal(t, 1400+800, flights.releases[gliderFlightID])
}

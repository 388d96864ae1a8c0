package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ognpipe/ognpipe/internal/envelope"
	"github.com/ognpipe/ognpipe/internal/router"
	"github.com/ognpipe/ognpipe/internal/tracker"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReceiverUpsertIsStableAcrossCalls(t *testing.T) {
	db := openTestDB(t)
	store := NewReceiverStorage(db)
	ctx := context.Background()

	first, err := store.UpsertByCallsign(ctx, "Letzi", time.Now())
	require.NoError(t, err)
	second, err := store.UpsertByCallsign(ctx, "Letzi", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := store.UpsertByCallsign(ctx, "Koenigsdorf", time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestReceiverPositionAndStatusUpdates(t *testing.T) {
	db := openTestDB(t)
	store := NewReceiverStorage(db)
	ctx := context.Background()

	id, err := store.UpsertByCallsign(ctx, "Letzi", time.Now())
	require.NoError(t, err)

	alt := 1801
	require.NoError(t, store.UpdatePosition(ctx, id, 46.955, 7.881, &alt, time.Now()))
	require.NoError(t, store.UpdateStatus(ctx, id, "v0.2.7.RPI-GPU CPU:0.7", time.Now()))
}

func TestFlightLifecycle(t *testing.T) {
	db := openTestDB(t)
	store := NewFlightStorage(db)
	ctx := context.Background()

	runway := "23"
	flight := &tracker.Flight{
		ID:              uuid.New(),
		AircraftID:      "DD1234",
		Callsign:        "D-1234",
		TakeoffTime:     time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC),
		TakeoffRunway:   &runway,
		RunwaysInferred: true,
		TakeoffDetected: true,
	}
	require.NoError(t, store.Insert(ctx, flight))

	active, err := store.GetActiveFlightForAircraft(ctx, "DD1234")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, flight.ID, active.ID)
	assert.Equal(t, "D-1234", active.Callsign)
	require.NotNil(t, active.TakeoffRunway)
	assert.Equal(t, "23", *active.TakeoffRunway)
	assert.True(t, active.RunwaysInferred)
	assert.True(t, active.TakeoffDetected)

	landed, err := store.SetLandingTime(ctx, flight.ID, flight.TakeoffTime.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, landed)

	// Second close is a no-op and reports stale state.
	landed, err = store.SetLandingTime(ctx, flight.ID, flight.TakeoffTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, landed)

	active, err = store.GetActiveFlightForAircraft(ctx, "DD1234")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestCloseTimedOutExcludesFlightFromActive(t *testing.T) {
	db := openTestDB(t)
	store := NewFlightStorage(db)
	ctx := context.Background()

	flight := &tracker.Flight{
		ID:          uuid.New(),
		AircraftID:  "DD5678",
		TakeoffTime: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, store.Insert(ctx, flight))
	require.NoError(t, store.CloseTimedOut(ctx, flight.ID, tracker.PhaseCruising, time.Now().Add(-time.Hour)))

	active, err := store.GetActiveFlightForAircraft(ctx, "DD5678")
	require.NoError(t, err)
	assert.Nil(t, active)

	// A timed-out flight cannot be landed afterwards.
	landed, err := store.SetLandingTime(ctx, flight.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, landed)
}

func TestTowingUpdates(t *testing.T) {
	db := openTestDB(t)
	store := NewFlightStorage(db)
	ctx := context.Background()

	flight := &tracker.Flight{ID: uuid.New(), AircraftID: "DD9999", TakeoffTime: time.Now()}
	require.NoError(t, store.Insert(ctx, flight))
	require.NoError(t, store.UpdateTowingInfo(ctx, flight.ID, "DDAAAA", time.Now()))
	require.NoError(t, store.UpdateTowRelease(ctx, flight.ID, 2200, time.Now()))

	active, err := store.GetActiveFlightForAircraft(ctx, "DD9999")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.NotNil(t, active.TowAircraftID)
	assert.Equal(t, "DDAAAA", *active.TowAircraftID)
	require.NotNil(t, active.TowReleaseHeight)
	assert.Equal(t, 2200, *active.TowReleaseHeight)
}

func TestFixInsertAndBatchAGLUpdate(t *testing.T) {
	db := openTestDB(t)
	store := NewFixStorage(db)
	ctx := context.Background()

	alt := 3054
	spd := float32(45)
	fix := &tracker.Fix{
		ID:            uuid.New(),
		AircraftID:    "DD1234",
		Timestamp:     time.Now(),
		ReceivedAt:    time.Now(),
		Latitude:      46.955,
		Longitude:     7.881,
		AltitudeMSLFt: &alt,
		GroundSpeedKt: &spd,
		ReceiverID:    uuid.New(),
		RawMessageID:  uuid.New(),
		IsActive:      true,
	}
	require.NoError(t, store.Insert(ctx, fix))

	updated, err := store.BatchUpdateAGL(ctx, []tracker.AGLUpdate{
		{FixID: fix.ID, AltitudeAGLFt: 1250},
		{FixID: uuid.New(), AltitudeAGLFt: 500}, // unknown fix, no row
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
}

func TestRawAndServerMessageInserts(t *testing.T) {
	db := openTestDB(t)
	raws := NewRawMessageStorage(db)
	servers := NewServerMessageStorage(db)
	ctx := context.Background()

	require.NoError(t, raws.Insert(ctx, &router.RawMessage{
		ID:         uuid.New(),
		Source:     envelope.SourceOgn,
		Raw:        []byte("FLRDD1234>OGFLR,qAS,Letzi:/102540h4657.32N/00752.87E'"),
		ReceivedAt: time.Now(),
	}))

	require.NoError(t, servers.Insert(ctx, &router.ServerMessage{
		ID:         uuid.New(),
		Software:   "aprsc 2.1.15-gc67551b",
		ServerName: "GLIDERN1",
		Endpoint:   "51.178.19.212:10152",
		ServerTime: time.Now().Add(-time.Second),
		ReceivedAt: time.Now(),
		LagMS:      1000,
		Raw:        "# aprsc 2.1.15-gc67551b 22 Sep 2025 21:51:55 GMT GLIDERN1 51.178.19.212:10152",
	}))
}

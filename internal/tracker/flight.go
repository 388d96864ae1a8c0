package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Flight is one takeoff-to-landing record. Identity is immutable; the tail
// fields (landing, tow release) fill in as the flight progresses.
type Flight struct {
	ID                uuid.UUID
	AircraftID        string
	Callsign          string
	TakeoffTime       time.Time
	LandingTime       *time.Time
	DepartureAirport  *string
	ArrivalAirport    *string
	TowAircraftID     *string
	TowReleaseHeight  *int // ft MSL
	ClubID            *uuid.UUID
	TakeoffRunway     *string
	RunwaysInferred   bool // runway derived from heading, not surveyed data
	TakeoffDetected   bool // false when first seen mid-flight
	ClosedByTimeout   bool
	ClosurePhase      FlightPhase
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FlightRepository is the persistence surface the tracker drives.
// SetLandingTime reports whether a row was updated; false means the flight
// was already closed and the in-memory state is stale.
type FlightRepository interface {
	Insert(ctx context.Context, flight *Flight) error
	SetLandingTime(ctx context.Context, flightID uuid.UUID, landedAt time.Time) (bool, error)
	GetActiveFlightForAircraft(ctx context.Context, aircraftID string) (*Flight, error)
	CloseTimedOut(ctx context.Context, flightID uuid.UUID, phase FlightPhase, lastFixAt time.Time) error
	UpdateTowingInfo(ctx context.Context, gliderFlightID uuid.UUID, towAircraftID string, towStarted time.Time) error
	UpdateTowRelease(ctx context.Context, gliderFlightID uuid.UUID, releaseHeightFt int, releasedAt time.Time) error
}

// FixRepository persists full fixes and their async AGL enrichment.
type FixRepository interface {
	Insert(ctx context.Context, fix *Fix) error
}

// ElevationSource resolves terrain elevation in meters for a coordinate.
// A nil result with nil error means no data for the location (open water).
type ElevationSource interface {
	ElevationAt(lat, lng float64) (*float64, error)
}

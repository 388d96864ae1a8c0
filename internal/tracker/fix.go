// Package tracker reconstructs continuous flights from the stream of
// per-aircraft position fixes. State is held in memory per aircraft and
// updated one fix at a time; persistence happens through the repository
// interfaces defined here.
package tracker

import (
	"time"

	"github.com/google/uuid"
)

// Fix is one full position/telemetry report, persisted per aircraft
// position packet.
type Fix struct {
	ID            uuid.UUID
	AircraftID    string // device address, e.g. "DDE28B" or ICAO hex
	AddressType   uint8
	AircraftType  uint8 // OGN aircraft type; 1 glider, 2 tow plane
	Timestamp     time.Time
	ReceivedAt    time.Time
	Latitude      float64
	Longitude     float64
	AltitudeMSLFt *int
	AltitudeAGLFt *int
	Callsign      string
	Squawk        string
	GroundSpeedKt *float32
	TrackDeg      *float32
	ClimbFpm      *int
	TurnRate      *float32
	ReceiverID    uuid.UUID
	RawMessageID  uuid.UUID
	IsActive      bool
	FlightID      *uuid.UUID
	// On-ground flag straight from a Mode-S transponder. When set the
	// is_active heuristic is bypassed, the transponder is authoritative.
	TransponderOnGround *bool
}

// HasTransponderData reports whether the fix came from a source that
// carries an authoritative on-ground flag.
func (f *Fix) HasTransponderData() bool {
	return f.TransponderOnGround != nil
}

// CompactFix is the slimmed-down form kept in the per-aircraft history.
// IsActive is precomputed once at ingestion so later state decisions
// never re-derive it.
type CompactFix struct {
	Timestamp     time.Time
	Lat           float64
	Lng           float64
	AltitudeMSLFt *int
	AltitudeAGLFt *int
	GroundSpeedKt *float32
	IsActive      bool
}

// CompactFromFix extracts the history fields from a full fix.
func CompactFromFix(fix *Fix, isActive bool) CompactFix {
	return CompactFix{
		Timestamp:     fix.Timestamp,
		Lat:           fix.Latitude,
		Lng:           fix.Longitude,
		AltitudeMSLFt: fix.AltitudeMSLFt,
		AltitudeAGLFt: fix.AltitudeAGLFt,
		GroundSpeedKt: fix.GroundSpeedKt,
		IsActive:      isActive,
	}
}

// Activity thresholds. Without altitude data only a clearly flying speed
// counts as active, since parked aircraft report GPS jitter as speed.
const (
	activeSpeedNoAltKt = 80.0
	activeSpeedKt      = 25.0
	activeAGLFt        = 250
)

// ShouldBeActive decides whether a fix represents a moving, airborne
// aircraft. The result is computed once and stored on the fix.
func ShouldBeActive(fix *Fix) bool {
	if fix.AltitudeAGLFt == nil && fix.AltitudeMSLFt == nil {
		if fix.GroundSpeedKt == nil {
			return false
		}
		return *fix.GroundSpeedKt >= activeSpeedNoAltKt
	}
	if fix.GroundSpeedKt != nil && *fix.GroundSpeedKt >= activeSpeedKt {
		return true
	}
	if fix.AltitudeAGLFt != nil && *fix.AltitudeAGLFt >= activeAGLFt {
		return true
	}
	return false
}

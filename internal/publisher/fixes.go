package publisher

import (
	"encoding/json"
	"time"

	"github.com/ognpipe/ognpipe/internal/tracker"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// fixWire is the published JSON shape of a fix. Optional telemetry is
// omitted rather than null so consumers can treat presence as validity.
type fixWire struct {
	ID            string    `json:"id"`
	AircraftID    string    `json:"aircraft_id"`
	AddressType   uint8     `json:"address_type"`
	AircraftType  uint8     `json:"aircraft_type,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	AltitudeMSLFt *int      `json:"altitude_msl_ft,omitempty"`
	AltitudeAGLFt *int      `json:"altitude_agl_ft,omitempty"`
	Callsign      string    `json:"callsign,omitempty"`
	Squawk        string    `json:"squawk,omitempty"`
	GroundSpeedKt *float32  `json:"ground_speed_kt,omitempty"`
	TrackDeg      *float32  `json:"track_deg,omitempty"`
	ClimbFpm      *int      `json:"climb_fpm,omitempty"`
	TurnRate      *float32  `json:"turn_rate,omitempty"`
	IsActive      bool      `json:"is_active"`
	FlightID      *string   `json:"flight_id,omitempty"`
}

// EncodeFix serializes a fix for publication.
func EncodeFix(fix *tracker.Fix) ([]byte, error) {
	wire := fixWire{
		ID:            fix.ID.String(),
		AircraftID:    fix.AircraftID,
		AddressType:   fix.AddressType,
		AircraftType:  fix.AircraftType,
		Timestamp:     fix.Timestamp,
		Latitude:      fix.Latitude,
		Longitude:     fix.Longitude,
		AltitudeMSLFt: fix.AltitudeMSLFt,
		AltitudeAGLFt: fix.AltitudeAGLFt,
		Callsign:      fix.Callsign,
		Squawk:        fix.Squawk,
		GroundSpeedKt: fix.GroundSpeedKt,
		TrackDeg:      fix.TrackDeg,
		ClimbFpm:      fix.ClimbFpm,
		TurnRate:      fix.TurnRate,
		IsActive:      fix.IsActive,
	}
	if fix.FlightID != nil {
		id := fix.FlightID.String()
		wire.FlightID = &id
	}
	return json.Marshal(wire)
}

// FixFanout adapts a Publisher (and optionally a local broadcaster such as
// the websocket hub) to the tracker's publish hook.
type FixFanout struct {
	publisher Publisher
	local     LocalBroadcaster
	log       *logger.Logger
}

// LocalBroadcaster receives encoded fixes for in-process consumers.
type LocalBroadcaster interface {
	Broadcast(payload []byte)
}

// NewFixFanout builds the fan-out hook. Either argument may be nil.
func NewFixFanout(publisher Publisher, local LocalBroadcaster, log *logger.Logger) *FixFanout {
	return &FixFanout{publisher: publisher, local: local, log: log.Named("fanout")}
}

// PublishFix encodes and fans the fix out. Never blocks the tracker.
func (f *FixFanout) PublishFix(fix *tracker.Fix) {
	payload, err := EncodeFix(fix)
	if err != nil {
		f.log.Warn("Fix encode failed", logger.String("aircraft_id", fix.AircraftID), logger.Error(err))
		return
	}
	if f.publisher != nil {
		f.publisher.PublishFireAndForget(SubjectLiveFixes, payload)
	}
	if f.local != nil {
		f.local.Broadcast(payload)
	}
}

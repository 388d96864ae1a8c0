package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ognpipe/ognpipe/internal/decoder"
	"github.com/ognpipe/ognpipe/internal/tracker"
)

// FixFromAPRS converts a parsed aircraft position packet into a tracker
// fix. The OGN id payload, when present, replaces the APRS from field as
// the aircraft identity since it survives callsign changes.
func FixFromAPRS(pkt *decoder.APRSPacket, pc *PacketContext, timestamp time.Time) (*tracker.Fix, error) {
	pos := pkt.Position
	if pos == nil {
		return nil, fmt.Errorf("packet from %s has no position", pkt.From)
	}

	fix := &tracker.Fix{
		ID:           uuid.New(),
		AircraftID:   pkt.From,
		Timestamp:    timestamp,
		ReceivedAt:   pc.ReceivedAt,
		Latitude:     pos.Latitude,
		Longitude:    pos.Longitude,
		ReceiverID:   pc.ReceiverID,
		RawMessageID: pc.RawMessageID,
	}

	if id := pos.OGNID; id != nil {
		fix.AircraftID = id.Address
		fix.AddressType = id.AddressType
		fix.AircraftType = id.AircraftType
	}
	if pos.AltitudeFt != nil {
		alt := *pos.AltitudeFt
		fix.AltitudeMSLFt = &alt
	}
	if pos.SpeedKt != nil {
		spd := *pos.SpeedKt
		fix.GroundSpeedKt = &spd
	}
	if pos.CourseDeg != nil {
		trk := float32(*pos.CourseDeg)
		fix.TrackDeg = &trk
	}
	if pos.ClimbFpm != nil {
		climb := *pos.ClimbFpm
		fix.ClimbFpm = &climb
	}
	if pos.TurnRate != nil {
		rot := *pos.TurnRate
		fix.TurnRate = &rot
	}
	return fix, nil
}

// FixFromSBS converts a transponder position report into a tracker fix.
// Only messages carrying a position become fixes; velocity-only and
// identification messages update nothing downstream.
func FixFromSBS(msg *decoder.SBSMessage, receivedAt time.Time) (*tracker.Fix, error) {
	if !msg.HasPosition() {
		return nil, fmt.Errorf("message from %s has no position", msg.AircraftID)
	}

	fix := &tracker.Fix{
		ID:          uuid.New(),
		AircraftID:  msg.AircraftID,
		AddressType: 1, // ICAO
		Timestamp:   receivedAt,
		ReceivedAt:  receivedAt,
		Latitude:    *msg.Latitude,
		Longitude:   *msg.Longitude,
		Callsign:    msg.Callsign,
		Squawk:      msg.Squawk,
	}
	if msg.Altitude != nil {
		alt := *msg.Altitude
		fix.AltitudeMSLFt = &alt
	}
	if msg.GroundSpeed != nil {
		spd := *msg.GroundSpeed
		fix.GroundSpeedKt = &spd
	}
	if msg.Track != nil {
		trk := *msg.Track
		fix.TrackDeg = &trk
	}
	if msg.VerticalRate != nil {
		vr := *msg.VerticalRate
		fix.ClimbFpm = &vr
	}
	if msg.OnGround != nil {
		onGround := *msg.OnGround
		fix.TransponderOnGround = &onGround
	}
	return fix, nil
}

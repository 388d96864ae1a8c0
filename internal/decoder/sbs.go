package decoder

import (
	"fmt"
	"strconv"
	"strings"
)

// SBSMessageType enumerates the BaseStation MSG subtypes.
type SBSMessageType uint8

const (
	SBSEsIdentification   SBSMessageType = 1 // callsign
	SBSEsSurfacePosition  SBSMessageType = 2
	SBSEsAirbornePosition SBSMessageType = 3 // altitude, lat/lon
	SBSEsAirborneVelocity SBSMessageType = 4 // speed, track, vertical rate
	SBSSurveillanceAlt    SBSMessageType = 5
	SBSSurveillanceID     SBSMessageType = 6 // squawk
	SBSAirToAir           SBSMessageType = 7
	SBSAllCallReply       SBSMessageType = 8
)

// SBSMessage is one parsed BaseStation CSV line. Unpopulated CSV fields stay
// nil so downstream code can tell "absent" from zero.
type SBSMessage struct {
	MessageType      SBSMessageType
	TransmissionType *uint8
	SessionID        string
	AircraftID       string // ICAO hex address as transmitted
	IsMilitary       *bool
	Callsign         string
	Altitude         *int
	GroundSpeed      *float32
	Track            *float32
	Latitude         *float64
	Longitude        *float64
	VerticalRate     *int
	Squawk           string
	Alert            *bool
	Emergency        *bool
	SPI              *bool
	OnGround         *bool
}

// ICAOAddress parses AircraftID as a hex Mode-S address.
func (m *SBSMessage) ICAOAddress() (uint32, bool) {
	v, err := strconv.ParseUint(m.AircraftID, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// HasPosition reports whether the line carried both coordinates.
func (m *SBSMessage) HasPosition() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// HasVelocity reports whether the line carried speed or vertical rate.
func (m *SBSMessage) HasVelocity() bool {
	return m.GroundSpeed != nil || m.VerticalRate != nil
}

// ParseSBSMessage parses one SBS BaseStation CSV line:
//
//	MSG,<type>,<transmission>,<session>,<hexid>,<military>,<dates...>,
//	<callsign>,<altitude>,<speed>,<track>,<lat>,<lon>,<vrate>,<squawk>,
//	<alert>,<emergency>,<spi>,<onground>
//
// Only the first five fields are required; everything after is optional.
// The generation/logging date fields (6-9) are ignored, the receipt
// timestamp supplied with the envelope is authoritative.
func ParseSBSMessage(line string) (*SBSMessage, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(fields) < 5 {
		return nil, fmt.Errorf("sbs line too short: expected at least 5 fields, got %d", len(fields))
	}
	if fields[0] != "MSG" {
		return nil, fmt.Errorf("sbs line must start with MSG, got %q", fields[0])
	}

	typeNum, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid sbs message type %q: %w", fields[1], err)
	}
	if typeNum < 1 || typeNum > 8 {
		return nil, fmt.Errorf("unknown sbs message type: %d", typeNum)
	}

	if fields[4] == "" {
		return nil, fmt.Errorf("sbs aircraft id is required")
	}

	msg := &SBSMessage{
		MessageType:      SBSMessageType(typeNum),
		TransmissionType: sbsOptU8(fields, 2),
		SessionID:        sbsField(fields, 3),
		AircraftID:       fields[4],
		IsMilitary:       sbsOptBool(fields, 5),
		Callsign:         strings.TrimSpace(sbsField(fields, 10)),
		Altitude:         sbsOptInt(fields, 11),
		GroundSpeed:      sbsOptF32(fields, 12),
		Track:            sbsOptF32(fields, 13),
		Latitude:         sbsOptF64(fields, 14),
		Longitude:        sbsOptF64(fields, 15),
		VerticalRate:     sbsOptInt(fields, 16),
		Squawk:           sbsField(fields, 17),
		Alert:            sbsOptBool(fields, 18),
		Emergency:        sbsOptBool(fields, 19),
		SPI:              sbsOptBool(fields, 20),
		OnGround:         sbsOptBool(fields, 21),
	}
	return msg, nil
}

func sbsField(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return fields[i]
}

func sbsOptU8(fields []string, i int) *uint8 {
	s := sbsField(fields, i)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return nil
	}
	u := uint8(v)
	return &u
}

func sbsOptInt(fields []string, i int) *int {
	s := sbsField(fields, i)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func sbsOptF32(fields []string, i int) *float32 {
	s := sbsField(fields, i)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return nil
	}
	f := float32(v)
	return &f
}

func sbsOptF64(fields []string, i int) *float64 {
	s := sbsField(fields, i)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func sbsOptBool(fields []string, i int) *bool {
	switch sbsField(fields, i) {
	case "1":
		b := true
		return &b
	case "0", "-1":
		b := false
		return &b
	default:
		return nil
	}
}

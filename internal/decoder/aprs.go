package decoder

import (
	"fmt"
	"strconv"
	"strings"
)

// PositionSourceType classifies who transmitted a position packet.
type PositionSourceType int

const (
	SourceTypeUnknown PositionSourceType = iota
	SourceTypeAircraft
	SourceTypeReceiver
	SourceTypeWeatherStation
)

func (t PositionSourceType) String() string {
	switch t {
	case SourceTypeAircraft:
		return "aircraft"
	case SourceTypeReceiver:
		return "receiver"
	case SourceTypeWeatherStation:
		return "weather_station"
	default:
		return "unknown"
	}
}

// OGNAircraftID is the "idXXYYYYYY" field from an OGN position comment.
type OGNAircraftID struct {
	Address      string // 6 hex digits
	AddressType  uint8  // 0 random, 1 ICAO, 2 FLARM, 3 OGN
	AircraftType uint8
	Stealth      bool
	NoTrack      bool
}

// APRSPosition is the decoded body of a position report.
type APRSPosition struct {
	Latitude    float64
	Longitude   float64
	SymbolTable byte
	SymbolCode  byte
	CourseDeg   *int
	SpeedKt     *float32
	AltitudeFt  *int
	ClimbFpm    *int
	TurnRate    *float32
	SignalDB    *float32
	OGNID       *OGNAircraftID
	Comment     string
}

// APRSStatus is the decoded body of a status report.
type APRSStatus struct {
	Comment string
}

// APRSPacket is one parsed APRS/OGN line. Exactly one of Position and
// Status is non-nil for the packet kinds this pipeline routes; both are nil
// for other payload types (messages, telemetry), which are archived only.
type APRSPacket struct {
	Raw      string
	From     string
	To       string
	Via      []string
	Position *APRSPosition
	Status   *APRSStatus
}

// Destination calls used by OGN receivers vs. tracking devices.
var (
	aprsReceiverDests = map[string]bool{"OGNSDR": true}

	aprsAircraftDests = map[string]bool{
		"OGFLR": true, "OGNFLR": true, "OGNTRK": true, "OGNFNT": true,
		"OGADSB": true, "OGAPIK": true, "OGFLYM": true, "OGPAW": true,
		"OGSPOT": true, "OGSKYL": true, "OGNAVI": true, "OGNINRE": true,
		"OGLT24": true, "OGCAPT": true, "OGNMTK": true,
	}
)

// ParseAPRS parses one APRS-IS line (header plus position or status
// payload). Lines beginning with '#' are server chatter and must be handled
// before calling this.
func ParseAPRS(line string) (*APRSPacket, error) {
	line = strings.TrimRight(line, "\r\n")

	gt := strings.Index(line, ">")
	if gt <= 0 {
		return nil, fmt.Errorf("missing source callsign in %q", truncateForError(line))
	}
	colon := strings.Index(line, ":")
	if colon < gt {
		return nil, fmt.Errorf("missing payload separator in %q", truncateForError(line))
	}

	pkt := &APRSPacket{
		Raw:  line,
		From: line[:gt],
	}
	path := strings.Split(line[gt+1:colon], ",")
	pkt.To = path[0]
	if len(path) > 1 {
		pkt.Via = path[1:]
	}

	payload := line[colon+1:]
	if payload == "" {
		return nil, fmt.Errorf("empty payload in %q", truncateForError(line))
	}

	switch payload[0] {
	case '!', '=':
		pos, err := parsePositionBody(payload[1:])
		if err != nil {
			return nil, err
		}
		pkt.Position = pos
	case '/', '@':
		// Timestamped position: 7-char HHMMSSh or DDHHMMz prefix.
		if len(payload) < 8 {
			return nil, fmt.Errorf("truncated timestamped position %q", truncateForError(payload))
		}
		pos, err := parsePositionBody(payload[8:])
		if err != nil {
			return nil, err
		}
		pkt.Position = pos
	case '>':
		comment := payload[1:]
		// Optional DDHHMMz timestamp prefix on status reports.
		if len(comment) >= 7 && comment[6] == 'z' && allDigits(comment[:6]) {
			comment = strings.TrimPrefix(comment[7:], " ")
		}
		pkt.Status = &APRSStatus{Comment: comment}
	default:
		// Other data types (messages, telemetry, objects) are valid APRS
		// but carry nothing this pipeline routes.
	}

	return pkt, nil
}

// PositionSourceType classifies the packet's originator. Devices carrying an
// OGN id are aircraft; receivers identify by the OGNSDR destination or the
// gateway symbol; weather stations by the weather symbol.
func (p *APRSPacket) PositionSourceType() PositionSourceType {
	if p.Position == nil {
		return SourceTypeUnknown
	}
	if p.Position.OGNID != nil {
		return SourceTypeAircraft
	}
	if aprsReceiverDests[p.To] || p.Position.SymbolCode == '&' {
		return SourceTypeReceiver
	}
	if p.Position.SymbolCode == '_' {
		return SourceTypeWeatherStation
	}
	if aprsAircraftDests[p.To] {
		return SourceTypeAircraft
	}
	switch p.Position.SymbolCode {
	case '^', '\'', 'g', 'X', 'O', 'J':
		return SourceTypeAircraft
	}
	return SourceTypeUnknown
}

// parsePositionBody decodes "DDMM.mmN<sym>DDDMM.mmE<sym><extensions>".
func parsePositionBody(body string) (*APRSPosition, error) {
	if len(body) < 19 {
		return nil, fmt.Errorf("unsupported position format: %q too short", truncateForError(body))
	}

	lat, err := parseLatitude(body[0:8])
	if err != nil {
		return nil, err
	}
	lng, err := parseLongitude(body[9:18])
	if err != nil {
		return nil, err
	}

	pos := &APRSPosition{
		Latitude:    lat,
		Longitude:   lng,
		SymbolTable: body[8],
		SymbolCode:  body[18],
		Comment:     body[19:],
	}
	parsePositionExtensions(pos)
	return pos, nil
}

func parseLatitude(s string) (float64, error) {
	// DDMM.mmN
	if len(s) != 8 || s[4] != '.' {
		return 0, fmt.Errorf("invalid latitude %q", s)
	}
	deg, err1 := strconv.Atoi(s[0:2])
	min, err2 := strconv.ParseFloat(s[2:7], 64)
	if err1 != nil || err2 != nil || deg > 90 {
		return 0, fmt.Errorf("invalid latitude %q", s)
	}
	v := float64(deg) + min/60.0
	switch s[7] {
	case 'N':
		return v, nil
	case 'S':
		return -v, nil
	}
	return 0, fmt.Errorf("invalid latitude %q", s)
}

func parseLongitude(s string) (float64, error) {
	// DDDMM.mmE
	if len(s) != 9 || s[5] != '.' {
		return 0, fmt.Errorf("invalid longitude %q", s)
	}
	deg, err1 := strconv.Atoi(s[0:3])
	min, err2 := strconv.ParseFloat(s[3:8], 64)
	if err1 != nil || err2 != nil || deg > 180 {
		return 0, fmt.Errorf("invalid longitude %q", s)
	}
	v := float64(deg) + min/60.0
	switch s[8] {
	case 'E':
		return v, nil
	case 'W':
		return -v, nil
	}
	return 0, fmt.Errorf("invalid longitude %q", s)
}

// parsePositionExtensions pulls course/speed, altitude and the OGN comment
// fields out of the trailing comment text.
func parsePositionExtensions(pos *APRSPosition) {
	comment := pos.Comment

	// ccc/sss course and speed lead the comment when present.
	if len(comment) >= 7 && comment[3] == '/' &&
		allDigits(comment[0:3]) && allDigits(comment[4:7]) {
		course, _ := strconv.Atoi(comment[0:3])
		speed, _ := strconv.Atoi(comment[4:7])
		if course <= 360 {
			pos.CourseDeg = &course
			f := float32(speed)
			pos.SpeedKt = &f
			comment = comment[7:]
		}
	}

	// /A=nnnnnn altitude in feet.
	if idx := strings.Index(comment, "/A="); idx >= 0 && len(comment) >= idx+9 {
		if alt, err := strconv.Atoi(comment[idx+3 : idx+9]); err == nil {
			pos.AltitudeFt = &alt
		}
	}

	// !Wab! precision enhancement adds the third decimal of minutes.
	if idx := strings.Index(comment, "!W"); idx >= 0 && len(comment) >= idx+5 && comment[idx+4] == '!' {
		latDigit := comment[idx+2]
		lngDigit := comment[idx+3]
		if latDigit >= '0' && latDigit <= '9' && lngDigit >= '0' && lngDigit <= '9' {
			latExtra := float64(latDigit-'0') * 0.001 / 60.0
			lngExtra := float64(lngDigit-'0') * 0.001 / 60.0
			if pos.Latitude >= 0 {
				pos.Latitude += latExtra
			} else {
				pos.Latitude -= latExtra
			}
			if pos.Longitude >= 0 {
				pos.Longitude += lngExtra
			} else {
				pos.Longitude -= lngExtra
			}
		}
	}

	for _, tok := range strings.Fields(comment) {
		switch {
		case strings.HasPrefix(tok, "id") && len(tok) == 10 && isHex(tok[2:]):
			flags, _ := strconv.ParseUint(tok[2:4], 16, 8)
			pos.OGNID = &OGNAircraftID{
				Address:      tok[4:10],
				AddressType:  uint8(flags & 0x03),
				AircraftType: uint8((flags >> 2) & 0x0F),
				NoTrack:      flags&0x40 != 0,
				Stealth:      flags&0x80 != 0,
			}
		case strings.HasSuffix(tok, "fpm"):
			if v, err := strconv.Atoi(strings.TrimSuffix(tok, "fpm")); err == nil {
				pos.ClimbFpm = &v
			}
		case strings.HasSuffix(tok, "rot"):
			if v, err := strconv.ParseFloat(strings.TrimSuffix(tok, "rot"), 32); err == nil {
				f := float32(v)
				pos.TurnRate = &f
			}
		case strings.HasSuffix(tok, "dB"):
			if v, err := strconv.ParseFloat(strings.TrimSuffix(tok, "dB"), 32); err == nil {
				f := float32(v)
				pos.SignalDB = &f
			}
		}
	}
}

// IsBenignAPRSParseError reports whether a parse failure belongs to the
// known-noisy FANET relay class. These arrive in volume with malformed
// coordinates and would drown the log at normal severity.
func IsBenignAPRSParseError(line string, err error) bool {
	if err == nil || !strings.Contains(line, "OGNFNT") {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid latitude") ||
		strings.Contains(msg, "invalid longitude") ||
		strings.Contains(msg, "unsupported position format")
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return len(s) > 0
}

func truncateForError(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}

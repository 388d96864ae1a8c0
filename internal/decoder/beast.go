// Package decoder turns raw feed bytes and lines into typed messages.
// Everything in here is stateless apart from the Beast stream scanner, which
// carries partial-frame state between reads.
package decoder

import (
	"fmt"
	"time"
)

const (
	beastFrameStart = 0x1A

	// type byte + 6-byte receiver timestamp + signal level byte
	beastHeaderLen = 9

	beastMinFrameLen = beastHeaderLen + beastPayloadModeAC
)

// Beast payload sizes by frame type.
const (
	beastPayloadModeAC     = 2  // Mode A/C
	beastPayloadModeSShort = 7  // short Mode-S
	beastPayloadModeSLong  = 14 // long Mode-S
)

// BeastMessage is one decoded Mode-S Beast frame. The receiver's internal
// 6-byte counter is discarded; Timestamp is the receipt time supplied by the
// caller, which is the only clock comparable across receivers.
type BeastMessage struct {
	Timestamp   time.Time
	MessageType byte
	SignalLevel byte
	RawFrame    []byte
}

// DecodeBeastFrame validates and decodes a complete unescaped Beast frame:
// [0x1A][type:1][timestamp:6][signal:1][payload: 2|7|14 bytes].
func DecodeBeastFrame(frame []byte, receivedAt time.Time) (*BeastMessage, error) {
	if len(frame) < beastMinFrameLen {
		return nil, fmt.Errorf("beast frame too short: expected at least %d bytes, got %d",
			beastMinFrameLen, len(frame))
	}
	if frame[0] != beastFrameStart {
		return nil, fmt.Errorf("beast frame must start with 0x%02X, got 0x%02X",
			beastFrameStart, frame[0])
	}

	payloadLen := len(frame) - 1 - beastHeaderLen
	switch payloadLen {
	case beastPayloadModeAC, beastPayloadModeSShort, beastPayloadModeSLong:
	default:
		return nil, fmt.Errorf("beast payload length must be %d, %d or %d bytes, got %d",
			beastPayloadModeAC, beastPayloadModeSShort, beastPayloadModeSLong, payloadLen)
	}

	payload := make([]byte, payloadLen)
	copy(payload, frame[1+beastHeaderLen:])

	return &BeastMessage{
		Timestamp:   receivedAt,
		MessageType: frame[1],
		SignalLevel: frame[1+beastHeaderLen-1],
		RawFrame:    payload,
	}, nil
}

// BeastScanner splits a raw Beast byte stream into frames. On the wire a
// literal 0x1A inside a frame is escaped as 0x1A 0x1A, and an unescaped 0x1A
// marks the start of the next frame. The scanner keeps partial state so
// frames split across read buffers are reassembled correctly.
type BeastScanner struct {
	frame         []byte
	pendingEscape bool
}

// NewBeastScanner returns an empty scanner.
func NewBeastScanner() *BeastScanner {
	return &BeastScanner{frame: make([]byte, 0, 32)}
}

// Feed consumes one read buffer and returns every complete frame it closed.
// Returned frames are unescaped and include the leading 0x1A marker, ready
// for DecodeBeastFrame. The frame still being assembled stays buffered until
// the next frame-start byte arrives.
func (s *BeastScanner) Feed(data []byte) [][]byte {
	var frames [][]byte

	i := 0
	if s.pendingEscape && len(data) > 0 {
		s.pendingEscape = false
		if data[0] == beastFrameStart {
			// Escaped literal 0x1A split across buffers.
			s.frame = append(s.frame, beastFrameStart)
		} else {
			// The buffered 0x1A was a frame boundary.
			if f := s.finishFrame(); f != nil {
				frames = append(frames, f)
			}
			s.frame = append(s.frame, beastFrameStart, data[0])
		}
		i = 1
	}

	for i < len(data) {
		b := data[i]
		if b != beastFrameStart {
			if len(s.frame) > 0 {
				s.frame = append(s.frame, b)
			}
			i++
			continue
		}

		if i+1 >= len(data) {
			// Cannot tell escape from boundary until the next buffer.
			s.pendingEscape = true
			i++
			continue
		}
		if data[i+1] == beastFrameStart {
			s.frame = append(s.frame, beastFrameStart)
			i += 2
			continue
		}

		if f := s.finishFrame(); f != nil {
			frames = append(frames, f)
		}
		s.frame = append(s.frame, beastFrameStart)
		i++
	}

	return frames
}

func (s *BeastScanner) finishFrame() []byte {
	if len(s.frame) == 0 {
		return nil
	}
	f := make([]byte, len(s.frame))
	copy(f, s.frame)
	s.frame = s.frame[:0]
	return f
}

package router

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ognpipe/ognpipe/internal/envelope"
)

// Receiver is a ground station that relayed packets to the network.
type Receiver struct {
	ID         uuid.UUID
	Callsign   string
	Latitude   *float64
	Longitude  *float64
	AltitudeFt *int
	Status     string
	FirstSeen  time.Time
	LastSeen   time.Time
}

// RawMessage is one archived inbound message exactly as received.
type RawMessage struct {
	ID         uuid.UUID
	Source     envelope.Source
	Raw        []byte
	ReceivedAt time.Time
}

// ServerMessage is a parsed APRS-IS server heartbeat line.
type ServerMessage struct {
	ID         uuid.UUID
	Software   string
	ServerName string
	Endpoint   string
	ServerTime time.Time
	ReceivedAt time.Time
	LagMS      int64
	Raw        string
}

// PacketContext carries the identities generic processing established, so
// specialized processors never re-derive the receiver or re-insert the raw
// message.
type PacketContext struct {
	RawMessageID uuid.UUID
	ReceiverID   uuid.UUID
	ReceivedAt   time.Time
}

// ReceiverRepository persists receiver entities keyed by callsign.
type ReceiverRepository interface {
	UpsertByCallsign(ctx context.Context, callsign string, seenAt time.Time) (uuid.UUID, error)
	UpdatePosition(ctx context.Context, id uuid.UUID, lat, lng float64, altitudeFt *int, at time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) error
}

// RawMessageRepository persists raw inbound messages.
type RawMessageRepository interface {
	Insert(ctx context.Context, msg *RawMessage) error
}

// ServerMessageRepository persists parsed server heartbeats.
type ServerMessageRepository interface {
	Insert(ctx context.Context, msg *ServerMessage) error
}

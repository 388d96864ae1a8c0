package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Server heartbeat lines look like:
//
//	# aprsc 2.1.15-gc67551b 22 Sep 2025 21:51:55 GMT GLIDERN1 51.178.19.212:10152
const serverTimeLayout = "2 Jan 2006 15:04:05 GMT"

// ParseServerMessage parses an APRS server comment line into a
// ServerMessage, computing the lag between the server timestamp and our
// receive time.
func ParseServerMessage(line string, receivedAt time.Time) (*ServerMessage, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "#"))
	parts := strings.Fields(trimmed)
	if len(parts) < 9 {
		return nil, fmt.Errorf("server message has %d fields, expected at least 9", len(parts))
	}

	serverTime, err := time.Parse(serverTimeLayout, strings.Join(parts[2:7], " "))
	if err != nil {
		return nil, fmt.Errorf("parsing server timestamp: %w", err)
	}

	return &ServerMessage{
		ID:         uuid.New(),
		Software:   parts[0] + " " + parts[1],
		ServerName: parts[7],
		Endpoint:   parts[8],
		ServerTime: serverTime,
		ReceivedAt: receivedAt,
		LagMS:      receivedAt.Sub(serverTime).Milliseconds(),
		Raw:        line,
	}, nil
}

package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ognpipe/ognpipe/internal/tracker"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

type captureBroadcaster struct {
	payloads [][]byte
}

func (c *captureBroadcaster) Broadcast(payload []byte) {
	c.payloads = append(c.payloads, payload)
}

func TestEncodeFixOmitsMissingTelemetry(t *testing.T) {
	fix := &tracker.Fix{
		ID:         uuid.New(),
		AircraftID: "DD1234",
		Timestamp:  time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC),
		Latitude:   46.955,
		Longitude:  7.881,
		IsActive:   true,
	}
	payload, err := EncodeFix(fix)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "DD1234", decoded["aircraft_id"])
	assert.Equal(t, true, decoded["is_active"])
	assert.NotContains(t, decoded, "altitude_msl_ft")
	assert.NotContains(t, decoded, "callsign")
	assert.NotContains(t, decoded, "flight_id")
}

func TestEncodeFixCarriesFlightID(t *testing.T) {
	flightID := uuid.New()
	alt := 3054
	fix := &tracker.Fix{
		ID:            uuid.New(),
		AircraftID:    "DD1234",
		Timestamp:     time.Now(),
		Latitude:      46.955,
		Longitude:     7.881,
		AltitudeMSLFt: &alt,
		FlightID:      &flightID,
	}
	payload, err := EncodeFix(fix)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, flightID.String(), decoded["flight_id"])
	assert.Equal(t, float64(3054), decoded["altitude_msl_ft"])
}

func TestFixFanoutBroadcastsLocally(t *testing.T) {
	local := &captureBroadcaster{}
	fanout := NewFixFanout(nil, local, logger.NewNop())

	fanout.PublishFix(&tracker.Fix{
		ID:         uuid.New(),
		AircraftID: "DD1234",
		Timestamp:  time.Now(),
	})
	require.Len(t, local.payloads, 1)
	assert.Contains(t, string(local.payloads[0]), "DD1234")
}

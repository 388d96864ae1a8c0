package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSBSAirbornePosition(t *testing.T) {
	line := "MSG,3,1,1,4CA2D6,1,2026/03/14,12:00:01.000,2026/03/14,12:00:01.000,,37000,,,51.45735,-1.02826,,,0,0,0,0"

	msg, err := ParseSBSMessage(line)
	require.NoError(t, err)

	assert.Equal(t, SBSEsAirbornePosition, msg.MessageType)
	assert.Equal(t, "4CA2D6", msg.AircraftID)
	require.NotNil(t, msg.Altitude)
	assert.Equal(t, 37000, *msg.Altitude)
	require.True(t, msg.HasPosition())
	assert.InDelta(t, 51.45735, *msg.Latitude, 1e-6)
	assert.InDelta(t, -1.02826, *msg.Longitude, 1e-6)
	assert.Nil(t, msg.GroundSpeed)
	require.NotNil(t, msg.OnGround)
	assert.False(t, *msg.OnGround)

	icao, ok := msg.ICAOAddress()
	require.True(t, ok)
	assert.Equal(t, uint32(0x4CA2D6), icao)
}

func TestParseSBSVelocity(t *testing.T) {
	line := "MSG,4,1,1,4CA2D6,1,2026/03/14,12:00:01.000,2026/03/14,12:00:01.000,,,288.6,103.2,,,-832,,,,,"

	msg, err := ParseSBSMessage(line)
	require.NoError(t, err)

	assert.Equal(t, SBSEsAirborneVelocity, msg.MessageType)
	assert.True(t, msg.HasVelocity())
	assert.False(t, msg.HasPosition())
	assert.InDelta(t, 288.6, float64(*msg.GroundSpeed), 0.01)
	assert.InDelta(t, 103.2, float64(*msg.Track), 0.01)
	assert.Equal(t, -832, *msg.VerticalRate)
}

func TestParseSBSIdentification(t *testing.T) {
	line := "MSG,1,1,1,400F01,1,2026/03/14,12:00:01.000,2026/03/14,12:00:01.000,BAW256  ,,,,,,,,,,,"

	msg, err := ParseSBSMessage(line)
	require.NoError(t, err)
	assert.Equal(t, SBSEsIdentification, msg.MessageType)
	assert.Equal(t, "BAW256", msg.Callsign)
}

func TestParseSBSShortLineWithOnlyRequiredFields(t *testing.T) {
	msg, err := ParseSBSMessage("MSG,8,1,1,ABC123")
	require.NoError(t, err)
	assert.Equal(t, SBSAllCallReply, msg.MessageType)
	assert.Equal(t, "ABC123", msg.AircraftID)
	assert.Nil(t, msg.Altitude)
}

func TestParseSBSRejectsMalformedLines(t *testing.T) {
	cases := map[string]string{
		"too few fields":      "MSG,3,1",
		"wrong prefix":        "SEL,3,1,1,ABC123",
		"bad type":            "MSG,x,1,1,ABC123",
		"out of range type":   "MSG,9,1,1,ABC123",
		"missing aircraft id": "MSG,3,1,1,",
	}
	for name, line := range cases {
		_, err := ParseSBSMessage(line)
		assert.Error(t, err, name)
	}
}

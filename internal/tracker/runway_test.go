package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadingToRunwayIdentifier(t *testing.T) {
	cases := map[float64]string{
		230: "23",
		47:  "05",
		354: "35",
		360: "36",
		0:   "36",
		95:  "10",
	}
	for heading, want := range cases {
		assert.Equal(t, want, headingToRunwayIdentifier(heading), "heading %v", heading)
	}
}

func TestAircraftUsesRunways(t *testing.T) {
	assert.True(t, aircraftUsesRunways(AircraftTypeGlider))
	assert.True(t, aircraftUsesRunways(AircraftTypeTowPlane))
	assert.True(t, aircraftUsesRunways(0)) // unknown defaults to yes
	assert.False(t, aircraftUsesRunways(7))
	assert.False(t, aircraftUsesRunways(3))
}

package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func compactFix(active bool, secondsOffset int) CompactFix {
	alt := 1000
	aglFt := 500
	speed := float32(5.0)
	if active {
		speed = 50.0
	}
	return CompactFix{
		Timestamp:     testBase.Add(time.Duration(secondsOffset) * time.Second),
		Lat:           42.0,
		Lng:           -71.0,
		AltitudeMSLFt: &alt,
		AltitudeAGLFt: &aglFt,
		GroundSpeedKt: &speed,
		IsActive:      active,
	}
}

func stateWithFixes(activity ...bool) *AircraftState {
	s := &AircraftState{LastUpdateTime: time.Now()}
	for i, active := range activity {
		s.RecentFixes = append(s.RecentFixes, compactFix(active, i*30))
	}
	return s
}

func TestAddFixBoundedHistory(t *testing.T) {
	fix := &Fix{Timestamp: testBase, Latitude: 1, Longitude: 2}
	s := NewAircraftState(fix, false)

	for i := 0; i < 50; i++ {
		f := &Fix{Timestamp: testBase.Add(time.Duration(i+1) * time.Minute), Latitude: float64(i)}
		s.AddFix(f, true)
		assert.LessOrEqual(t, len(s.RecentFixes), maxRecentFixes)
	}

	require.Len(t, s.RecentFixes, maxRecentFixes)
	// Oldest evicted first: the newest ten survive in order.
	assert.Equal(t, float64(40), s.RecentFixes[0].Lat)
	assert.Equal(t, float64(49), s.RecentFixes[maxRecentFixes-1].Lat)
}

func TestHasFiveConsecutiveInactive(t *testing.T) {
	assert.True(t, stateWithFixes(false, false, false, false, false).HasFiveConsecutiveInactive())
	assert.True(t, stateWithFixes(true, false, false, false, false, false).HasFiveConsecutiveInactive())

	// Only four inactive, or an active fix inside the window.
	assert.False(t, stateWithFixes(false, false, false, false).HasFiveConsecutiveInactive())
	assert.False(t, stateWithFixes(false, false, false, false, true).HasFiveConsecutiveInactive())
	assert.False(t, stateWithFixes(false, false, true, false, false).HasFiveConsecutiveInactive())
}

func TestLastNInactiveSkipsCurrentFix(t *testing.T) {
	// Ground, ground, ground, then the active fix that triggered takeoff.
	assert.True(t, stateWithFixes(false, false, false, true).LastNInactive(3))

	// Needs n+1 fixes: three alone are not enough.
	assert.False(t, stateWithFixes(false, false, false).LastNInactive(3))

	// A prior active fix means the aircraft was already flying.
	assert.False(t, stateWithFixes(false, true, false, true).LastNInactive(3))

	assert.True(t, stateWithFixes(false, false, false, false, false, false, false, true).LastNInactive(3))
	assert.False(t, stateWithFixes().LastNInactive(3))
	assert.False(t, stateWithFixes(true).LastNInactive(3))
}

func TestTakeoffAndLandingUseDifferentWindows(t *testing.T) {
	// Same history reads differently for the two detectors: takeoff skips
	// the current active fix, landing includes it.
	s := stateWithFixes(false, false, false, false, true)
	assert.True(t, s.LastNInactive(3))
	assert.False(t, s.HasFiveConsecutiveInactive())
}

func altFix(secondsOffset int, altitudeFt int) CompactFix {
	alt := altitudeFt
	return CompactFix{
		Timestamp:     testBase.Add(time.Duration(secondsOffset) * time.Second),
		AltitudeMSLFt: &alt,
	}
}

func TestCalculateClimbRate(t *testing.T) {
	// 100 ft gained over 10 s is 600 ft/min.
	s := &AircraftState{RecentFixes: []CompactFix{altFix(0, 1000), altFix(10, 1100)}}
	rate := s.CalculateClimbRate()
	require.NotNil(t, rate)
	assert.Equal(t, 600, *rate)

	// Descent works the same way.
	s = &AircraftState{RecentFixes: []CompactFix{altFix(0, 2000), altFix(30, 1700)}}
	rate = s.CalculateClimbRate()
	require.NotNil(t, rate)
	assert.Equal(t, -600, *rate)
}

func TestCalculateClimbRateRejectsNarrowSpacing(t *testing.T) {
	s := &AircraftState{RecentFixes: []CompactFix{altFix(0, 1000), altFix(3, 1100)}}
	assert.Nil(t, s.CalculateClimbRate())
}

func TestCalculateClimbRateNeedsAltitudeData(t *testing.T) {
	assert.Nil(t, (&AircraftState{}).CalculateClimbRate())

	noAlt := CompactFix{Timestamp: testBase}
	s := &AircraftState{RecentFixes: []CompactFix{noAlt, altFix(10, 1000)}}
	assert.Nil(t, s.CalculateClimbRate())
}

func TestCalculateClimbRateIgnoresFixesOutsideWindow(t *testing.T) {
	// A fix older than 60 s relative to the newest is excluded, leaving a
	// single in-window altitude fix and therefore no rate.
	s := &AircraftState{RecentFixes: []CompactFix{altFix(0, 1000), altFix(90, 2000)}}
	assert.Nil(t, s.CalculateClimbRate())
}

func TestDetermineFlightPhase(t *testing.T) {
	climbing := &AircraftState{RecentFixes: []CompactFix{altFix(0, 1000), altFix(10, 1100)}}
	assert.Equal(t, PhaseClimbing, climbing.DetermineFlightPhase())

	descending := &AircraftState{RecentFixes: []CompactFix{altFix(0, 2000), altFix(10, 1900)}}
	assert.Equal(t, PhaseDescending, descending.DetermineFlightPhase())

	// High and level: cruising.
	cruising := &AircraftState{RecentFixes: []CompactFix{altFix(0, 12000), altFix(30, 12010)}}
	assert.Equal(t, PhaseCruising, cruising.DetermineFlightPhase())

	// High altitude with indeterminate climb still counts as cruising.
	oneHigh := &AircraftState{RecentFixes: []CompactFix{altFix(0, 12000)}}
	assert.Equal(t, PhaseCruising, oneHigh.DetermineFlightPhase())

	// Low and level: unknown.
	low := &AircraftState{RecentFixes: []CompactFix{altFix(0, 1000), altFix(30, 1005)}}
	assert.Equal(t, PhaseUnknown, low.DetermineFlightPhase())
}

func f32p(v float32) *float32 { return &v }
func intp(v int) *int         { return &v }

func TestShouldBeActive(t *testing.T) {
	// No altitude data at all: only a clearly flying speed counts.
	assert.False(t, ShouldBeActive(&Fix{GroundSpeedKt: f32p(79)}))
	assert.True(t, ShouldBeActive(&Fix{GroundSpeedKt: f32p(80)}))
	assert.False(t, ShouldBeActive(&Fix{}))

	// With altitude data, speed >= 25 kt or AGL >= 250 ft is active.
	assert.True(t, ShouldBeActive(&Fix{AltitudeMSLFt: intp(1000), GroundSpeedKt: f32p(25)}))
	assert.False(t, ShouldBeActive(&Fix{AltitudeMSLFt: intp(1000), GroundSpeedKt: f32p(24)}))
	assert.True(t, ShouldBeActive(&Fix{AltitudeMSLFt: intp(5000), AltitudeAGLFt: intp(250), GroundSpeedKt: f32p(5)}))
	assert.False(t, ShouldBeActive(&Fix{AltitudeMSLFt: intp(5000), AltitudeAGLFt: intp(249), GroundSpeedKt: f32p(5)}))
}

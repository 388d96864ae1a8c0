package tracker

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	maxRecentFixes = 10

	landingDebounceFixes = 5
	takeoffInactiveFixes = 3

	climbRateWindow     = 60 * time.Second
	climbRateMinSpacing = 5 * time.Second
)

// FlightPhase labels what a flight was doing, used when deciding how to
// close out a timed-out flight.
type FlightPhase int

const (
	PhaseUnknown FlightPhase = iota
	PhaseClimbing
	PhaseDescending
	PhaseCruising
)

func (p FlightPhase) String() string {
	switch p {
	case PhaseClimbing:
		return "climbing"
	case PhaseDescending:
		return "descending"
	case PhaseCruising:
		return "cruising"
	default:
		return "unknown"
	}
}

// AircraftState is the per-aircraft tracking state. The ten-fix history is
// enough for takeoff detection (previous 3 inactive), landing debounce
// (5 consecutive inactive) and climb-rate estimation. Oldest fixes are
// evicted first. CurrentFlightID is non-nil exactly while the aircraft is
// considered airborne.
type AircraftState struct {
	RecentFixes     []CompactFix // oldest first, len <= 10
	CurrentFlightID *uuid.UUID
	CurrentCallsign string
	AircraftType    uint8
	LastUpdateTime  time.Time
	TowingInfo      *TowingInfo
	// Whether the current flight's takeoff runway came from heading
	// inference; nil when no runway was recorded.
	TakeoffRunwayInferred *bool
}

// NewAircraftState seeds a state with its first fix.
func NewAircraftState(fix *Fix, isActive bool) *AircraftState {
	s := &AircraftState{
		RecentFixes:    make([]CompactFix, 0, maxRecentFixes),
		AircraftType:   fix.AircraftType,
		LastUpdateTime: time.Now(),
	}
	s.RecentFixes = append(s.RecentFixes, CompactFromFix(fix, isActive))
	return s
}

// AddFix appends to the history, evicting the oldest entry past ten.
func (s *AircraftState) AddFix(fix *Fix, isActive bool) {
	s.LastUpdateTime = time.Now()
	if fix.AircraftType != 0 {
		s.AircraftType = fix.AircraftType
	}
	if len(s.RecentFixes) >= maxRecentFixes {
		copy(s.RecentFixes, s.RecentFixes[1:])
		s.RecentFixes = s.RecentFixes[:maxRecentFixes-1]
	}
	s.RecentFixes = append(s.RecentFixes, CompactFromFix(fix, isActive))
}

// LastFix returns the newest fix in the history.
func (s *AircraftState) LastFix() *CompactFix {
	if len(s.RecentFixes) == 0 {
		return nil
	}
	return &s.RecentFixes[len(s.RecentFixes)-1]
}

// PreviousFix returns the fix before the newest one.
func (s *AircraftState) PreviousFix() *CompactFix {
	if len(s.RecentFixes) < 2 {
		return nil
	}
	return &s.RecentFixes[len(s.RecentFixes)-2]
}

// HasFiveConsecutiveInactive reports whether the newest five fixes,
// including the current one, are all inactive. Landing debounce.
func (s *AircraftState) HasFiveConsecutiveInactive() bool {
	if len(s.RecentFixes) < landingDebounceFixes {
		return false
	}
	for _, f := range s.RecentFixes[len(s.RecentFixes)-landingDebounceFixes:] {
		if f.IsActive {
			return false
		}
	}
	return true
}

// LastNInactive reports whether the n fixes before the current one are all
// inactive. The current fix is skipped because takeoff detection runs after
// the triggering active fix has already been appended; it needs n+1 fixes.
func (s *AircraftState) LastNInactive(n int) bool {
	if len(s.RecentFixes) < n+1 {
		return false
	}
	window := s.RecentFixes[len(s.RecentFixes)-n-1 : len(s.RecentFixes)-1]
	for _, f := range window {
		if f.IsActive {
			return false
		}
	}
	return true
}

// CalculateClimbRate estimates ft/min from the first and last fix with
// altitude inside the trailing 60 second window. Pairs closer than five
// seconds are rejected as noise, returning nil for insufficient data.
func (s *AircraftState) CalculateClimbRate() *int {
	last := s.LastFix()
	if last == nil {
		return nil
	}

	var withAltitude []*CompactFix
	for i := range s.RecentFixes {
		f := &s.RecentFixes[i]
		if f.AltitudeMSLFt == nil {
			continue
		}
		if last.Timestamp.Sub(f.Timestamp) <= climbRateWindow {
			withAltitude = append(withAltitude, f)
		}
	}
	if len(withAltitude) < 2 {
		return nil
	}

	first := withAltitude[0]
	newest := withAltitude[len(withAltitude)-1]
	dt := newest.Timestamp.Sub(first.Timestamp)
	if dt < climbRateMinSpacing {
		return nil
	}

	deltaFt := float64(*newest.AltitudeMSLFt - *first.AltitudeMSLFt)
	rate := int(math.Round(deltaFt / dt.Seconds() * 60.0))
	return &rate
}

// DetermineFlightPhase classifies the current phase from climb rate and
// altitude. Only used for timeout/coalescing decisions, never as the
// takeoff or landing signal.
func (s *AircraftState) DetermineFlightPhase() FlightPhase {
	climb := s.CalculateClimbRate()
	if climb != nil {
		if *climb > 300 {
			return PhaseClimbing
		}
		if *climb < -300 {
			return PhaseDescending
		}
	}

	if last := s.LastFix(); last != nil && last.AltitudeMSLFt != nil && *last.AltitudeMSLFt > 10000 {
		if climb == nil || abs(*climb) < 500 {
			return PhaseCruising
		}
	}
	return PhaseUnknown
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

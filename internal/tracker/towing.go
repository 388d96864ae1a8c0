package tracker

import (
	"time"

	"github.com/google/uuid"
)

// OGN aircraft type codes carried in the position comment id field.
const (
	AircraftTypeGlider   = 1
	AircraftTypeTowPlane = 2
)

const (
	towVicinityRadiusMeters = 500.0
	towCandidateMaxFixAge   = 30 * time.Second
)

// Tow release thresholds: a tug that had been climbing on average and is
// now clearly descending has dropped its glider and is heading back down.
const (
	towReleaseAvgClimbFpm   = 100
	towReleaseDescendFpm    = -100
	towReleaseAltitudePairs = 5
)

// TowingInfo links an airborne tow plane to the glider it is pulling.
// Attached to the tug's AircraftState for the duration of the tow.
type TowingInfo struct {
	GliderAircraftID string
	GliderFlightID   uuid.UUID
	TowStarted       time.Time
}

// towCandidate is a snapshot of another aircraft's latest position, taken
// under that aircraft's shard lock so the tow search never holds two locks.
type towCandidate struct {
	aircraftID   string
	flightID     uuid.UUID
	aircraftType uint8
	lat, lng     float64
	fixTime      time.Time
}

// findTowedGlider picks the glider being towed: exactly one glider with an
// active flight within 500 m of the tug's takeoff fix and a position no
// older than 30 s. Zero or multiple candidates mean no pairing; ambiguity
// resolves on a later fix or not at all.
func findTowedGlider(tugFix *Fix, candidates []towCandidate) *TowingInfo {
	var matches []towCandidate
	for _, c := range candidates {
		if c.aircraftID == tugFix.AircraftID || c.aircraftType != AircraftTypeGlider {
			continue
		}
		if tugFix.Timestamp.Sub(c.fixTime) > towCandidateMaxFixAge {
			continue
		}
		if haversineDistance(tugFix.Latitude, tugFix.Longitude, c.lat, c.lng) <= towVicinityRadiusMeters {
			matches = append(matches, c)
		}
	}
	if len(matches) != 1 {
		return nil
	}
	return &TowingInfo{
		GliderAircraftID: matches[0].aircraftID,
		GliderFlightID:   matches[0].flightID,
		TowStarted:       tugFix.Timestamp,
	}
}

// checkTowRelease detects the release from the tug's climb profile: average
// climb over the recent altitude-bearing fixes above +100 fpm while the
// current fix reports below -100 fpm.
func checkTowRelease(state *AircraftState, currentClimbFpm *int) bool {
	if state.TowingInfo == nil {
		return false
	}
	if currentClimbFpm == nil || *currentClimbFpm >= towReleaseDescendFpm {
		return false
	}

	type altPoint struct {
		t   time.Time
		alt int
	}
	var points []altPoint
	for i := len(state.RecentFixes) - 1; i >= 0 && len(points) < towReleaseAltitudePairs; i-- {
		f := &state.RecentFixes[i]
		if f.AltitudeMSLFt != nil {
			points = append(points, altPoint{f.Timestamp, *f.AltitudeMSLFt})
		}
	}
	if len(points) < 2 {
		return false
	}

	// points is newest first; compute pairwise rates oldest to newest.
	var sum float64
	var n int
	for i := len(points) - 1; i > 0; i-- {
		older, newer := points[i], points[i-1]
		dt := newer.t.Sub(older.t).Seconds()
		if dt <= 0 {
			continue
		}
		sum += float64(newer.alt-older.alt) / dt * 60.0
		n++
	}
	if n == 0 {
		return false
	}
	return sum/float64(n) > towReleaseAvgClimbFpm
}

package tracker

import (
	"fmt"
	"math"
)

// headingToRunwayIdentifier converts a course in degrees to the runway
// number an aircraft on that heading would be using: 230 -> "23",
// 47 -> "05", 354 -> "35". North wraps to "36".
func headingToRunwayIdentifier(heading float64) string {
	n := int(math.Round(heading/10.0)) % 36
	if n == 0 {
		n = 36
	}
	return fmt.Sprintf("%02d", n)
}

// aircraftUsesRunways filters out types that launch without one, so a
// paraglider's takeoff heading never gets recorded as a runway.
func aircraftUsesRunways(aircraftType uint8) bool {
	switch aircraftType {
	case 3, 4, 6, 7, 11, 12, 13, 15:
		// helicopter, skydiver, hang glider, paraglider, balloon,
		// airship, UAV, static obstacle
		return false
	default:
		return true
	}
}

package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

const (
	// A gap this long while "airborne" triggers the moved-too-little check:
	// if the aircraft covered under 30% of the distance its last speed
	// implies, it landed somewhere in between and the flight is split.
	gapSplitThreshold     = 30 * time.Minute
	gapDistanceFraction   = 0.3
	gapMinSpeedKt         = 25.0
	knotsToMetersPerSec   = 0.514444
	takeoffFallbackAGLFt  = 100
	landingContinueAGLFt  = 250
)

// processTransition applies one fix to the aircraft's flight lifecycle.
// Called with the aircraft's entry lock held; fix.FlightID is set on exit.
func (t *Tracker) processTransition(ctx context.Context, state *AircraftState, fix *Fix, isActive bool) {
	switch {
	case state.CurrentFlightID != nil && isActive:
		t.continueFlight(ctx, state, fix)
	case state.CurrentFlightID == nil && isActive:
		t.startFlight(ctx, state, fix)
	case state.CurrentFlightID != nil && !isActive:
		t.maybeLand(ctx, state, fix)
	default:
		// On the ground with no flight, nothing to do.
	}
}

// continueFlight keeps an airborne flight going, splitting it when the
// callsign changes or a long gap says the aircraft landed in between.
func (t *Tracker) continueFlight(ctx context.Context, state *AircraftState, fix *Fix) {
	flightID := *state.CurrentFlightID

	if state.CurrentCallsign != "" && fix.Callsign != "" && fix.Callsign != state.CurrentCallsign {
		t.log.Info("Callsign changed, splitting flight",
			logger.String("aircraft", fix.AircraftID),
			logger.String("old", state.CurrentCallsign),
			logger.String("new", fix.Callsign))
		t.splitFlight(ctx, state, fix)
		return
	}

	if t.gapSuggestsLanding(state, fix, flightID) {
		t.splitFlight(ctx, state, fix)
		return
	}

	fix.FlightID = &flightID
	if state.CurrentCallsign == "" && fix.Callsign != "" {
		state.CurrentCallsign = fix.Callsign
	}

	// Tow plane heading back down after a sustained climb has released.
	if state.AircraftType == AircraftTypeTowPlane && checkTowRelease(state, fix.ClimbFpm) {
		info := state.TowingInfo
		state.TowingInfo = nil
		if fix.AltitudeMSLFt != nil {
			if err := t.flights.UpdateTowRelease(ctx, info.GliderFlightID, *fix.AltitudeMSLFt, fix.Timestamp); err != nil {
				t.log.Warn("Failed to record tow release",
					logger.String("glider_flight", info.GliderFlightID.String()),
					logger.Error(err))
			} else {
				t.log.Info("Tow release detected",
					logger.String("tug", fix.AircraftID),
					logger.String("glider", info.GliderAircraftID),
					logger.Int("release_msl_ft", *fix.AltitudeMSLFt))
			}
		}
	}
}

// gapSuggestsLanding checks whether the distance covered across a long gap
// is far short of what the last known speed implies.
func (t *Tracker) gapSuggestsLanding(state *AircraftState, fix *Fix, flightID uuid.UUID) bool {
	prev := state.PreviousFix()
	if prev == nil {
		return false
	}
	gap := fix.Timestamp.Sub(prev.Timestamp)
	if gap < gapSplitThreshold {
		return false
	}
	if prev.GroundSpeedKt == nil || float64(*prev.GroundSpeedKt) <= gapMinSpeedKt {
		return false
	}

	actualM := haversineDistance(prev.Lat, prev.Lng, fix.Latitude, fix.Longitude)
	expectedM := gap.Seconds() * float64(*prev.GroundSpeedKt) * knotsToMetersPerSec
	if actualM >= expectedM*gapDistanceFraction {
		return false
	}

	t.log.Info("Gap suggests landing, splitting flight",
		logger.String("flight_id", flightID.String()),
		logger.Duration("gap", gap),
		logger.Float64("actual_km", actualM/1000),
		logger.Float64("expected_min_km", expectedM*gapDistanceFraction/1000))
	return true
}

// splitFlight closes the current flight at this fix and starts a new one.
// If the close fails the old flight stays current so a later fix retries.
func (t *Tracker) splitFlight(ctx context.Context, state *AircraftState, fix *Fix) {
	flightID := *state.CurrentFlightID

	updated, err := t.flights.SetLandingTime(ctx, flightID, fix.ReceivedAt)
	if err != nil {
		t.log.Warn("Could not set landing time before flight split, will retry",
			logger.String("flight_id", flightID.String()),
			logger.Error(err))
		fix.FlightID = &flightID
		return
	}
	if !updated {
		// Already closed in the database; drop the stale in-memory link.
		state.CurrentFlightID = nil
		state.CurrentCallsign = ""
	} else {
		t.metrics.LandingsDetected.Inc()
		t.metrics.ActiveFlights.Dec()
		state.CurrentFlightID = nil
	}

	t.createFlight(ctx, state, fix, false)
}

// startFlight opens a flight for an aircraft that just became active. An
// orphaned active flight in the database (state lost across a restart) is
// adopted when the callsign still matches.
func (t *Tracker) startFlight(ctx context.Context, state *AircraftState, fix *Fix) {
	existing, err := t.flights.GetActiveFlightForAircraft(ctx, fix.AircraftID)
	if err != nil {
		t.log.Warn("Failed to check for existing active flight",
			logger.String("aircraft", fix.AircraftID),
			logger.Error(err))
	} else if existing != nil {
		if existing.Callsign == "" || fix.Callsign == "" || existing.Callsign == fix.Callsign {
			t.log.Info("Adopting orphaned active flight",
				logger.String("flight_id", existing.ID.String()),
				logger.String("aircraft", fix.AircraftID))
			id := existing.ID
			fix.FlightID = &id
			state.CurrentFlightID = &id
			if existing.Callsign != "" {
				state.CurrentCallsign = existing.Callsign
			} else {
				state.CurrentCallsign = fix.Callsign
			}
			return
		}
		if updated, err := t.flights.SetLandingTime(ctx, existing.ID, fix.ReceivedAt); err != nil {
			// Cannot end it; adopt to avoid two active flights for one aircraft.
			t.log.Warn("Could not end orphaned flight, adopting instead",
				logger.String("flight_id", existing.ID.String()),
				logger.Error(err))
			id := existing.ID
			fix.FlightID = &id
			state.CurrentFlightID = &id
			state.CurrentCallsign = existing.Callsign
			return
		} else if updated {
			t.metrics.LandingsDetected.Inc()
		}
	}

	isTakeoff := t.looksLikeTakeoff(state, fix)
	t.createFlight(ctx, state, fix, isTakeoff)
}

// looksLikeTakeoff distinguishes a real ground-to-air transition from an
// aircraft first heard mid-flight. Transponder sources need one prior
// inactive fix; heuristic sources need three, falling back to a near-ground
// AGL check when the history is too short.
func (t *Tracker) looksLikeTakeoff(state *AircraftState, fix *Fix) bool {
	if fix.HasTransponderData() {
		return state.LastNInactive(1)
	}
	if len(state.RecentFixes) >= takeoffInactiveFixes+1 {
		return state.LastNInactive(takeoffInactiveFixes)
	}
	if fix.AltitudeMSLFt == nil {
		return false
	}
	agl := fix.AltitudeAGLFt
	if agl == nil {
		agl = t.calculateAGL(fix.Latitude, fix.Longitude, *fix.AltitudeMSLFt)
	}
	return agl != nil && *agl < takeoffFallbackAGLFt
}

func (t *Tracker) createFlight(ctx context.Context, state *AircraftState, fix *Fix, isTakeoff bool) {
	now := time.Now()
	flight := &Flight{
		ID:              uuid.New(),
		AircraftID:      fix.AircraftID,
		Callsign:        fix.Callsign,
		TakeoffTime:     fix.Timestamp,
		TakeoffDetected: isTakeoff,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	state.TakeoffRunwayInferred = nil
	if isTakeoff && fix.TrackDeg != nil && aircraftUsesRunways(state.AircraftType) {
		runway := headingToRunwayIdentifier(float64(*fix.TrackDeg))
		flight.TakeoffRunway = &runway
		flight.RunwaysInferred = true
		inferred := true
		state.TakeoffRunwayInferred = &inferred
	}
	if err := t.flights.Insert(ctx, flight); err != nil {
		t.log.Error("Failed to create flight",
			logger.String("aircraft", fix.AircraftID),
			logger.Error(err))
		fix.FlightID = nil
		return
	}

	id := flight.ID
	fix.FlightID = &id
	state.CurrentFlightID = &id
	state.CurrentCallsign = fix.Callsign
	t.metrics.ActiveFlights.Inc()

	if isTakeoff {
		t.metrics.TakeoffsDetected.Inc()
		t.log.Info("Takeoff detected",
			logger.String("aircraft", fix.AircraftID),
			logger.String("flight_id", id.String()),
			logger.String("callsign", fix.Callsign))

		if state.AircraftType == AircraftTypeTowPlane {
			t.detectTow(ctx, state, fix)
		}
	} else {
		t.log.Info("Aircraft appeared mid-flight",
			logger.String("aircraft", fix.AircraftID),
			logger.String("flight_id", id.String()))
	}
}

// detectTow pairs a tow plane's takeoff with the single glider airborne
// within the vicinity window, if there is exactly one.
func (t *Tracker) detectTow(ctx context.Context, state *AircraftState, fix *Fix) {
	info := findTowedGlider(fix, t.towCandidates())
	if info == nil {
		return
	}
	if err := t.flights.UpdateTowingInfo(ctx, info.GliderFlightID, fix.AircraftID, info.TowStarted); err != nil {
		t.log.Warn("Failed to persist towing link",
			logger.String("glider_flight", info.GliderFlightID.String()),
			logger.Error(err))
		return
	}
	state.TowingInfo = info
	t.metrics.TowsDetected.Inc()
	t.log.Info("Tow pairing established",
		logger.String("tug", fix.AircraftID),
		logger.String("glider", info.GliderAircraftID))
}

// maybeLand handles an inactive fix while a flight is open. Transponder
// on-ground is authoritative; heuristic sources land only after the
// five-fix debounce, and a comfortably-high AGL keeps the flight alive
// regardless of the speed heuristic.
func (t *Tracker) maybeLand(ctx context.Context, state *AircraftState, fix *Fix) {
	flightID := *state.CurrentFlightID

	if !fix.HasTransponderData() {
		agl := fix.AltitudeAGLFt
		if agl == nil && fix.AltitudeMSLFt != nil {
			agl = t.calculateAGL(fix.Latitude, fix.Longitude, *fix.AltitudeMSLFt)
		}
		if agl != nil && *agl >= landingContinueAGLFt {
			fix.FlightID = &flightID
			return
		}
		if !state.HasFiveConsecutiveInactive() {
			fix.FlightID = &flightID
			return
		}
	}

	updated, err := t.flights.SetLandingTime(ctx, flightID, fix.ReceivedAt)
	if err != nil {
		t.log.Warn("Failed to set landing time, will retry",
			logger.String("flight_id", flightID.String()),
			logger.Error(err))
		fix.FlightID = &flightID
		return
	}
	if !updated {
		t.log.Warn("Flight already ended in database, clearing stale state",
			logger.String("flight_id", flightID.String()))
		state.CurrentFlightID = nil
		state.CurrentCallsign = ""
		return
	}

	fix.FlightID = &flightID
	state.CurrentFlightID = nil
	state.CurrentCallsign = ""
	state.TowingInfo = nil
	state.TakeoffRunwayInferred = nil
	t.metrics.LandingsDetected.Inc()
	t.metrics.ActiveFlights.Dec()
	t.log.Info("Landing detected",
		logger.String("aircraft", fix.AircraftID),
		logger.String("flight_id", flightID.String()))
}

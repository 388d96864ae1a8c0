package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ognpipe/ognpipe/internal/tracker"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// FlightStorage persists flight records.
type FlightStorage struct {
	db     *DB
	logger *logger.Logger
}

// NewFlightStorage creates the flights repository.
func NewFlightStorage(db *DB) *FlightStorage {
	return &FlightStorage{db: db, logger: db.logger.Named("flights")}
}

// Insert stores a new flight.
func (s *FlightStorage) Insert(ctx context.Context, flight *tracker.Flight) error {
	var clubID *string
	if flight.ClubID != nil {
		id := flight.ClubID.String()
		clubID = &id
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO flights (
			id, aircraft_id, callsign, takeoff_time, landing_time,
			departure_airport, arrival_airport, tow_aircraft_id,
			tow_release_height_ft, club_id, takeoff_runway, runways_inferred,
			takeoff_detected, closed_by_timeout, closure_phase, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`,
		flight.ID.String(), flight.AircraftID, flight.Callsign,
		flight.TakeoffTime, flight.LandingTime,
		flight.DepartureAirport, flight.ArrivalAirport, flight.TowAircraftID,
		flight.TowReleaseHeight, clubID, flight.TakeoffRunway, flight.RunwaysInferred,
		flight.TakeoffDetected,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flight: %w", err)
	}
	return nil
}

// SetLandingTime closes an open flight. It reports false when the flight
// was already closed, which tells the tracker its in-memory state is stale.
func (s *FlightStorage) SetLandingTime(ctx context.Context, flightID uuid.UUID, landedAt time.Time) (bool, error) {
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE flights SET landing_time = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND landing_time IS NULL AND closed_by_timeout = 0
	`, landedAt, flightID.String())
	if err != nil {
		return false, fmt.Errorf("failed to set landing time: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// GetActiveFlightForAircraft returns the open flight for an aircraft, or
// nil when none exists.
func (s *FlightStorage) GetActiveFlightForAircraft(ctx context.Context, aircraftID string) (*tracker.Flight, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, aircraft_id, callsign, takeoff_time, landing_time,
			departure_airport, arrival_airport, tow_aircraft_id,
			tow_release_height_ft, club_id, takeoff_runway, runways_inferred,
			takeoff_detected, closed_by_timeout, created_at, updated_at
		FROM flights
		WHERE aircraft_id = ? AND landing_time IS NULL AND closed_by_timeout = 0
		ORDER BY takeoff_time DESC
		LIMIT 1
	`, aircraftID)

	flight, err := scanFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active flight: %w", err)
	}
	return flight, nil
}

// CloseTimedOut marks a flight closed because its aircraft went silent,
// recording the phase it disappeared in.
func (s *FlightStorage) CloseTimedOut(ctx context.Context, flightID uuid.UUID, phase tracker.FlightPhase, lastFixAt time.Time) error {
	_, err := s.db.db.ExecContext(ctx, `
		UPDATE flights SET closed_by_timeout = 1, closure_phase = ?,
			landing_time = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND landing_time IS NULL AND closed_by_timeout = 0
	`, phase.String(), lastFixAt, flightID.String())
	if err != nil {
		return fmt.Errorf("failed to close timed-out flight: %w", err)
	}
	return nil
}

// UpdateTowingInfo records which tow plane pulled a glider flight up.
func (s *FlightStorage) UpdateTowingInfo(ctx context.Context, gliderFlightID uuid.UUID, towAircraftID string, towStarted time.Time) error {
	_, err := s.db.db.ExecContext(ctx, `
		UPDATE flights SET tow_aircraft_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, towAircraftID, gliderFlightID.String())
	if err != nil {
		return fmt.Errorf("failed to update towing info: %w", err)
	}
	return nil
}

// UpdateTowRelease records the altitude at which the glider let go.
func (s *FlightStorage) UpdateTowRelease(ctx context.Context, gliderFlightID uuid.UUID, releaseHeightFt int, releasedAt time.Time) error {
	_, err := s.db.db.ExecContext(ctx, `
		UPDATE flights SET tow_release_height_ft = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tow_release_height_ft IS NULL
	`, releaseHeightFt, gliderFlightID.String())
	if err != nil {
		return fmt.Errorf("failed to update tow release: %w", err)
	}
	return nil
}

func scanFlight(row *sql.Row) (*tracker.Flight, error) {
	var (
		f             tracker.Flight
		id            string
		clubID        *string
		departure     sql.NullString
		arrival       sql.NullString
		towAircraft   sql.NullString
		towRelease    sql.NullInt64
		callsign      sql.NullString
		landingTime   sql.NullTime
		takeoffRunway sql.NullString
	)
	err := row.Scan(&id, &f.AircraftID, &callsign, &f.TakeoffTime, &landingTime,
		&departure, &arrival, &towAircraft, &towRelease, &clubID,
		&takeoffRunway, &f.RunwaysInferred,
		&f.TakeoffDetected, &f.ClosedByTimeout, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}

	f.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid flight id %q: %w", id, err)
	}
	if clubID != nil {
		parsed, err := uuid.Parse(*clubID)
		if err != nil {
			return nil, fmt.Errorf("invalid club id %q: %w", *clubID, err)
		}
		f.ClubID = &parsed
	}
	if callsign.Valid {
		f.Callsign = callsign.String
	}
	if landingTime.Valid {
		t := landingTime.Time
		f.LandingTime = &t
	}
	if departure.Valid {
		v := departure.String
		f.DepartureAirport = &v
	}
	if arrival.Valid {
		v := arrival.String
		f.ArrivalAirport = &v
	}
	if towAircraft.Valid {
		v := towAircraft.String
		f.TowAircraftID = &v
	}
	if towRelease.Valid {
		v := int(towRelease.Int64)
		f.TowReleaseHeight = &v
	}
	if takeoffRunway.Valid {
		v := takeoffRunway.String
		f.TakeoffRunway = &v
	}
	return &f, nil
}

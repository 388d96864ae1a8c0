package sqlite

import (
	"context"
	"fmt"

	"github.com/ognpipe/ognpipe/internal/tracker"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// FixStorage persists full position fixes.
type FixStorage struct {
	db     *DB
	logger *logger.Logger
}

// NewFixStorage creates the fixes repository.
func NewFixStorage(db *DB) *FixStorage {
	return &FixStorage{db: db, logger: db.logger.Named("fixes")}
}

// Insert stores one fix.
func (s *FixStorage) Insert(ctx context.Context, fix *tracker.Fix) error {
	var flightID *string
	if fix.FlightID != nil {
		id := fix.FlightID.String()
		flightID = &id
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO fixes (
			id, aircraft_id, address_type, aircraft_type, timestamp, received_at,
			latitude, longitude, altitude_msl_ft, altitude_agl_ft, callsign, squawk,
			ground_speed_kt, track_deg, climb_fpm, turn_rate,
			receiver_id, raw_message_id, is_active, flight_id, transponder_on_ground
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		fix.ID.String(), fix.AircraftID, fix.AddressType, fix.AircraftType,
		fix.Timestamp, fix.ReceivedAt,
		fix.Latitude, fix.Longitude, fix.AltitudeMSLFt, fix.AltitudeAGLFt,
		fix.Callsign, fix.Squawk,
		fix.GroundSpeedKt, fix.TrackDeg, fix.ClimbFpm, fix.TurnRate,
		fix.ReceiverID.String(), fix.RawMessageID.String(),
		fix.IsActive, flightID, fix.TransponderOnGround,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fix: %w", err)
	}
	return nil
}

// BatchUpdateAGL applies a batch of async AGL enrichments in one
// transaction. It returns the number of rows actually updated, which can be
// lower than len(updates) when a fix was pruned meanwhile.
func (s *FixStorage) BatchUpdateAGL(ctx context.Context, updates []tracker.AGLUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE fixes SET altitude_agl_ft = ? WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare agl update: %w", err)
	}
	defer stmt.Close()

	updated := 0
	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, u.AltitudeAGLFt, u.FixID.String())
		if err != nil {
			return 0, fmt.Errorf("failed to update fix %s: %w", u.FixID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			updated += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit agl updates: %w", err)
	}
	return updated, nil
}

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

// ReceiverStorage persists ground receiver records keyed by callsign.
type ReceiverStorage struct {
	db     *DB
	logger *logger.Logger
}

// NewReceiverStorage creates the receivers repository.
func NewReceiverStorage(db *DB) *ReceiverStorage {
	return &ReceiverStorage{db: db, logger: db.logger.Named("receivers")}
}

// UpsertByCallsign returns the receiver id for a callsign, creating the
// record on first sight and bumping last_seen otherwise.
func (s *ReceiverStorage) UpsertByCallsign(ctx context.Context, callsign string, seenAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO receivers (id, callsign, first_seen, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (callsign) DO UPDATE SET last_seen = excluded.last_seen
	`, id.String(), callsign, seenAt, seenAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert receiver %q: %w", callsign, err)
	}

	// The insert id only sticks on first sight; read back the winner.
	var stored string
	err = s.db.db.QueryRowContext(ctx,
		`SELECT id FROM receivers WHERE callsign = ?`, callsign).Scan(&stored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read receiver id for %q: %w", callsign, err)
	}
	return uuid.Parse(stored)
}

// UpdatePosition stores a receiver's self-reported position.
func (s *ReceiverStorage) UpdatePosition(ctx context.Context, id uuid.UUID, lat, lng float64, altitudeFt *int, at time.Time) error {
	_, err := s.db.db.ExecContext(ctx, `
		UPDATE receivers SET latitude = ?, longitude = ?, altitude_ft = ?, last_seen = ?
		WHERE id = ?
	`, lat, lng, altitudeFt, at, id.String())
	if err != nil {
		return fmt.Errorf("failed to update receiver position: %w", err)
	}
	return nil
}

// UpdateStatus stores a receiver's latest status text.
func (s *ReceiverStorage) UpdateStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) error {
	_, err := s.db.db.ExecContext(ctx, `
		UPDATE receivers SET status = ?, last_seen = ? WHERE id = ?
	`, status, at, id.String())
	if err != nil {
		return fmt.Errorf("failed to update receiver status: %w", err)
	}
	return nil
}

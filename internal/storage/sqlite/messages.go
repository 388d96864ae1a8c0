package sqlite

import (
	"context"
	"fmt"

	"github.com/ognpipe/ognpipe/internal/router"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// RawMessageStorage persists received raw lines and frames.
type RawMessageStorage struct {
	db     *DB
	logger *logger.Logger
}

// NewRawMessageStorage creates the raw messages repository.
func NewRawMessageStorage(db *DB) *RawMessageStorage {
	return &RawMessageStorage{db: db, logger: db.logger.Named("raw_messages")}
}

// Insert stores one raw message.
func (s *RawMessageStorage) Insert(ctx context.Context, msg *router.RawMessage) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO raw_messages (id, source, raw, received_at)
		VALUES (?, ?, ?, ?)
	`, msg.ID.String(), int(msg.Source), msg.Raw, msg.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert raw message: %w", err)
	}
	return nil
}

// ServerMessageStorage persists APRS server heartbeats.
type ServerMessageStorage struct {
	db     *DB
	logger *logger.Logger
}

// NewServerMessageStorage creates the server messages repository.
func NewServerMessageStorage(db *DB) *ServerMessageStorage {
	return &ServerMessageStorage{db: db, logger: db.logger.Named("server_messages")}
}

// Insert stores one server heartbeat.
func (s *ServerMessageStorage) Insert(ctx context.Context, msg *router.ServerMessage) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO server_messages (
			id, software, server_name, endpoint, server_time, received_at, lag_ms, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID.String(), msg.Software, msg.ServerName, msg.Endpoint,
		msg.ServerTime, msg.ReceivedAt, msg.LagMS, msg.Raw)
	if err != nil {
		return fmt.Errorf("failed to insert server message: %w", err)
	}
	return nil
}

// Package sqlite persists the pipeline's durable records: fixes, flights,
// receivers, raw messages and server heartbeats. One database file, one
// writer connection, WAL journaling.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/ognpipe/ognpipe/pkg/logger"
	_ "modernc.org/sqlite"
)

// DB wraps the shared SQLite handle the repositories operate on.
type DB struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens (creating if needed) the database at dbPath and initializes
// the schema.
func Open(dbPath string, log *logger.Logger) (*DB, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA cache_size=10000"); err != nil {
		return nil, fmt.Errorf("failed to set cache size: %w", err)
	}

	if err := initSchema(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db, logger: storageLogger}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func initSchema(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS receivers (
			id TEXT PRIMARY KEY,
			callsign TEXT NOT NULL UNIQUE,
			latitude REAL,
			longitude REAL,
			altitude_ft INTEGER,
			status TEXT,
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create receivers table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS raw_messages (
			id TEXT PRIMARY KEY,
			source INTEGER NOT NULL,
			raw BLOB NOT NULL,
			received_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create raw_messages table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS server_messages (
			id TEXT PRIMARY KEY,
			software TEXT NOT NULL,
			server_name TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			server_time TIMESTAMP NOT NULL,
			received_at TIMESTAMP NOT NULL,
			lag_ms INTEGER NOT NULL,
			raw TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create server_messages table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			id TEXT PRIMARY KEY,
			aircraft_id TEXT NOT NULL,
			callsign TEXT,
			takeoff_time TIMESTAMP NOT NULL,
			landing_time TIMESTAMP,
			departure_airport TEXT,
			arrival_airport TEXT,
			tow_aircraft_id TEXT,
			tow_release_height_ft INTEGER,
			club_id TEXT,
			takeoff_runway TEXT,
			runways_inferred INTEGER NOT NULL DEFAULT 0,
			takeoff_detected INTEGER NOT NULL DEFAULT 0,
			closed_by_timeout INTEGER NOT NULL DEFAULT 0,
			closure_phase TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flights table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_flights_aircraft_open
		ON flights (aircraft_id) WHERE landing_time IS NULL AND closed_by_timeout = 0
	`)
	if err != nil {
		return fmt.Errorf("failed to create flights index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fixes (
			id TEXT PRIMARY KEY,
			aircraft_id TEXT NOT NULL,
			address_type INTEGER NOT NULL DEFAULT 0,
			aircraft_type INTEGER NOT NULL DEFAULT 0,
			timestamp TIMESTAMP NOT NULL,
			received_at TIMESTAMP NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			altitude_msl_ft INTEGER,
			altitude_agl_ft INTEGER,
			callsign TEXT,
			squawk TEXT,
			ground_speed_kt REAL,
			track_deg REAL,
			climb_fpm INTEGER,
			turn_rate REAL,
			receiver_id TEXT,
			raw_message_id TEXT,
			is_active INTEGER NOT NULL DEFAULT 0,
			flight_id TEXT,
			transponder_on_ground INTEGER
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create fixes table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_fixes_aircraft_time
		ON fixes (aircraft_id, timestamp)
	`)
	if err != nil {
		return fmt.Errorf("failed to create fixes index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_fixes_flight
		ON fixes (flight_id) WHERE flight_id IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("failed to create fixes flight index: %w", err)
	}

	return nil
}

// Package config loads and validates the TOML configuration shared by the
// router and ingest processes.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`    // HTTP server (metrics, health, websocket)
	Transport TransportConfig `toml:"transport"` // Unix socket between ingest and router
	APRS      APRSConfig      `toml:"aprs"`      // APRS-IS feed settings
	Beast     BeastConfig     `toml:"beast"`     // Beast binary feed settings
	SBS       SBSConfig       `toml:"sbs"`       // SBS BaseStation feed settings
	Storage   StorageConfig   `toml:"storage"`   // SQLite persistence settings
	Tracker   TrackerConfig   `toml:"tracker"`   // Flight tracking thresholds
	Elevation ElevationConfig `toml:"elevation"` // Terrain elevation data
	NATS      NATSConfig      `toml:"nats"`      // Live-fix publishing
	Queues    QueuesConfig    `toml:"queues"`    // Pipeline queue sizing
	Archive   ArchiveConfig   `toml:"archive"`   // Raw message archive
	Logging   LoggingConfig   `toml:"logging"`   // Application logging settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Host string `toml:"host"` // Host address to bind to
	Port int    `toml:"port"` // HTTP port for /metrics, /healthz and /ws
}

// TransportConfig contains the envelope socket settings
type TransportConfig struct {
	SocketPath string `toml:"socket_path"` // Unix socket path shared by ingest and router
}

// APRSConfig contains APRS-IS feed settings
type APRSConfig struct {
	Enabled  bool   `toml:"enabled"`
	Server   string `toml:"server"`   // e.g. aprs.glidernet.org
	Port     int    `toml:"port"`     // 14580 for filtered, 10152 for full feed
	Callsign string `toml:"callsign"` // Login callsign
	Password string `toml:"password"` // Empty for read-only access
	Filter   string `toml:"filter"`   // Optional server-side filter expression
}

// BeastConfig contains Beast binary feed settings
type BeastConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"` // dump1090-style port, typically 30005
}

// SBSConfig contains SBS BaseStation feed settings
type SBSConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"` // dump1090-style port, typically 30003
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
}

// TrackerConfig contains flight tracking thresholds
type TrackerConfig struct {
	FlightTimeoutMinutes int `toml:"flight_timeout_minutes"` // Close flights after this silence (default 60)
	StateTTLHours        int `toml:"state_ttl_hours"`        // Drop idle aircraft state after this (default 18)
	CleanupIntervalHours int `toml:"cleanup_interval_hours"` // State cleanup cadence (default 1)
	TimeoutCheckSeconds  int `toml:"timeout_check_seconds"`  // Timeout scan cadence (default 60)
}

// ElevationConfig contains terrain elevation data settings
type ElevationConfig struct {
	Enabled bool   `toml:"enabled"`
	DataDir string `toml:"data_dir"` // Directory of gzipped SRTM HGT tiles
}

// NATSConfig contains live-fix publishing settings
type NATSConfig struct {
	Enabled   bool   `toml:"enabled"`
	URL       string `toml:"url"`       // e.g. nats://localhost:4222
	JetStream bool   `toml:"jetstream"` // Use JetStream instead of core NATS
	Stream    string `toml:"stream"`    // JetStream stream name
}

// QueuesConfig contains pipeline queue sizing
type QueuesConfig struct {
	IntakeSize           int `toml:"intake_size"`            // Envelope intake queue (default 10000)
	AircraftSize         int `toml:"aircraft_size"`          // Aircraft position queue (default 50000)
	ReceiverStatusSize   int `toml:"receiver_status_size"`   // Receiver status queue (default 10000)
	ReceiverPositionSize int `toml:"receiver_position_size"` // Receiver position queue (default 5000)
	ServerStatusSize     int `toml:"server_status_size"`     // Server heartbeat queue (default 1000)
}

// ArchiveConfig contains raw message archive settings
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"` // Directory for daily archive files
}

// LoggingConfig contains application logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// Default returns the configuration defaults applied before decoding.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8080},
		Transport: TransportConfig{SocketPath: "/tmp/ognpipe.sock"},
		APRS: APRSConfig{
			Server: "aprs.glidernet.org",
			Port:   14580,
		},
		Beast:   BeastConfig{Host: "127.0.0.1", Port: 30005},
		SBS:     SBSConfig{Host: "127.0.0.1", Port: 30003},
		Storage: StorageConfig{SQLitePath: "ognpipe.db"},
		Tracker: TrackerConfig{
			FlightTimeoutMinutes: 60,
			StateTTLHours:        18,
			CleanupIntervalHours: 1,
			TimeoutCheckSeconds:  60,
		},
		NATS:    NATSConfig{URL: "nats://127.0.0.1:4222", Stream: "FIXES"},
		Queues: QueuesConfig{
			IntakeSize:           10000,
			AircraftSize:         50000,
			ReceiverStatusSize:   10000,
			ReceiverPositionSize: 5000,
			ServerStatusSize:     1000,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads and decodes the config file at path over the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	config := Default()
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return config, nil
}

// LoadWithFallback loads the preferred path when given, otherwise searches
// the conventional locations.
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,
		"configs/config.toml",
		"config.toml",
	}

	var lastErr error
	for _, path := range searchPaths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			lastErr = fmt.Errorf("config file not found: %s", path)
			continue
		}
		config, err := Load(path)
		if err != nil {
			lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
			continue
		}
		return config, nil
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %w", lastErr)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Transport.SocketPath == "" {
		return fmt.Errorf("transport socket_path is required")
	}
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage sqlite_path is required")
	}

	if c.APRS.Enabled {
		if c.APRS.Server == "" || c.APRS.Port <= 0 || c.APRS.Port > 65535 {
			return fmt.Errorf("aprs feed enabled but server/port invalid: %s:%d", c.APRS.Server, c.APRS.Port)
		}
		if c.APRS.Callsign == "" {
			return fmt.Errorf("aprs feed enabled but callsign is empty")
		}
	}
	if c.Beast.Enabled && (c.Beast.Host == "" || c.Beast.Port <= 0 || c.Beast.Port > 65535) {
		return fmt.Errorf("beast feed enabled but host/port invalid: %s:%d", c.Beast.Host, c.Beast.Port)
	}
	if c.SBS.Enabled && (c.SBS.Host == "" || c.SBS.Port <= 0 || c.SBS.Port > 65535) {
		return fmt.Errorf("sbs feed enabled but host/port invalid: %s:%d", c.SBS.Host, c.SBS.Port)
	}

	if c.Elevation.Enabled && c.Elevation.DataDir == "" {
		return fmt.Errorf("elevation enabled but data_dir is empty")
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats enabled but url is empty")
		}
		if c.NATS.JetStream && c.NATS.Stream == "" {
			return fmt.Errorf("nats jetstream enabled but stream name is empty")
		}
	}
	if c.Archive.Enabled && c.Archive.Dir == "" {
		return fmt.Errorf("archive enabled but dir is empty")
	}

	if c.Queues.IntakeSize <= 0 {
		return fmt.Errorf("queues intake_size must be positive: %d", c.Queues.IntakeSize)
	}
	if c.Queues.AircraftSize <= 0 || c.Queues.ReceiverStatusSize <= 0 ||
		c.Queues.ReceiverPositionSize <= 0 || c.Queues.ServerStatusSize <= 0 {
		return fmt.Errorf("queues sizes must all be positive")
	}
	if c.Tracker.FlightTimeoutMinutes <= 0 {
		return fmt.Errorf("tracker flight_timeout_minutes must be positive: %d", c.Tracker.FlightTimeoutMinutes)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}
	return nil
}

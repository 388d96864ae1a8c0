package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[aprs]
enabled = true
callsign = "OGNPIPE"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "aprs.glidernet.org", cfg.APRS.Server)
	assert.Equal(t, 14580, cfg.APRS.Port)
	assert.Equal(t, "OGNPIPE", cfg.APRS.Callsign)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10000, cfg.Queues.IntakeSize)
	assert.Equal(t, 50000, cfg.Queues.AircraftSize)
	assert.Equal(t, 60, cfg.Tracker.FlightTimeoutMinutes)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[transport]
socket_path = "/run/ognpipe/router.sock"

[logging]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/run/ognpipe/router.sock", cfg.Transport.SocketPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"bad server port":     func(c *Config) { c.Server.Port = 0 },
		"empty socket path":   func(c *Config) { c.Transport.SocketPath = "" },
		"empty sqlite path":   func(c *Config) { c.Storage.SQLitePath = "" },
		"aprs no callsign":    func(c *Config) { c.APRS.Enabled = true; c.APRS.Callsign = "" },
		"beast bad port":      func(c *Config) { c.Beast.Enabled = true; c.Beast.Port = -1 },
		"sbs empty host":      func(c *Config) { c.SBS.Enabled = true; c.SBS.Host = "" },
		"elevation no dir":    func(c *Config) { c.Elevation.Enabled = true },
		"nats empty url":      func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" },
		"archive no dir":      func(c *Config) { c.Archive.Enabled = true },
		"zero intake":         func(c *Config) { c.Queues.IntakeSize = 0 },
		"zero aircraft queue": func(c *Config) { c.Queues.AircraftSize = 0 },
		"bad log level":       func(c *Config) { c.Logging.Level = "verbose" },
		"bad log format":      func(c *Config) { c.Logging.Format = "text" },
		"zero flight timeout": func(c *Config) { c.Tracker.FlightTimeoutMinutes = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadWithFallbackPrefersExplicitPath(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9191
`)
	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

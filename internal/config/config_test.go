package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.MPDPort != 6600 {
		t.Errorf("default mpd_port = %d, want 6600", cfg.Server.MPDPort)
	}
	if cfg.Server.HTTPPort != 6063 || cfg.Server.GraphQLPort != 6062 || cfg.Server.RPCPort != 6061 {
		t.Errorf("unexpected default ports: %d/%d/%d", cfg.Server.HTTPPort, cfg.Server.GraphQLPort, cfg.Server.RPCPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should have been created: %v", err)
	}
	if cfg.Devices.CastService != "_googlecast._tcp" {
		t.Errorf("cast_service = %q", cfg.Devices.CastService)
	}
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
host = "127.0.0.1"
mpd_port = 7700

[library]
path = "/music"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.MPDPort != 7700 {
		t.Errorf("mpd_port = %d, want 7700", cfg.Server.MPDPort)
	}
	if cfg.Library.Path != "/music" {
		t.Errorf("library path = %q, want /music", cfg.Library.Path)
	}
	// Unset fields keep their defaults.
	if cfg.Server.HTTPPort != 6063 {
		t.Errorf("http_port = %d, want default 6063", cfg.Server.HTTPPort)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MPD_PORT", "6601")
	t.Setenv("ROCKBOX_LIBRARY", "/srv/music")
	t.Setenv("ROCKBOX_GRAPHQL_PORT", "invalid")

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.MPDPort != 6601 {
		t.Errorf("mpd_port = %d, want env override 6601", cfg.Server.MPDPort)
	}
	if cfg.Library.Path != "/srv/music" {
		t.Errorf("library path = %q, want env override", cfg.Library.Path)
	}
	if cfg.Server.GraphQLPort != 6062 {
		t.Errorf("graphql_port = %d, unparsable env value should be ignored", cfg.Server.GraphQLPort)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Server.Host = "" }},
		{"bad port", func(c *Config) { c.Server.MPDPort = -1 }},
		{"huge port", func(c *Config) { c.Server.HTTPPort = 70000 }},
		{"empty library", func(c *Config) { c.Library.Path = "" }},
		{"empty database", func(c *Config) { c.Library.DatabaseURL = "" }},
		{"empty discovery service", func(c *Config) { c.Devices.CastService = "" }},
		{"zero heartbeat", func(c *Config) { c.Devices.HeartbeatSeconds = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should have failed")
			}
		})
	}
}

func TestAddresses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "localhost"
	if got := cfg.MPDAddress(); got != "localhost:6600" {
		t.Errorf("MPDAddress = %q", got)
	}
	if got := cfg.HTTPAddress(); got != "localhost:6063" {
		t.Errorf("HTTPAddress = %q", got)
	}
}

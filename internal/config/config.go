package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Library LibraryConfig `toml:"library"`
	Devices DevicesConfig `toml:"devices"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains the listen addresses of every surface
type ServerConfig struct {
	Host        string `toml:"host"`
	RPCPort     int    `toml:"rpc_port"`
	GraphQLPort int    `toml:"graphql_port"`
	HTTPPort    int    `toml:"http_port"`
	MPDPort     int    `toml:"mpd_port"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
}

// LibraryConfig contains music library configuration
type LibraryConfig struct {
	Path          string `toml:"path"`
	DatabaseURL   string `toml:"database_url"`
	IndexDir      string `toml:"index_dir"`
	ShowHidden    bool   `toml:"show_hidden"`
	WatchChanges  bool   `toml:"watch_for_changes"`
	ScanOnStartup bool   `toml:"scan_on_startup"`
}

// DevicesConfig contains discovery configuration
type DevicesConfig struct {
	CastService      string `toml:"cast_service"`
	NativeService    string `toml:"native_service"`
	HeartbeatSeconds int    `toml:"heartbeat_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			RPCPort:     6061,
			GraphQLPort: 6062,
			HTTPPort:    6063,
			MPDPort:     6600,
			ReadTimeout: 30,
		},
		Library: LibraryConfig{
			Path:          filepath.Join(home, "Music"),
			DatabaseURL:   filepath.Join(home, ".config", "rockbox.org", "rockbox.db"),
			IndexDir:      filepath.Join(home, ".config", "rockbox.org", "index"),
			ShowHidden:    false,
			WatchChanges:  true,
			ScanOnStartup: true,
		},
		Devices: DevicesConfig{
			CastService:      "_googlecast._tcp",
			NativeService:    "_rockbox._tcp",
			HeartbeatSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies environment
// overrides. A missing config file is created with defaults.
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional; ignore a missing file
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	} else {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays the ROCKBOX_* environment variables onto the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("ROCKBOX_HOST"); v != "" {
		c.Server.Host = v
	}
	if p, ok := envPort("ROCKBOX_PORT"); ok {
		c.Server.RPCPort = p
	}
	if p, ok := envPort("ROCKBOX_GRAPHQL_PORT"); ok {
		c.Server.GraphQLPort = p
	}
	if p, ok := envPort("ROCKBOX_TCP_PORT"); ok {
		c.Server.HTTPPort = p
	}
	if p, ok := envPort("MPD_PORT"); ok {
		c.Server.MPDPort = p
	}
	if v := os.Getenv("ROCKBOX_LIBRARY"); v != "" {
		c.Library.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Library.DatabaseURL = v
	}
}

func envPort(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	p, err := strconv.Atoi(v)
	if err != nil || p <= 0 || p > 65535 {
		return 0, false
	}
	return p, true
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Rockboxd Configuration
# Listen addresses, library location and discovery settings for the
# rockbox control plane. Environment variables (ROCKBOX_*) override
# the values below.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	for name, port := range map[string]int{
		"rpc_port":     c.Server.RPCPort,
		"graphql_port": c.Server.GraphQLPort,
		"http_port":    c.Server.HTTPPort,
		"mpd_port":     c.Server.MPDPort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %d", name, port)
		}
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Library.Path == "" {
		return fmt.Errorf("library path cannot be empty")
	}
	if c.Library.DatabaseURL == "" {
		return fmt.Errorf("database url cannot be empty")
	}

	if c.Devices.CastService == "" || c.Devices.NativeService == "" {
		return fmt.Errorf("discovery service names cannot be empty")
	}
	if c.Devices.HeartbeatSeconds <= 0 {
		return fmt.Errorf("device heartbeat must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// HTTPAddress returns the listen address of the HTTP/JSON surface.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// GraphQLAddress returns the listen address of the GraphQL surface.
func (c *Config) GraphQLAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GraphQLPort)
}

// RPCAddress returns the listen address of the binary RPC surface.
func (c *Config) RPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.RPCPort)
}

// MPDAddress returns the listen address of the MPD protocol surface.
func (c *Config) MPDAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.MPDPort)
}

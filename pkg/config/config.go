// Package config provides YAML-based configuration loading for quackmesh.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valentinpurrucker/quackmesh/pkg/mesh"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the node/application
	AppName string `mapstructure:"app_name"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Mesh tunes the per-node message engine
	Mesh MeshConfig `mapstructure:"mesh"`

	// Routing tunes the router extension
	Routing RoutingConfig `mapstructure:"routing"`

	// Link tunes the link adapter
	Link LinkConfig `mapstructure:"link"`

	// Sim configures the simulator binary
	Sim SimConfig `mapstructure:"sim"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MeshConfig holds the engine knobs of a single node.
type MeshConfig struct {
	MaxSeen               int `mapstructure:"max_seen"`
	SeenCleanupIntervalMS int `mapstructure:"seen_cleanup_interval_ms"`
	SeenTTLMS             int `mapstructure:"seen_ttl_ms"`
	ConfirmTimeoutMS      int `mapstructure:"confirm_timeout_ms"`
	InitialHopCount       int `mapstructure:"initial_hop_count"`
	MaxQueue              int `mapstructure:"max_queue"`
}

// RoutingConfig holds the router knobs.
type RoutingConfig struct {
	UpdateIntervalMS int `mapstructure:"update_interval_ms"`
	TTLMS            int `mapstructure:"ttl_ms"`
	MaxEntries       int `mapstructure:"max_entries"`
}

// LinkConfig holds the link adapter knobs.
type LinkConfig struct {
	MaxTries       int `mapstructure:"max_tries"`
	SendIntervalMS int `mapstructure:"send_interval_ms"`
}

// SimConfig configures the quackmesh-sim binary.
type SimConfig struct {
	Nodes      int    `mapstructure:"nodes"`
	Routers    int    `mapstructure:"routers"`
	DurationMS int    `mapstructure:"duration_ms"`
	StepMS     int    `mapstructure:"step_ms"`
	TraceFile  string `mapstructure:"trace_file"`
	TraceFmt   string `mapstructure:"trace_format"`
}

// Default returns a Config populated with the engine's canonical timings.
func Default() *Config {
	return &Config{
		AppName: "quackmesh",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/quackmesh.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Mesh: MeshConfig{
			MaxSeen:               10,
			SeenCleanupIntervalMS: 1000,
			SeenTTLMS:             2000,
			ConfirmTimeoutMS:      1000,
			InitialHopCount:       3,
			MaxQueue:              16,
		},
		Routing: RoutingConfig{
			UpdateIntervalMS: 100,
			TTLMS:            10000,
			MaxEntries:       10,
		},
		Link: LinkConfig{
			MaxTries:       2,
			SendIntervalMS: 100,
		},
		Sim: SimConfig{
			Nodes:      2,
			Routers:    1,
			DurationMS: 5000,
			StepMS:     1,
			TraceFmt:   "json",
		},
	}
}

// MeshOptions converts the configured knobs into engine options.
func (c *Config) MeshOptions() mesh.Options {
	return mesh.Options{
		MaxSeen:             c.Mesh.MaxSeen,
		SeenCleanupInterval: time.Duration(c.Mesh.SeenCleanupIntervalMS) * time.Millisecond,
		SeenTTL:             time.Duration(c.Mesh.SeenTTLMS) * time.Millisecond,
		ConfirmTimeout:      time.Duration(c.Mesh.ConfirmTimeoutMS) * time.Millisecond,
		InitialHopCount:     uint8(c.Mesh.InitialHopCount),
		MaxQueue:            c.Mesh.MaxQueue,
		LinkMaxTries:        c.Link.MaxTries,
	}
}

// RouterOptions converts the routing knobs.
func (c *Config) RouterOptions() mesh.RouterOptions {
	return mesh.RouterOptions{
		UpdateInterval: time.Duration(c.Routing.UpdateIntervalMS) * time.Millisecond,
		TTL:            time.Duration(c.Routing.TTLMS) * time.Millisecond,
		MaxEntries:     c.Routing.MaxEntries,
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix QUACKMESH and `.`/`-` are replaced
// with `_`. Example: QUACKMESH_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("QUACKMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("mesh.max_seen", cfg.Mesh.MaxSeen)
	v.SetDefault("mesh.seen_cleanup_interval_ms", cfg.Mesh.SeenCleanupIntervalMS)
	v.SetDefault("mesh.seen_ttl_ms", cfg.Mesh.SeenTTLMS)
	v.SetDefault("mesh.confirm_timeout_ms", cfg.Mesh.ConfirmTimeoutMS)
	v.SetDefault("mesh.initial_hop_count", cfg.Mesh.InitialHopCount)
	v.SetDefault("mesh.max_queue", cfg.Mesh.MaxQueue)
	v.SetDefault("routing.update_interval_ms", cfg.Routing.UpdateIntervalMS)
	v.SetDefault("routing.ttl_ms", cfg.Routing.TTLMS)
	v.SetDefault("routing.max_entries", cfg.Routing.MaxEntries)
	v.SetDefault("link.max_tries", cfg.Link.MaxTries)
	v.SetDefault("link.send_interval_ms", cfg.Link.SendIntervalMS)
	v.SetDefault("sim.nodes", cfg.Sim.Nodes)
	v.SetDefault("sim.routers", cfg.Sim.Routers)
	v.SetDefault("sim.duration_ms", cfg.Sim.DurationMS)
	v.SetDefault("sim.step_ms", cfg.Sim.StepMS)
	v.SetDefault("sim.trace_file", cfg.Sim.TraceFile)
	v.SetDefault("sim.trace_format", cfg.Sim.TraceFmt)

	// Choose config file
	if path == "" {
		// Allow override via env var
		if envPath := os.Getenv("QUACKMESH_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `quackmesh`
		v.SetConfigName("quackmesh")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".quackmesh"))
		}
	}

	// Read config file if present; if the search finds none, continue with
	// defaults/env. An explicitly named file that is missing is an error.
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.Mesh.InitialHopCount < 1 || c.Mesh.InitialHopCount > 255 {
		return fmt.Errorf("invalid mesh.initial_hop_count: %d", c.Mesh.InitialHopCount)
	}
	if c.Link.MaxTries < 1 {
		return fmt.Errorf("invalid link.max_tries: %d", c.Link.MaxTries)
	}
	if c.Sim.StepMS < 1 {
		return fmt.Errorf("invalid sim.step_ms: %d", c.Sim.StepMS)
	}
	switch c.Sim.TraceFmt {
	case "", "json", "cbor":
		// ok
	default:
		return fmt.Errorf("invalid sim.trace_format: %q", c.Sim.TraceFmt)
	}
	return nil
}

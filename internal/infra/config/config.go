// Package config loads engine-wide tunables from a TOML file: thread pool
// sizing, the batch directory, and the inspection API/metrics bind
// addresses.
//
// Grounded on the teacher's internal/daemon/config.go: a plain struct
// decoded with github.com/BurntSushi/toml, defaults applied before the
// decode so an absent file (or a partial one) still yields a usable
// Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds all engine configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Batch   BatchConfig   `toml:"batch"`
	API     APIConfig     `toml:"api"`
	Metrics MetricsConfig `toml:"metrics"`
	Logging LoggingConfig `toml:"logging"`
}

// EngineConfig sizes the concurrency primitives (spec.md §5).
type EngineConfig struct {
	// ThreadPoolWorkers is the worker count for the shared concurrency.Pool.
	// 0 means auto (runtime.NumCPU() - 1, minimum 1).
	ThreadPoolWorkers int `toml:"thread_pool_workers"`
}

// BatchConfig controls where the Batch Registry reads/writes its index and
// batch files (spec.md §4.7).
type BatchConfig struct {
	Dir string `toml:"dir"`
}

// APIConfig controls the read-only inspection HTTP server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// LoggingConfig holds the configured logging level. Nothing in the module
// reads Level; it is only loaded and saved with the rest of Config.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			ThreadPoolWorkers: 0, // auto
		},
		Batch: BatchConfig{
			Dir: filepath.Join(engineHome(), "batches"),
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8780,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config from path, falling back to defaults for a missing
// file. Auto-detected fields (thread_pool_workers=0) are resolved after
// decode.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return resolveAuto(cfg), nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return resolveAuto(cfg), nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func resolveAuto(cfg Config) Config {
	if cfg.Engine.ThreadPoolWorkers == 0 {
		cfg.Engine.ThreadPoolWorkers = max(1, runtime.NumCPU()-1)
	}
	return cfg
}

// DefaultPath returns the conventional config file location,
// $EENG_HOME/config.toml, honoring the EENG_HOME environment override.
func DefaultPath() string {
	return filepath.Join(engineHome(), "config.toml")
}

func engineHome() string {
	if env := os.Getenv("EENG_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".eeng")
}

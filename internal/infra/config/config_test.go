package config

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8780 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8780)
	}
	if cfg.Metrics.Enabled {
		t.Errorf("Metrics.Enabled = true, want false (opt-in)")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Port != 8780 {
		t.Errorf("API.Port = %d, want default 8780", cfg.API.Port)
	}
	if cfg.Engine.ThreadPoolWorkers < 1 {
		t.Errorf("ThreadPoolWorkers = %d, want auto-resolved >= 1", cfg.Engine.ThreadPoolWorkers)
	}
}

func TestLoadResolvesAutoThreadPoolWorkers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := Save(Default(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := max(1, runtime.NumCPU()-1)
	if cfg.Engine.ThreadPoolWorkers != want {
		t.Errorf("ThreadPoolWorkers = %d, want %d", cfg.Engine.ThreadPoolWorkers, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.Engine.ThreadPoolWorkers = 4
	cfg.Batch.Dir = filepath.Join(dir, "batches")
	cfg.API.Port = 9999
	cfg.Metrics.Enabled = true

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Engine.ThreadPoolWorkers != 4 {
		t.Errorf("ThreadPoolWorkers = %d, want 4", got.Engine.ThreadPoolWorkers)
	}
	if got.Batch.Dir != cfg.Batch.Dir {
		t.Errorf("Batch.Dir = %q, want %q", got.Batch.Dir, cfg.Batch.Dir)
	}
	if got.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999", got.API.Port)
	}
	if !got.Metrics.Enabled {
		t.Errorf("Metrics.Enabled = false, want true")
	}
}

func TestDefaultPathHonorsEnvOverride(t *testing.T) {
	t.Setenv("EENG_HOME", "/tmp/eeng-custom-home")
	want := filepath.Join("/tmp/eeng-custom-home", "config.toml")
	if got := DefaultPath(); got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
}

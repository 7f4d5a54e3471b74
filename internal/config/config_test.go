package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel() = %s, want %s", cfg.LogLevel(), DefaultLogLevel)
	}
	if cfg.Concurrency() != DefaultConcurrency {
		t.Errorf("Concurrency() = %d, want %d", cfg.Concurrency(), DefaultConcurrency)
	}
	if !strings.HasSuffix(cfg.DataDir(), DefaultDataDir) {
		t.Errorf("DataDir() = %s, want %s suffix", cfg.DataDir(), DefaultDataDir)
	}
	if cfg.VisionURL() != "" || cfg.VisionToken() != "" {
		t.Errorf("vision settings should default empty, got %q/%q", cfg.VisionURL(), cfg.VisionToken())
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv(EnvPort, "9999")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvDataDir, "/tmp/flowlens-test")
	t.Setenv(EnvConcurrency, "8")
	t.Setenv(EnvVisionURL, "http://localhost:7070")
	t.Setenv(EnvVisionToken, "secret")
	t.Setenv(EnvTuningFile, "/etc/flowlens/tuning.yaml")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if cfg.Port() != 9999 {
		t.Errorf("Port() = %d, want 9999", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %s, want debug", cfg.LogLevel())
	}
	if cfg.DataDir() != "/tmp/flowlens-test" {
		t.Errorf("DataDir() = %s", cfg.DataDir())
	}
	if cfg.Concurrency() != 8 {
		t.Errorf("Concurrency() = %d, want 8", cfg.Concurrency())
	}
	if cfg.VisionURL() != "http://localhost:7070" {
		t.Errorf("VisionURL() = %s", cfg.VisionURL())
	}
	if cfg.TuningFile() != "/etc/flowlens/tuning.yaml" {
		t.Errorf("TuningFile() = %s", cfg.TuningFile())
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"port not a number", EnvPort, "abc"},
		{"port out of range", EnvPort, "70000"},
		{"port zero", EnvPort, "0"},
		{"concurrency not a number", EnvConcurrency, "many"},
		{"concurrency zero", EnvConcurrency, "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.env, tc.value)
			if _, err := New(); err == nil {
				t.Errorf("New() with %s=%q should fail", tc.env, tc.value)
			}
		})
	}
}

func TestDBPath(t *testing.T) {
	t.Setenv(EnvDataDir, "/data/flowlens")
	cfg, err := New()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("/data/flowlens", DBFilename)
	if cfg.DBPath() != want {
		t.Errorf("DBPath() = %s, want %s", cfg.DBPath(), want)
	}
}

// Package config provides configuration for the Flowlens Agent.
// Values are loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultPort        = 8788
	DefaultLogLevel    = "info"
	DefaultDataDir     = ".flowlens"
	DefaultConcurrency = 4

	EnvPort        = "FLOWLENS_PORT"
	EnvLogLevel    = "FLOWLENS_LOG_LEVEL"
	EnvDataDir     = "FLOWLENS_DATA_DIR"
	EnvConcurrency = "FLOWLENS_CONCURRENCY"
	EnvVisionURL   = "FLOWLENS_VISION_URL"
	EnvVisionToken = "FLOWLENS_VISION_TOKEN"
	EnvTuningFile  = "FLOWLENS_TUNING_FILE"

	DBFilename = "flowlens.db"
)

// Config defines the application configuration interface.
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	Concurrency() int
	VisionURL() string
	VisionToken() string
	TuningFile() string
}

// EnvConfig reads configuration from environment variables.
type EnvConfig struct {
	port        int
	logLevel    string
	dataDir     string
	concurrency int
	visionURL   string
	visionToken string
	tuningFile  string
}

// New creates an EnvConfig with defaults and environment overrides.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:        DefaultPort,
		logLevel:    DefaultLogLevel,
		dataDir:     defaultDataDir(),
		concurrency: DefaultConcurrency,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if c := os.Getenv(EnvConcurrency); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvConcurrency, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvConcurrency)
		}
		cfg.concurrency = n
	}

	cfg.visionURL = os.Getenv(EnvVisionURL)
	cfg.visionToken = os.Getenv(EnvVisionToken)
	cfg.tuningFile = os.Getenv(EnvTuningFile)

	return cfg, nil
}

func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error).
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file.
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// Concurrency bounds the feature-extraction fan-out.
func (c *EnvConfig) Concurrency() int {
	return c.concurrency
}

// VisionURL is the optional vision-analysis service endpoint. Empty
// disables the refinement step.
func (c *EnvConfig) VisionURL() string {
	return c.visionURL
}

func (c *EnvConfig) VisionToken() string {
	return c.visionToken
}

// TuningFile points at an optional YAML file overriding detector
// thresholds and vocabularies.
func (c *EnvConfig) TuningFile() string {
	return c.tuningFile
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

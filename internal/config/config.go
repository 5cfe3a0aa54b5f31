// Package config provides configuration management for Argus.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultAPIPort       = 8780
	DefaultCameraPort    = 12345
	DefaultLivePort      = 12346
	DefaultDiscoveryPort = 37020
	DefaultLogLevel      = "info"
	DefaultDataDir       = "./data"

	// Environment variable names
	EnvAPIPort       = "ARGUS_API_PORT"
	EnvCameraPort    = "ARGUS_CAMERA_PORT"
	EnvLivePort      = "ARGUS_LIVE_PORT"
	EnvDiscoveryPort = "ARGUS_DISCOVERY_PORT"
	EnvLogLevel      = "ARGUS_LOG_LEVEL"
	EnvDataDir       = "ARGUS_DATA_DIR"
	EnvThreshold     = "ARGUS_MATCH_THRESHOLD"

	// Database filename
	DBFilename = "argus.db"

	// Identity resolution defaults. The threshold is calibrated for
	// euclidean distance between 128-d Facenet embeddings.
	DefaultMatchThreshold = 15.0
	DefaultEmbeddingDim   = 128

	// Discovery soft-state timing
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultDiscoveryTTL      = 10 * time.Second
	DefaultSweepInterval     = 2 * time.Second

	// Face pipeline folder poll interval
	DefaultScanInterval = 5 * time.Second

	// Watchlist re-match period
	DefaultCheckInterval = 10 * time.Second
)

// Config defines the application configuration interface
type Config interface {
	APIPort() int
	CameraPort() int
	LivePort() int
	DiscoveryPort() int
	LogLevel() string
	DataDir() string
	DBPath() string
	FramesDir() string
	PhotosDir() string
	MatchThreshold() float64
	EmbeddingDim() int
	HeartbeatInterval() time.Duration
	DiscoveryTTL() time.Duration
	SweepInterval() time.Duration
	ScanInterval() time.Duration
	CheckInterval() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	apiPort       int
	cameraPort    int
	livePort      int
	discoveryPort int
	logLevel      string
	dataDir       string
	threshold     float64
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		apiPort:       DefaultAPIPort,
		cameraPort:    DefaultCameraPort,
		livePort:      DefaultLivePort,
		discoveryPort: DefaultDiscoveryPort,
		logLevel:      DefaultLogLevel,
		dataDir:       DefaultDataDir,
		threshold:     DefaultMatchThreshold,
	}

	ports := []struct {
		env string
		dst *int
	}{
		{EnvAPIPort, &cfg.apiPort},
		{EnvCameraPort, &cfg.cameraPort},
		{EnvLivePort, &cfg.livePort},
		{EnvDiscoveryPort, &cfg.discoveryPort},
	}
	for _, p := range ports {
		v := os.Getenv(p.env)
		if v == "" {
			continue
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", p.env, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", p.env)
		}
		*p.dst = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if th := os.Getenv(EnvThreshold); th != "" {
		threshold, err := strconv.ParseFloat(th, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvThreshold, err)
		}
		if threshold <= 0 {
			return nil, fmt.Errorf("invalid %s: threshold must be positive", EnvThreshold)
		}
		cfg.threshold = threshold
	}

	return cfg, nil
}

// APIPort returns the admin HTTP server port
func (c *EnvConfig) APIPort() int {
	return c.apiPort
}

// CameraPort returns the main-channel camera listener port
func (c *EnvConfig) CameraPort() int {
	return c.cameraPort
}

// LivePort returns the live-channel listener port
func (c *EnvConfig) LivePort() int {
	return c.livePort
}

// DiscoveryPort returns the UDP discovery port
func (c *EnvConfig) DiscoveryPort() int {
	return c.discoveryPort
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// FramesDir returns the directory raw camera frames are written to,
// one subdirectory per camera location.
func (c *EnvConfig) FramesDir() string {
	return c.dataDir
}

// PhotosDir returns the directory watchlist profile photos are kept in
func (c *EnvConfig) PhotosDir() string {
	return filepath.Join(c.dataDir, "profile_photos")
}

// MatchThreshold returns the nearest-neighbor distance at or below
// which two embeddings are considered the same person.
func (c *EnvConfig) MatchThreshold() float64 {
	return c.threshold
}

// EmbeddingDim returns the embedding vector dimensionality
func (c *EnvConfig) EmbeddingDim() int {
	return DefaultEmbeddingDim
}

func (c *EnvConfig) HeartbeatInterval() time.Duration {
	return DefaultHeartbeatInterval
}

func (c *EnvConfig) DiscoveryTTL() time.Duration {
	return DefaultDiscoveryTTL
}

func (c *EnvConfig) SweepInterval() time.Duration {
	return DefaultSweepInterval
}

func (c *EnvConfig) ScanInterval() time.Duration {
	return DefaultScanInterval
}

func (c *EnvConfig) CheckInterval() time.Duration {
	return DefaultCheckInterval
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

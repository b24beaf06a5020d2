package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Storage settings
	DataDir string
	LogDir  string
	Mocked  bool

	// Upload settings
	BaseURL         string
	RequestTimeout  time.Duration
	SimulatedDelay  time.Duration
	SimulatedErrors float64

	// Machine timings
	RetryDelay  time.Duration
	RemoveDelay time.Duration

	// Backup settings
	BackupDir string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		DataDir:        "~/.collector-sync",
		LogDir:         "logs",
		RequestTimeout: 30 * time.Second,
		SimulatedDelay: 2 * time.Second,
		RetryDelay:     time.Second,
		RemoveDelay:    200 * time.Millisecond,
		BackupDir:      "~/backups",
	}
}

// LoadFromEnvironment loads configuration from environment variables
func (c *Config) LoadFromEnvironment() {
	if dataDir := os.Getenv("COLLECTOR_DATA_DIR"); dataDir != "" {
		c.DataDir = dataDir
	}

	if logDir := os.Getenv("COLLECTOR_LOG_DIR"); logDir != "" {
		c.LogDir = logDir
	}

	if mocked := os.Getenv("COLLECTOR_MOCKED"); mocked != "" {
		if m, err := strconv.ParseBool(mocked); err == nil {
			c.Mocked = m
		}
	}

	if baseURL := os.Getenv("COLLECTOR_BASE_URL"); baseURL != "" {
		c.BaseURL = baseURL
	}

	if timeout := os.Getenv("COLLECTOR_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			c.RequestTimeout = time.Duration(t) * time.Second
		}
	}

	if delay := os.Getenv("COLLECTOR_SIMULATED_DELAY"); delay != "" {
		if d, err := strconv.Atoi(delay); err == nil {
			c.SimulatedDelay = time.Duration(d) * time.Millisecond
		}
	}

	if rate := os.Getenv("COLLECTOR_SIMULATED_ERRORS"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			c.SimulatedErrors = r
		}
	}

	if delay := os.Getenv("COLLECTOR_RETRY_DELAY"); delay != "" {
		if d, err := strconv.Atoi(delay); err == nil {
			c.RetryDelay = time.Duration(d) * time.Millisecond
		}
	}

	if delay := os.Getenv("COLLECTOR_REMOVE_DELAY"); delay != "" {
		if d, err := strconv.Atoi(delay); err == nil {
			c.RemoveDelay = time.Duration(d) * time.Millisecond
		}
	}

	if backupDir := os.Getenv("COLLECTOR_BACKUP_DIR"); backupDir != "" {
		c.BackupDir = backupDir
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DataDir == "" && !c.Mocked {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base URL must be an absolute URL, got: %q", c.BaseURL)
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got: %v", c.RequestTimeout)
	}

	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive, got: %v", c.RetryDelay)
	}

	if c.RemoveDelay < 0 {
		return fmt.Errorf("remove delay must be non-negative, got: %v", c.RemoveDelay)
	}

	if c.SimulatedErrors < 0 || c.SimulatedErrors > 1 {
		return fmt.Errorf("simulated error rate must be between 0 and 1, got: %v", c.SimulatedErrors)
	}

	return nil
}

package config

import (
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.RetryDelay != time.Second {
		t.Errorf("Expected retry delay 1s, got %v", cfg.RetryDelay)
	}
	if cfg.RemoveDelay != 200*time.Millisecond {
		t.Errorf("Expected remove delay 200ms, got %v", cfg.RemoveDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("COLLECTOR_DATA_DIR", "/tmp/collector")
	t.Setenv("COLLECTOR_BASE_URL", "http://localhost:8080")
	t.Setenv("COLLECTOR_RETRY_DELAY", "250")
	t.Setenv("COLLECTOR_REMOVE_DELAY", "50")
	t.Setenv("COLLECTOR_REQUEST_TIMEOUT", "5")
	t.Setenv("COLLECTOR_MOCKED", "true")
	t.Setenv("COLLECTOR_SIMULATED_ERRORS", "not-a-number")

	cfg := NewConfig()
	cfg.LoadFromEnvironment()

	if cfg.DataDir != "/tmp/collector" {
		t.Errorf("Expected data dir /tmp/collector, got %s", cfg.DataDir)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("Expected base URL from env, got %s", cfg.BaseURL)
	}
	if cfg.RetryDelay != 250*time.Millisecond {
		t.Errorf("Expected retry delay 250ms, got %v", cfg.RetryDelay)
	}
	if cfg.RemoveDelay != 50*time.Millisecond {
		t.Errorf("Expected remove delay 50ms, got %v", cfg.RemoveDelay)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("Expected request timeout 5s, got %v", cfg.RequestTimeout)
	}
	if !cfg.Mocked {
		t.Error("Expected mocked to be true")
	}
	if cfg.SimulatedErrors != 0 {
		t.Errorf("Expected invalid error rate to be ignored, got %v", cfg.SimulatedErrors)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"relative base url", func(c *Config) { c.BaseURL = "localhost" }, true},
		{"zero retry delay", func(c *Config) { c.RetryDelay = 0 }, true},
		{"negative remove delay", func(c *Config) { c.RemoveDelay = -time.Millisecond }, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, true},
		{"empty data dir when mocked", func(c *Config) { c.DataDir = ""; c.Mocked = true }, false},
		{"error rate above one", func(c *Config) { c.SimulatedErrors = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

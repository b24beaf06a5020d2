package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvironmentReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("COLLECTOR_ENV_TEST=from-file\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("COLLECTOR_ENV_TEST") })

	LoadEnvironment()

	if got := os.Getenv("COLLECTOR_ENV_TEST"); got != "from-file" {
		t.Errorf("Expected value from .env, got %q", got)
	}
}

func TestLoadEnvironmentKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("COLLECTOR_ENV_KEEP=from-file\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("COLLECTOR_ENV_KEEP", "from-env")

	LoadEnvironment()

	if got := os.Getenv("COLLECTOR_ENV_KEEP"); got != "from-env" {
		t.Errorf("Expected existing value to win, got %q", got)
	}
}

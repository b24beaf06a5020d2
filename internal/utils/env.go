package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/kelsos/collector-sync/internal/logger"
)

// LoadEnvironment loads COLLECTOR_* settings from .env files in the current
// directory and next to the executable. Variables already set win.
func LoadEnvironment() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file in current directory: %v", err)
	} else {
		logger.Info("Loaded .env file from current directory")
	}

	execPath, err := os.Executable()
	if err != nil {
		logger.Debug("Could not determine executable path: %v", err)
		return
	}

	execDir := filepath.Dir(execPath)
	envPath := filepath.Join(execDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Debug("No .env file in app directory (%s): %v", execDir, err)
	} else {
		logger.Info("Loaded .env file from app directory: %s", execDir)
	}
}

package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelsos/collector-sync/internal/logger"
	"github.com/kelsos/collector-sync/internal/storage"
)

// GetDefaultBackupDir returns the default backup directory
func GetDefaultBackupDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	backupDir := filepath.Join(homeDir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	return backupDir, nil
}

// CreateBackup zips the saved tasks under dataDir into backupDir and returns
// the archive path.
func CreateBackup(dataDir, backupDir string) (string, error) {
	dataDir, err := storage.ResolveDataDir(dataDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}

	if backupDir == "" {
		backupDir, err = GetDefaultBackupDir()
		if err != nil {
			return "", fmt.Errorf("failed to get default backup directory: %w", err)
		}
	} else {
		backupDir, err = storage.ResolveDataDir(backupDir)
		if err != nil {
			return "", fmt.Errorf("failed to resolve backup directory: %w", err)
		}
	}

	timestamp := time.Now().Format("20060102_150405")
	backupFile := filepath.Join(backupDir, fmt.Sprintf("collector_backup_%s.zip", timestamp))

	zipFile, err := os.Create(backupFile)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	err = filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
		return AddToZip(path, info, err, dataDir, zipWriter)
	})
	if err != nil {
		zipWriter.Close()
		return "", fmt.Errorf("failed to create backup: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize backup: %w", err)
	}

	logger.Info("Backup created successfully: %s", backupFile)
	return backupFile, nil
}

func AddToZip(path string, info os.FileInfo, err error, dataDir string, zipWriter *zip.Writer) error {
	if err != nil {
		return err
	}

	if path == dataDir {
		return nil
	}

	relPath, err := filepath.Rel(dataDir, path)
	if err != nil {
		return fmt.Errorf("failed to get relative path: %w", err)
	}

	if !ShouldIncludeInBackup(relPath, info.IsDir()) {
		if info.IsDir() {
			logger.Debug("Skipping directory: %s", relPath)
			return filepath.SkipDir
		}
		logger.Debug("Skipping file: %s", relPath)
		return nil
	}

	zipPath := filepath.ToSlash(relPath)
	if info.IsDir() {
		_, err = zipWriter.Create(zipPath + "/")
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create file header: %w", err)
	}

	header.Name = zipPath
	header.Method = zip.Deflate

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create file in zip: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	logger.Debug("Added file to backup: %s", relPath)
	return nil
}

// ShouldIncludeInBackup keeps the tasks directory and the task records in it.
// Logs and half written temp files stay out.
func ShouldIncludeInBackup(relPath string, isDir bool) bool {
	components := strings.Split(relPath, string(filepath.Separator))
	if len(components) == 0 || components[0] != "tasks" {
		return false
	}

	switch len(components) {
	case 1:
		return isDir
	case 2:
		return !isDir && strings.HasSuffix(components[1], ".json")
	default:
		return false
	}
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelsos/collector-sync/internal/logger"
	"github.com/kelsos/collector-sync/internal/models"
)

var ErrNotFound = errors.New("task not found")

const tasksDir = "tasks"

// ResolveDataDir expands a leading ~ and makes sure the directory exists
func ResolveDataDir(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		dir = filepath.Join(homeDir, strings.TrimPrefix(dir, "~"))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dir, nil
}

// FileStore keeps one JSON file per task under <data-dir>/tasks.
type FileStore struct {
	dir string
}

// NewFileStore creates the task directory inside dataDir if needed
func NewFileStore(dataDir string) (*FileStore, error) {
	root, err := ResolveDataDir(dataDir)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(root, tasksDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tasks directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the task files
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) taskPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid task id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// LoadTasks reads every task file. Files that cannot be decoded are skipped.
func (s *FileStore) LoadTasks(ctx context.Context) (models.Tasks, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks directory: %w", err)
	}

	tasks := make(models.Tasks, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		task, err := readTask(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			logger.Warn("Skipping task file %s: %v", entry.Name(), err)
			continue
		}
		tasks[task.ID] = task
	}

	logger.Debug("Loaded %d tasks from %s", len(tasks), s.dir)
	return tasks, nil
}

// GetTask reads a single task
func (s *FileStore) GetTask(ctx context.Context, id string) (models.Task, error) {
	path, err := s.taskPath(id)
	if err != nil {
		return models.Task{}, err
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return models.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return readTask(path)
}

// SaveTask writes the task to a temporary file and renames it into place
func (s *FileStore) SaveTask(ctx context.Context, task models.Task) error {
	path, err := s.taskPath(task.ID)
	if err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, task.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary task file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(jsonData); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write task file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close task file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move task file into place: %w", err)
	}

	logger.Debug("Saved task %s to %s", task.ID, path)
	return nil
}

func readTask(path string) (models.Task, error) {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to read task file: %w", err)
	}

	var task models.Task
	if err := json.Unmarshal(fileData, &task); err != nil {
		return models.Task{}, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	if task.ID == "" {
		task.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	return task, nil
}

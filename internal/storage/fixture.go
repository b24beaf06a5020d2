package storage

import (
	"context"
	"sync"
	"time"

	"github.com/kelsos/collector-sync/internal/models"
)

// DemoTasks returns the seed tasks used for demos and the mocked mode.
func DemoTasks() models.Tasks {
	collectedOn := time.Now()
	demo := func(id string) models.Task {
		return models.Task{
			ID:          id,
			Mocked:      true,
			State:       models.TaskStatePending,
			CollectedOn: collectedOn,
			Data:        map[string]any{"1": "jgkf", "2": "kjgfg"},
			Assets:      map[string]models.Asset{},
			Geometry:    models.Geometry{Latitude: 0, Longitude: 0},
		}
	}

	return models.Tasks{
		"1": demo("1"),
		"2": demo("2"),
	}
}

// FixtureStore is an in-memory store. Saved tasks live as long as the process.
type FixtureStore struct {
	mu    sync.RWMutex
	tasks models.Tasks
}

// NewFixtureStore creates a store holding a copy of tasks
func NewFixtureStore(tasks models.Tasks) *FixtureStore {
	return &FixtureStore{tasks: tasks.Clone()}
}

func (s *FixtureStore) LoadTasks(ctx context.Context) (models.Tasks, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks.Clone(), nil
}

func (s *FixtureStore) SaveTask(ctx context.Context, task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
	return nil
}

package machine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kelsos/collector-sync/internal/models"
)

const waitTimeout = 2 * time.Second

func eventually(t *testing.T, msg string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", msg)
}

func newTask(id string, state models.TaskState) models.Task {
	return models.Task{
		ID:          id,
		State:       state,
		CollectedOn: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Data:        map[string]any{"1": "jgkf", "2": "kjgfg"},
		Assets:      map[string]models.Asset{},
	}
}

type memStore struct {
	mu      sync.Mutex
	tasks   models.Tasks
	loadErr error
	saveErr error
	saved   []models.Task
}

func (s *memStore) LoadTasks(ctx context.Context) (models.Tasks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.tasks.Clone(), nil
}

func (s *memStore) SaveTask(ctx context.Context, task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saved = append(s.saved, task)
	return s.saveErr
}

func (s *memStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// recordingSubmitter counts calls per task and answers with the outcome
// function.
type recordingSubmitter struct {
	mu      sync.Mutex
	calls   map[string][]time.Time
	states  []models.TaskState
	outcome func(ctx context.Context, task models.Task, attempt int, report Reporter) (any, error)
}

func newRecordingSubmitter(outcome func(ctx context.Context, task models.Task, attempt int, report Reporter) (any, error)) *recordingSubmitter {
	return &recordingSubmitter{
		calls:   make(map[string][]time.Time),
		outcome: outcome,
	}
}

func (s *recordingSubmitter) Submit(ctx context.Context, task models.Task, report Reporter) (any, error) {
	s.mu.Lock()
	s.calls[task.ID] = append(s.calls[task.ID], time.Now())
	s.states = append(s.states, task.State)
	attempt := len(s.calls[task.ID])
	s.mu.Unlock()

	return s.outcome(ctx, task, attempt, report)
}

func (s *recordingSubmitter) callTimes(id string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.calls[id]...)
}

func (s *recordingSubmitter) callCount(id string) int {
	return len(s.callTimes(id))
}

var errUnreachable = errors.New("network unreachable")

func succeed(ctx context.Context, task models.Task, attempt int, report Reporter) (any, error) {
	return "ok-" + task.ID, nil
}

func alwaysFail(ctx context.Context, task models.Task, attempt int, report Reporter) (any, error) {
	return nil, errUnreachable
}

func failFirst(ctx context.Context, task models.Task, attempt int, report Reporter) (any, error) {
	if attempt == 1 {
		return nil, errUnreachable
	}
	return "ok-" + task.ID, nil
}

func blockUntilCancelled(ctx context.Context, task models.Task, attempt int, report Reporter) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

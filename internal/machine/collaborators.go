package machine

import (
	"context"

	"github.com/kelsos/collector-sync/internal/models"
)

// Reporter receives per-asset updates while a task is submitted.
type Reporter interface {
	// Progress reports upload progress between 0 and 1.
	Progress(assetID string, progress float64)
	// Uploaded marks an asset done and keeps the remote answer for it.
	Uploaded(assetID string, result any)
}

// Submitter uploads a task. All retrying is done by the task machine.
type Submitter interface {
	Submit(ctx context.Context, task models.Task, report Reporter) (any, error)
}

// Loader fetches the persisted tasks keyed by id.
type Loader interface {
	LoadTasks(ctx context.Context) (models.Tasks, error)
}

// Saver persists a finished task.
type Saver interface {
	SaveTask(ctx context.Context, task models.Task) error
}

// Store is the persistence collaborator used by the manager.
type Store interface {
	Loader
	Saver
}

// SubmitFunc adapts a plain function to Submitter.
type SubmitFunc func(ctx context.Context, task models.Task, report Reporter) (any, error)

func (f SubmitFunc) Submit(ctx context.Context, task models.Task, report Reporter) (any, error) {
	return f(ctx, task, report)
}

// SaveFunc adapts a plain function to Saver.
type SaveFunc func(ctx context.Context, task models.Task) error

func (f SaveFunc) SaveTask(ctx context.Context, task models.Task) error {
	return f(ctx, task)
}

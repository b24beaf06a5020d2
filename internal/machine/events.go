package machine

import (
	"github.com/kelsos/collector-sync/internal/models"
)

// TaskEvent is delivered to a single task machine.
type TaskEvent interface {
	taskEvent()
}

// Retry asks a task in the error state to submit again right away.
type Retry struct{}

// submitResult carries the outcome of one submission attempt back to the
// owning task machine.
type submitResult struct {
	attempt int
	result  any
	err     error
}

// assetProgress is reported by the submitter while assets upload.
type assetProgress struct {
	attempt  int
	assetID  string
	progress float64
}

// assetUploaded is reported by the submitter once an asset is stored remotely.
type assetUploaded struct {
	attempt int
	assetID string
	result  any
}

func (Retry) taskEvent()         {}
func (submitResult) taskEvent()  {}
func (assetProgress) taskEvent() {}
func (assetUploaded) taskEvent() {}

// Event is delivered to the manager.
type Event interface {
	managerEvent()
}

// AddTask inserts or overwrites a task and spawns a machine for it.
type AddTask struct {
	Task models.Task
}

// RemoveTask stops the machine for ID and forgets the task.
type RemoveTask struct {
	ID string
}

// TaskDone is sent by a task machine once it reaches submitted.
type TaskDone struct {
	Context TaskContext

	source *TaskMachine
}

// Broadcast forwards Event to every spawned task machine.
type Broadcast struct {
	Event TaskEvent
}

// loadResult carries the outcome of the initial load.
type loadResult struct {
	tasks models.Tasks
	err   error
}

func (AddTask) managerEvent()    {}
func (RemoveTask) managerEvent() {}
func (TaskDone) managerEvent()   {}
func (Broadcast) managerEvent()  {}
func (loadResult) managerEvent() {}

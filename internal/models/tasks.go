package models

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateUploading TaskState = "uploading"
	TaskStateDone      TaskState = "done"
)

// IsPending reports whether a task in this state still has work left to upload.
func (s TaskState) IsPending() bool {
	return s == TaskStatePending || s == TaskStateUploading
}

type Geometry struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// File describes where a media item lives on the device.
type File struct {
	URI      string `json:"uri"`
	Type     string `json:"type"`
	FileName string `json:"file_name"`
}

type Asset struct {
	File
	ID       string    `json:"id"`
	Result   any       `json:"result,omitempty"`
	Progress float64   `json:"progress"`
	State    TaskState `json:"state"`
}

// Task is one collected record waiting to be uploaded.
type Task struct {
	ID          string           `json:"id"`
	Mocked      bool             `json:"mocked"`
	State       TaskState        `json:"state"`
	CollectedOn time.Time        `json:"collected_on"`
	Data        map[string]any   `json:"data"`
	Assets      map[string]Asset `json:"assets"`
	Geometry    Geometry         `json:"geometry"`
}

// Clone returns a copy of the task that shares no maps with the receiver.
func (t Task) Clone() Task {
	out := t
	if t.Data != nil {
		out.Data = maps.Clone(t.Data)
	}
	if t.Assets != nil {
		out.Assets = maps.Clone(t.Assets)
	}
	return out
}

type Tasks map[string]Task

// Clone deep-copies every task in the mapping.
func (ts Tasks) Clone() Tasks {
	out := make(Tasks, len(ts))
	for id, task := range ts {
		out[id] = task.Clone()
	}
	return out
}

// NewTask creates a pending task with a fresh id, collected now.
func NewTask(data map[string]any, geometry Geometry) Task {
	if data == nil {
		data = map[string]any{}
	}
	return Task{
		ID:          uuid.NewString(),
		State:       TaskStatePending,
		CollectedOn: time.Now(),
		Data:        data,
		Assets:      map[string]Asset{},
		Geometry:    geometry,
	}
}

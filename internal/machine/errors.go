package machine

import "errors"

var (
	ErrAlreadyStarted = errors.New("machine already started")
	ErrManagerStopped = errors.New("manager stopped")
	ErrTaskStopped    = errors.New("task machine stopped")
	ErrNotStarted     = errors.New("task machine not started")
)

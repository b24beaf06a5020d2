package machine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelsos/collector-sync/internal/logger"
	"github.com/kelsos/collector-sync/internal/models"
)

type TaskStateName string

const (
	TaskIdle       TaskStateName = "idle"
	TaskSubmitting TaskStateName = "submitting"
	TaskSubmitted  TaskStateName = "submitted"
	TaskError      TaskStateName = "error"
)

// DefaultRetryDelay is how long a failed task waits before submitting again.
const DefaultRetryDelay = time.Second

const taskMailboxSize = 16

// TaskContext is the data owned by a single task machine.
type TaskContext struct {
	models.Task

	// Result is the last successful submit answer.
	Result any
	// Error is the last submit failure.
	Error error
}

func (c TaskContext) clone() TaskContext {
	c.Task = c.Task.Clone()
	return c
}

// TaskSnapshot is the read-only view a presentation layer renders.
type TaskSnapshot struct {
	State   TaskStateName
	Context TaskContext
}

// Matches reports whether the snapshot is in the given state.
func (s TaskSnapshot) Matches(state TaskStateName) bool {
	return s.State == state
}

// DefaultTaskContext is the context every task machine starts from before
// the task record is merged in.
func DefaultTaskContext() TaskContext {
	return TaskContext{
		Task: models.Task{
			State:  models.TaskStatePending,
			Data:   map[string]any{},
			Assets: map[string]models.Asset{},
		},
	}
}

// newTaskContext merges task over the defaults; zero fields keep the default.
func newTaskContext(task models.Task) TaskContext {
	ctx := DefaultTaskContext()
	defaults := ctx.Task

	ctx.Task = task.Clone()
	if ctx.State == "" {
		ctx.State = defaults.State
	}
	if ctx.Data == nil {
		ctx.Data = defaults.Data
	}
	if ctx.Assets == nil {
		ctx.Assets = defaults.Assets
	}
	return ctx
}

// TaskOptions wires a task machine to its collaborators.
type TaskOptions struct {
	Submitter  Submitter
	Saver      Saver
	RetryDelay time.Duration

	// Parent receives TaskDone once the task is submitted. May be nil.
	Parent chan<- Event
}

// TaskMachine drives one task through submission, error and retry.
type TaskMachine struct {
	id         string
	submitter  Submitter
	saver      Saver
	parent     chan<- Event
	retryDelay time.Duration

	mailbox chan TaskEvent
	done    chan struct{}
	started atomic.Bool

	// mu orders Start against Stop; ctx and cancel are set once under it.
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool

	// Owned by the run goroutine.
	state         TaskStateName
	context       TaskContext
	attempt       int
	attemptCancel context.CancelFunc
	retryTimer    *time.Timer
	retryC        <-chan time.Time

	snapshots *broadcaster[TaskSnapshot]
}

// NewTaskMachine creates a task machine in the idle state. Nothing runs until Start.
func NewTaskMachine(task models.Task, opts TaskOptions) *TaskMachine {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	taskCtx := newTaskContext(task)
	return &TaskMachine{
		id:         taskCtx.ID,
		submitter:  opts.Submitter,
		saver:      opts.Saver,
		parent:     opts.Parent,
		retryDelay: opts.RetryDelay,
		mailbox:    make(chan TaskEvent, taskMailboxSize),
		done:       make(chan struct{}),
		state:      TaskIdle,
		context:    taskCtx,
		snapshots: newBroadcaster(TaskSnapshot{
			State:   TaskIdle,
			Context: taskCtx.clone(),
		}),
	}
}

// ID returns the id of the task this machine drives.
func (m *TaskMachine) ID() string {
	return m.id
}

// Start launches the machine's run loop. A stopped machine cannot be started.
func (m *TaskMachine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrTaskStopped
	}
	if m.started.Load() {
		return ErrAlreadyStarted
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started.Store(true)
	go m.run()
	return nil
}

// Stop cancels the pending retry timer and any in-flight submission and
// waits for the run loop to exit.
func (m *TaskMachine) Stop() {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		if m.started.Load() {
			m.cancel()
		} else {
			m.snapshots.close()
			close(m.done)
		}
	}
	m.mu.Unlock()

	<-m.done
}

// Done is closed once the machine has stopped.
func (m *TaskMachine) Done() <-chan struct{} {
	return m.done
}

// Send delivers an event, blocking while the mailbox is full. It fails with
// ErrNotStarted before Start.
func (m *TaskMachine) Send(ev TaskEvent) error {
	select {
	case <-m.done:
		return ErrTaskStopped
	default:
	}
	if !m.started.Load() {
		return ErrNotStarted
	}

	select {
	case m.mailbox <- ev:
		return nil
	case <-m.done:
		return ErrTaskStopped
	}
}

// trySend delivers an event only if the mailbox has room.
func (m *TaskMachine) trySend(ev TaskEvent) bool {
	if !m.started.Load() {
		return false
	}
	select {
	case m.mailbox <- ev:
		return true
	default:
		return false
	}
}

// Snapshot returns the latest published state and context.
func (m *TaskMachine) Snapshot() TaskSnapshot {
	return m.snapshots.current()
}

// Subscribe returns a channel of snapshots, starting with the current one.
// The channel is closed when the machine stops or the returned func is called.
func (m *TaskMachine) Subscribe() (<-chan TaskSnapshot, func()) {
	return m.snapshots.subscribe()
}

func (m *TaskMachine) run() {
	defer func() {
		m.stopRetryTimer()
		if m.attemptCancel != nil {
			m.attemptCancel()
		}
		m.snapshots.close()
		close(m.done)
	}()

	if m.context.State == models.TaskStateDone {
		m.enterSubmitted()
	} else {
		m.enterSubmitting()
	}

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.retryC:
			m.retryC = nil
			m.retryTimer = nil
			if m.state == TaskError {
				logger.Debug("Retrying task %s after %v", m.id, m.retryDelay)
				m.enterSubmitting()
			}
		case ev := <-m.mailbox:
			m.handle(ev)
		}
	}
}

func (m *TaskMachine) handle(ev TaskEvent) {
	switch ev := ev.(type) {
	case Retry:
		if m.state != TaskError {
			logger.Debug("Task %s ignoring retry in state %s", m.id, m.state)
			return
		}
		m.enterSubmitting()

	case assetProgress:
		if m.state != TaskSubmitting || ev.attempt != m.attempt {
			return
		}
		m.setAssetProgress(ev.assetID, ev.progress)

	case assetUploaded:
		if m.state != TaskSubmitting || ev.attempt != m.attempt {
			return
		}
		m.setAssetResult(ev.assetID, ev.result)

	case submitResult:
		if m.state != TaskSubmitting || ev.attempt != m.attempt {
			logger.Debug("Task %s dropping stale result of attempt %d", m.id, ev.attempt)
			return
		}
		m.attemptCancel()
		m.attemptCancel = nil
		if ev.err != nil {
			m.context.Error = ev.err
			m.enterError()
			return
		}
		m.setResult(ev.result)
		m.enterSubmitted()
	}
}

func (m *TaskMachine) enterSubmitting() {
	m.stopRetryTimer()
	m.state = TaskSubmitting
	m.context.State = models.TaskStateUploading
	m.resetAssetProgress()
	m.publish()

	m.attempt++
	attempt := m.attempt
	attemptCtx, cancel := context.WithCancel(m.ctx)
	m.attemptCancel = cancel
	task := m.context.Task.Clone()
	report := attemptReporter{machine: m, ctx: attemptCtx, attempt: attempt}

	go func() {
		result, err := m.submitter.Submit(attemptCtx, task, report)
		m.post(attemptCtx, submitResult{attempt: attempt, result: result, err: err})
	}()
}

func (m *TaskMachine) enterSubmitted() {
	m.stopRetryTimer()
	m.state = TaskSubmitted
	m.context.State = models.TaskStateDone
	m.publish()

	m.saveTask(m.context.Task.Clone())
	m.notifyParent()
}

func (m *TaskMachine) enterError() {
	m.state = TaskError
	m.publish()

	logger.TaskError(m.id, m.context.Error)

	m.retryTimer = time.NewTimer(m.retryDelay)
	m.retryC = m.retryTimer.C
}

// setResult keeps the submit answer on the context. Nothing downstream reads
// it yet but it is part of the snapshot.
func (m *TaskMachine) setResult(result any) {
	m.context.Result = result
}

func (m *TaskMachine) setAssetProgress(assetID string, progress float64) {
	asset, ok := m.context.Assets[assetID]
	if !ok {
		logger.Debug("Task %s got progress for unknown asset %s", m.id, assetID)
		return
	}

	progress = min(max(progress, 0), 1)
	if progress < asset.Progress {
		return
	}

	asset.Progress = progress
	asset.State = models.TaskStateUploading
	if progress == 1 {
		asset.State = models.TaskStateDone
	}
	m.context.Assets[assetID] = asset
	m.publish()
}

func (m *TaskMachine) setAssetResult(assetID string, result any) {
	asset, ok := m.context.Assets[assetID]
	if !ok {
		logger.Debug("Task %s got result for unknown asset %s", m.id, assetID)
		return
	}

	asset.Result = result
	asset.Progress = 1
	asset.State = models.TaskStateDone
	m.context.Assets[assetID] = asset
	m.publish()
}

// resetAssetProgress starts a new attempt from zero for assets that have not
// finished uploading.
func (m *TaskMachine) resetAssetProgress() {
	for id, asset := range m.context.Assets {
		if asset.State != models.TaskStateDone {
			asset.Progress = 0
			m.context.Assets[id] = asset
		}
	}
}

// saveTask is fire and forget; a failed save does not stop the task from
// reporting done.
func (m *TaskMachine) saveTask(task models.Task) {
	if m.saver == nil {
		return
	}

	ctx := context.WithoutCancel(m.ctx)
	go func() {
		if err := m.saver.SaveTask(ctx, task); err != nil {
			logger.Warn("Failed to save task %s: %v", task.ID, err)
		}
	}()
}

func (m *TaskMachine) notifyParent() {
	if m.parent == nil {
		return
	}

	select {
	case m.parent <- TaskDone{Context: m.context.clone(), source: m}:
	case <-m.ctx.Done():
	}
}

func (m *TaskMachine) post(ctx context.Context, ev TaskEvent) {
	select {
	case m.mailbox <- ev:
	case <-ctx.Done():
	}
}

func (m *TaskMachine) publish() {
	m.snapshots.publish(TaskSnapshot{
		State:   m.state,
		Context: m.context.clone(),
	})
}

func (m *TaskMachine) stopRetryTimer() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = nil
	m.retryC = nil
}

// attemptReporter posts asset updates of one attempt to the machine. Updates
// from an attempt that is no longer current are dropped by the run loop.
type attemptReporter struct {
	machine *TaskMachine
	ctx     context.Context
	attempt int
}

func (r attemptReporter) Progress(assetID string, progress float64) {
	r.machine.post(r.ctx, assetProgress{attempt: r.attempt, assetID: assetID, progress: progress})
}

func (r attemptReporter) Uploaded(assetID string, result any) {
	r.machine.post(r.ctx, assetUploaded{attempt: r.attempt, assetID: assetID, result: result})
}

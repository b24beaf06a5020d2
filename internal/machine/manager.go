package machine

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelsos/collector-sync/internal/logger"
	"github.com/kelsos/collector-sync/internal/models"
)

type ManagerStateName string

const (
	ManagerLocal    ManagerStateName = "local"
	ManagerSpawning ManagerStateName = "spawning"
	ManagerIdle     ManagerStateName = "idle"
)

// DefaultRemoveDelay is how long a finished task stays visible before it is removed.
const DefaultRemoveDelay = 200 * time.Millisecond

const defaultMailboxSize = 64

// ManagerSnapshot is the read-only view of the manager.
type ManagerSnapshot struct {
	State   ManagerStateName
	Tasks   models.Tasks
	Spawned map[string]*TaskMachine
}

// Matches reports whether the snapshot is in the given state.
func (s ManagerSnapshot) Matches(state ManagerStateName) bool {
	return s.State == state
}

// HasTasks reports whether any task is known.
func (s ManagerSnapshot) HasTasks() bool {
	return HasTasks(s.Tasks)
}

// HasPendingTasks reports whether any task still has to be uploaded.
func (s ManagerSnapshot) HasPendingTasks() bool {
	return HasPendingTasks(s.Tasks)
}

// HasTasks reports whether tasks is non-empty.
func HasTasks(tasks models.Tasks) bool {
	return len(tasks) > 0
}

// HasPendingTasks reports whether at least one task is pending or uploading.
func HasPendingTasks(tasks models.Tasks) bool {
	for _, task := range tasks {
		if task.State.IsPending() {
			return true
		}
	}
	return false
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRetryDelay sets the backoff used by every spawned task machine.
func WithRetryDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.retryDelay = d
	}
}

// WithRemoveDelay sets how long a finished task is kept before removal.
func WithRemoveDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.removeDelay = d
	}
}

// Manager owns the task mapping and one TaskMachine per task.
type Manager struct {
	store       Store
	submitter   Submitter
	retryDelay  time.Duration
	removeDelay time.Duration

	mailbox  chan Event
	quit     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once

	// Owned by the run goroutine.
	ctx     context.Context
	state   ManagerStateName
	tasks   models.Tasks
	spawned map[string]*TaskMachine

	snapshots *broadcaster[ManagerSnapshot]
}

// NewManager creates a manager in the local state. Call Start to load tasks.
func NewManager(store Store, submitter Submitter, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		submitter:   submitter,
		retryDelay:  DefaultRetryDelay,
		removeDelay: DefaultRemoveDelay,
		mailbox:     make(chan Event, defaultMailboxSize),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		state:       ManagerLocal,
		tasks:       make(models.Tasks),
		spawned:     make(map[string]*TaskMachine),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snapshots = newBroadcaster(m.snapshot())
	return m
}

// Start loads the persisted tasks and begins processing events.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		select {
		case <-m.quit:
			return ErrManagerStopped
		default:
			return ErrAlreadyStarted
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-m.quit:
		case <-runCtx.Done():
		}
		cancel()
	}()

	m.ctx = runCtx
	go m.run()
	return nil
}

// Stop stops every spawned task machine and waits for the manager to exit.
// A manager stopped before Start never runs.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
		if m.started.CompareAndSwap(false, true) {
			m.snapshots.close()
			close(m.done)
		}
	})
	<-m.done
}

// Done is closed once the manager and its task machines have stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Send enqueues an event. Events are handled one at a time in arrival order.
// It returns ErrManagerStopped once Stop was called or the run loop exited.
func (m *Manager) Send(ev Event) error {
	if m.stopped() {
		return ErrManagerStopped
	}

	select {
	case m.mailbox <- ev:
	case <-m.quit:
		return ErrManagerStopped
	case <-m.done:
		return ErrManagerStopped
	}

	// The loop may have exited while the event sat in the mailbox.
	if m.stopped() {
		return ErrManagerStopped
	}
	return nil
}

func (m *Manager) stopped() bool {
	select {
	case <-m.quit:
		return true
	case <-m.done:
		return true
	default:
		return false
	}
}

// Snapshot returns the latest published state, tasks and spawned machines.
func (m *Manager) Snapshot() ManagerSnapshot {
	return m.snapshots.current()
}

// Subscribe returns a channel of snapshots, starting with the current one.
func (m *Manager) Subscribe() (<-chan ManagerSnapshot, func()) {
	return m.snapshots.subscribe()
}

func (m *Manager) run() {
	defer func() {
		for id, child := range m.spawned {
			child.Stop()
			delete(m.spawned, id)
		}
		m.snapshots.close()
		close(m.done)
	}()

	m.enterLocal()

	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.mailbox:
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev Event) {
	switch m.state {
	case ManagerLocal:
		if res, ok := ev.(loadResult); ok {
			m.handleLoadResult(res)
			return
		}
	case ManagerIdle:
		switch ev := ev.(type) {
		case AddTask:
			if ev.Task.ID == "" {
				logger.Warn("Manager ignoring task without id")
				return
			}
			m.setTask(ev.Task)
			m.enterSpawning()
			return
		case RemoveTask:
			m.removeTask(ev.ID)
			return
		case TaskDone:
			m.handleTaskDone(ev)
			return
		case Broadcast:
			m.notifyAllTasks(ev.Event)
			return
		}
	}
	logger.Debug("Manager dropping %T in state %s", ev, m.state)
}

func (m *Manager) enterLocal() {
	m.state = ManagerLocal
	m.publish()

	ctx := m.ctx
	go func() {
		tasks, err := m.store.LoadTasks(ctx)
		m.post(loadResult{tasks: tasks, err: err})
	}()
}

// handleLoadResult leaves the manager in local on failure; there is no
// retry for the initial load.
func (m *Manager) handleLoadResult(res loadResult) {
	if res.err != nil {
		logger.Error("Failed to load saved tasks: %v", res.err)
		return
	}

	m.setTasks(res.tasks)
	m.enterSpawning()
}

// enterSpawning spawns every task without a machine and settles in idle.
func (m *Manager) enterSpawning() {
	m.state = ManagerSpawning
	m.spawnTasks()
	m.state = ManagerIdle
	m.publish()
}

func (m *Manager) spawnTasks() {
	for id, task := range m.tasks {
		if _, ok := m.spawned[id]; ok {
			continue
		}

		child := NewTaskMachine(task, TaskOptions{
			Submitter:  m.submitter,
			Saver:      m.store,
			RetryDelay: m.retryDelay,
			Parent:     m.mailbox,
		})
		if err := child.Start(m.ctx); err != nil {
			logger.Error("Failed to start task %s: %v", id, err)
			continue
		}
		m.spawned[id] = child
		logger.Debug("Spawned task %s", id)
	}
}

func (m *Manager) handleTaskDone(ev TaskDone) {
	id := ev.Context.ID
	if ev.source != nil && m.spawned[id] != ev.source {
		logger.Debug("Manager dropping done event from stopped task %s", id)
		return
	}

	m.setTask(ev.Context.Task)
	m.scheduleRemove(id)
}

// scheduleRemove sends RemoveTask after the remove delay so the done state
// stays visible for a moment.
func (m *Manager) scheduleRemove(id string) {
	ctx := m.ctx
	delay := m.removeDelay
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			m.post(RemoveTask{ID: id})
		case <-ctx.Done():
		}
	}()
}

// removeTask stops the machine before the map entries go away so nothing it
// sent afterwards can match a spawned handle.
func (m *Manager) removeTask(id string) {
	if child, ok := m.spawned[id]; ok {
		child.Stop()
	}
	delete(m.tasks, id)
	delete(m.spawned, id)
	m.publish()
}

func (m *Manager) setTask(task models.Task) {
	m.tasks[task.ID] = task.Clone()
	m.publish()
}

// setTasks merges loaded tasks by key; the key wins over an empty task id.
func (m *Manager) setTasks(tasks models.Tasks) {
	for id, task := range tasks {
		if task.ID == "" {
			task.ID = id
		}
		m.tasks[id] = task.Clone()
	}
}

func (m *Manager) notifyAllTasks(ev TaskEvent) {
	for id, child := range m.spawned {
		if !child.trySend(ev) {
			logger.Warn("Task %s mailbox full, dropping %T", id, ev)
		}
	}
}

func (m *Manager) post(ev Event) {
	select {
	case m.mailbox <- ev:
	case <-m.ctx.Done():
	}
}

func (m *Manager) publish() {
	m.snapshots.publish(m.snapshot())
}

func (m *Manager) snapshot() ManagerSnapshot {
	return ManagerSnapshot{
		State:   m.state,
		Tasks:   m.tasks.Clone(),
		Spawned: maps.Clone(m.spawned),
	}
}

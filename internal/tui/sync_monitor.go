package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kelsos/collector-sync/internal/logger"
	"github.com/kelsos/collector-sync/internal/machine"
)

// Sender is the subset of the manager the monitor needs.
type Sender interface {
	Send(ev machine.Event) error
	Subscribe() (<-chan machine.ManagerSnapshot, func())
}

// SyncMonitor feeds manager and task snapshots into a bubbletea program.
type SyncMonitor struct {
	manager Sender
	program *tea.Program
}

func NewSyncMonitor(manager Sender) *SyncMonitor {
	return &SyncMonitor{
		manager: manager,
	}
}

func (sm *SyncMonitor) Start() error {
	model := NewModel(sm.manager.Send)
	sm.program = tea.NewProgram(model, tea.WithAltScreen())

	return nil
}

func (sm *SyncMonitor) Stop() {
	if sm.program != nil {
		sm.program.Quit()
	}
}

func (sm *SyncMonitor) AddLog(message string) {
	if sm.program != nil {
		sm.program.Send(LogMessage{
			Message: message,
		})
	}
}

// Run blocks until the program exits or ctx is cancelled.
func (sm *SyncMonitor) Run(ctx context.Context) error {
	if sm.program == nil {
		if err := sm.Start(); err != nil {
			return err
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go sm.forward(watchCtx, sm.program.Send)
	go func() {
		<-watchCtx.Done()
		sm.Stop()
	}()

	if _, err := sm.program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	return nil
}

// forward relays manager snapshots and the snapshots of every spawned task
// machine until ctx is cancelled or the manager stops.
func (sm *SyncMonitor) forward(ctx context.Context, send func(tea.Msg)) {
	updates, unsubscribe := sm.manager.Subscribe()
	defer unsubscribe()

	watched := make(map[*machine.TaskMachine]func())
	defer func() {
		for _, stop := range watched {
			stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				sm.AddLog("Manager stopped")
				return
			}
			send(ManagerUpdate{Snapshot: snap})

			live := make(map[*machine.TaskMachine]bool, len(snap.Spawned))
			for id, child := range snap.Spawned {
				live[child] = true
				if _, ok := watched[child]; ok {
					continue
				}
				watched[child] = watchTask(ctx, id, child, send)
			}
			for child, stop := range watched {
				if !live[child] {
					stop()
					delete(watched, child)
				}
			}
		}
	}
}

func watchTask(ctx context.Context, id string, child *machine.TaskMachine, send func(tea.Msg)) func() {
	updates, unsubscribe := child.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					logger.Debug("Stopped watching task %s", id)
					return
				}
				send(TaskUpdate{ID: id, Snapshot: snap})
			}
		}
	}()
	return unsubscribe
}

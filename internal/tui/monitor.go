package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/kelsos/collector-sync/internal/machine"
	"github.com/kelsos/collector-sync/internal/models"
)

type Model struct {
	managerState machine.ManagerStateName
	order        []string
	tasks        map[string]machine.TaskSnapshot
	logs         []string
	send         func(machine.Event) error
	spinner      spinner.Model
	progress     progress.Model
	width        int
	height       int
	quit         bool
	doneCount    int
}

// ManagerUpdate carries a new manager snapshot.
type ManagerUpdate struct {
	Snapshot machine.ManagerSnapshot
}

// TaskUpdate carries a new snapshot of one task machine.
type TaskUpdate struct {
	ID       string
	Snapshot machine.TaskSnapshot
}

type LogMessage struct {
	Message string
}

type sendResult struct {
	err error
}

// NewModel creates the model. send is used to deliver user events to the manager.
func NewModel(send func(machine.Event) error) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	pr := progress.New(progress.WithDefaultGradient())

	return Model{
		managerState: machine.ManagerLocal,
		tasks:        make(map[string]machine.TaskSnapshot),
		logs:         []string{},
		send:         send,
		spinner:      sp,
		progress:     pr,
		width:        80,
		height:       24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		case "r":
			m = m.handleLogMessage(LogMessage{Message: "🔁 Retrying failed tasks"})
			cmds = append(cmds, m.retryAll())
		}

	case tea.WindowSizeMsg:
		m = m.handleWindowSizeMsg(msg)

	case ManagerUpdate:
		m = m.handleManagerUpdate(msg)

	case TaskUpdate:
		m = m.handleTaskUpdate(msg)

	case LogMessage:
		m = m.handleLogMessage(msg)

	case sendResult:
		if msg.err != nil {
			m = m.handleLogMessage(LogMessage{Message: fmt.Sprintf("❌ %v", msg.err)})
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		if progressModel, ok := progressModel.(progress.Model); ok {
			m.progress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) retryAll() tea.Cmd {
	send := m.send
	return func() tea.Msg {
		if send == nil {
			return nil
		}
		return sendResult{err: send(machine.Broadcast{Event: machine.Retry{}})}
	}
}

func (m Model) handleWindowSizeMsg(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.progress.Width = max(msg.Width-50, 10)
	return m
}

// handleManagerUpdate keeps the task list in the manager's order of collection
// and forgets tasks that were removed.
func (m Model) handleManagerUpdate(msg ManagerUpdate) Model {
	snap := msg.Snapshot
	m.managerState = snap.State

	tasks := make(map[string]machine.TaskSnapshot, len(snap.Tasks))
	for id := range snap.Tasks {
		if existing, ok := m.tasks[id]; ok {
			tasks[id] = existing
			continue
		}
		if child, ok := snap.Spawned[id]; ok {
			tasks[id] = child.Snapshot()
		}
	}
	for id := range m.tasks {
		if _, ok := tasks[id]; !ok {
			m.doneCount++
		}
	}
	m.tasks = tasks
	m.order = sortedTaskIDs(snap.Tasks)
	return m
}

func (m Model) handleTaskUpdate(msg TaskUpdate) Model {
	if !slices.Contains(m.order, msg.ID) {
		return m
	}

	previous, seen := m.tasks[msg.ID]
	tasks := make(map[string]machine.TaskSnapshot, len(m.tasks))
	for id, snap := range m.tasks {
		tasks[id] = snap
	}
	tasks[msg.ID] = msg.Snapshot
	m.tasks = tasks

	if msg.Snapshot.Matches(machine.TaskError) && (!seen || !previous.Matches(machine.TaskError)) {
		m = m.handleLogMessage(LogMessage{Message: fmt.Sprintf("❌ Task %s failed: %v", msg.ID, msg.Snapshot.Context.Error)})
	}
	if msg.Snapshot.Matches(machine.TaskSubmitted) && (!seen || !previous.Matches(machine.TaskSubmitted)) {
		m = m.handleLogMessage(LogMessage{Message: fmt.Sprintf("✅ Task %s uploaded", msg.ID)})
	}
	return m
}

func (m Model) handleLogMessage(msg LogMessage) Model {
	logs := append(slices.Clone(m.logs), fmt.Sprintf("[%s] %s",
		time.Now().Format("15:04:05"), msg.Message))
	if len(logs) > 10 {
		logs = logs[len(logs)-10:]
	}
	m.logs = logs
	return m
}

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("📋 Collector Sync Monitor"))
	s.WriteString("\n\n")

	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	uploading, failed := m.counts()
	summary := fmt.Sprintf("Manager: %s | Tasks: %d | ⏳ Uploading: %d | ❌ Errors: %d | ✅ Removed: %d",
		m.managerState, len(m.order), uploading, failed, m.doneCount)
	s.WriteString(summaryStyle.Render(summary))
	s.WriteString("\n\n")

	taskSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(m.width - 2)

	var taskList strings.Builder
	taskList.WriteString("📦 Tasks\n")
	taskList.WriteString(strings.Repeat("─", 60) + "\n")

	if m.managerState == machine.ManagerLocal {
		taskList.WriteString(fmt.Sprintf("%s Loading saved tasks...\n", m.spinner.View()))
	} else if len(m.order) == 0 {
		taskList.WriteString("Nothing left to upload\n")
	}

	for _, id := range m.order {
		snap, ok := m.tasks[id]
		if !ok {
			continue
		}
		taskList.WriteString(m.renderTask(snap) + "\n")
	}

	s.WriteString(taskSectionStyle.Render(taskList.String()))
	s.WriteString("\n\n")

	logSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(m.width - 2).
		Height(8)

	var logSection strings.Builder
	logSection.WriteString("📝 Recent Logs\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}

	s.WriteString(logSectionStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	s.WriteString(footerStyle.Render("Press 'r' to retry failed tasks | 'q' to quit"))

	return s.String()
}

func (m Model) renderTask(snap machine.TaskSnapshot) string {
	task := snap.Context

	line := fmt.Sprintf("%s %-24s %-10s",
		getStateIcon(snap.State),
		truncate(dataSummary(task.Data), 24),
		snap.State)

	if snap.Matches(machine.TaskSubmitting) {
		line += " " + m.spinner.View()
		if len(task.Assets) > 0 {
			line += " " + m.progress.ViewAs(assetProgress(task.Assets))
		}
	}

	if len(task.Assets) > 0 {
		line += fmt.Sprintf(" 🖼 %d/%d", doneAssets(task.Assets), len(task.Assets))
	}

	if snap.Matches(machine.TaskError) && task.Error != nil {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		line += " " + errorStyle.Render(fmt.Sprintf("Error: %v", task.Error))
	} else {
		messageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
		line += " " + messageStyle.Render("Collected on "+task.CollectedOn.Local().Format("2006-01-02 15:04"))
	}

	stateStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(getStateColor(snap.State)))
	return stateStyle.Render(line)
}

func (m Model) counts() (uploading, failed int) {
	for _, snap := range m.tasks {
		switch snap.State {
		case machine.TaskSubmitting:
			uploading++
		case machine.TaskError:
			failed++
		}
	}
	return uploading, failed
}

// sortedTaskIDs orders tasks by collection time, oldest first.
func sortedTaskIDs(tasks models.Tasks) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := tasks[a].CollectedOn.Compare(tasks[b].CollectedOn); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return ids
}

// dataSummary joins the non-empty field values, ordered by field id.
func dataSummary(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	values := make([]string, 0, len(keys))
	for _, key := range keys {
		value := fmt.Sprint(data[key])
		if data[key] == nil || value == "" {
			continue
		}
		values = append(values, value)
	}
	return strings.Join(values, ", ")
}

func assetProgress(assets map[string]models.Asset) float64 {
	if len(assets) == 0 {
		return 0
	}
	var total float64
	for _, asset := range assets {
		total += asset.Progress
	}
	return total / float64(len(assets))
}

func doneAssets(assets map[string]models.Asset) int {
	done := 0
	for _, asset := range assets {
		if asset.State == models.TaskStateDone {
			done++
		}
	}
	return done
}

func getStateIcon(state machine.TaskStateName) string {
	switch state {
	case machine.TaskIdle:
		return "⏸"
	case machine.TaskSubmitting:
		return "📤"
	case machine.TaskSubmitted:
		return "✅"
	case machine.TaskError:
		return "❌"
	default:
		return "❓"
	}
}

func getStateColor(state machine.TaskStateName) string {
	switch state {
	case machine.TaskSubmitted:
		return "82"
	case machine.TaskError:
		return "196"
	default:
		return "39"
	}
}

// truncate cuts s to at most width terminal cells, ending in "...".
func truncate(s string, width int) string {
	return ansi.Truncate(s, width, "...")
}

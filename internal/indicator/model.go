package indicator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/oshokin/escape-alarm/internal/domain/alarm"
)

// Indicator lines, re-exported for styling.
const (
	StatusSounding  = alarm.StatusSounding
	StatusSilent    = alarm.StatusSilent
	StatusAttention = alarm.StatusAttention
)

// detailKeys are the payload fields shown for the visible alarm, in order.
//
//nolint:gochecknoglobals // Read-only display order.
var detailKeys = []string{"subject", "name", "location", "camera", "confidence", "timestamp"}

// Actions are the operator commands reachable from the keyboard.
type Actions interface {
	DismissVisual(ctx context.Context) (*alarm.Snapshot, error)
	StopAll(ctx context.Context) (int, error)
}

// SnapshotMsg delivers a new engine snapshot to the model.
type SnapshotMsg struct {
	Snapshot *alarm.Snapshot
}

// ErrMsg reports a failed stream or action.
type ErrMsg struct {
	Err error
}

// stoppedMsg reports a completed stop-all.
type stoppedMsg struct {
	removed int
}

// Model is the bubbletea model of the indicator.
type Model struct {
	// ctx bounds keyboard-triggered calls.
	ctx context.Context
	// actions executes keyboard commands; nil disables them.
	actions Actions
	// snapshot is the last received state, nil before the first one.
	snapshot *alarm.Snapshot
	// notice is the last action outcome shown in the footer.
	notice string
	// err is the last error, cleared by the next snapshot.
	err error
	// width is the terminal width.
	width int
}

// NewModel creates a model waiting for its first snapshot.
func NewModel(ctx context.Context, actions Actions) Model {
	return Model{ctx: ctx, actions: actions}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.snapshot = msg.Snapshot
		m.err = nil
	case ErrMsg:
		m.err = msg.Err
	case stoppedMsg:
		m.notice = fmt.Sprintf("Stopped %d alarm(s)", msg.removed)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "d":
		if m.actions == nil {
			return m, nil
		}

		m.notice = "Dismissing visible alarm"

		return m, m.dismiss
	case "s":
		if m.actions == nil {
			return m, nil
		}

		m.notice = "Stopping all alarms"

		return m, m.stopAll
	}

	return m, nil
}

func (m Model) dismiss() tea.Msg {
	snapshot, err := m.actions.DismissVisual(m.ctx)
	if err != nil {
		return ErrMsg{Err: fmt.Errorf("dismiss: %w", err)}
	}

	return SnapshotMsg{Snapshot: snapshot}
}

func (m Model) stopAll() tea.Msg {
	removed, err := m.actions.StopAll(m.ctx)
	if err != nil {
		return ErrMsg{Err: fmt.Errorf("stop all: %w", err)}
	}

	return stoppedMsg{removed: removed}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Escape alarm"))
	b.WriteString("\n\n")

	if m.snapshot == nil {
		b.WriteString(mutedStyle.Render("Waiting for engine..."))
		b.WriteString("\n")
	} else {
		m.renderSnapshot(&b)
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("d dismiss • s stop all • q quit"))

	return b.String()
}

func (m Model) renderSnapshot(b *strings.Builder) {
	s := m.snapshot
	status := s.Status()

	b.WriteString(statusStyle(status).Render(status))
	b.WriteString("\n")

	switch s.ActiveCount {
	case 0:
	case 1:
		b.WriteString("1 active alarm\n")
	default:
		fmt.Fprintf(b, "%d active alarms\n", s.ActiveCount)
	}

	if s.Visible == nil {
		return
	}

	lines := []string{
		titleStyle.Render("Escaped inmate detected"),
		"Alert " + string(s.Visible.ID),
	}

	for _, key := range detailKeys {
		if value, ok := s.Visible.Payload[key]; ok {
			lines = append(lines, fmt.Sprintf("%s: %v", key, value))
		}
	}

	if !s.Visible.TriggeredAt.IsZero() {
		lines = append(lines, "raised "+s.Visible.TriggeredAt.Local().Format(time.DateTime))
	}

	modal := modalStyle
	if m.width > 4 {
		modal = modal.MaxWidth(m.width)
	}

	b.WriteString("\n")
	b.WriteString(modal.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
}

// Watcher streams snapshots until ctx ends.
type Watcher interface {
	Actions
	Watch(ctx context.Context, fn func(*alarm.Snapshot) error) error
}

// Run shows the indicator until the operator quits or ctx ends.
func Run(ctx context.Context, source Watcher, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	program := tea.NewProgram(NewModel(ctx, source), opts...)

	go func() {
		err := source.Watch(ctx, func(s *alarm.Snapshot) error {
			program.Send(SnapshotMsg{Snapshot: s})
			return nil
		})
		if err != nil {
			program.Send(ErrMsg{Err: err})
		}
	}()

	_, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run indicator: %w", err)
	}

	return nil
}

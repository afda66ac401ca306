package cli

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/uplink/internal/models"
	"github.com/raphaelgruber/uplink/internal/service"
)

const refreshInterval = 250 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers refreshing the batch view
type tickMsg time.Time

// batchModel is the bubbletea model for batch progress.
type batchModel struct {
	orch     *service.Orchestrator
	handle   *service.BatchHandle
	view     service.BatchView
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newBatchModel creates a new progress model.
func newBatchModel(orch *service.Orchestrator, handle *service.BatchHandle) batchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	view, _ := orch.View()
	return batchModel{
		orch:     orch,
		handle:   handle,
		view:     view,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start refreshing).
func (m batchModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if view, ok := m.orch.View(); ok {
			m.view = view
		}

		// The handle settles once every partition has folded its stream
		// (or, for a restored batch, once reconciliation is finished).
		select {
		case <-m.handle.Done():
			if view, ok := m.orch.View(); ok {
				m.view = view
			}
			m.done = true
			m.err = m.handle.Err()
			return m, tea.Quit
		default:
		}

		return m, tickCmd()

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m batchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m batchModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	v := m.view
	if v.Total == 0 {
		return "Waiting for batch state...\n"
	}

	var pct float64
	settled := v.CompletedCount + v.FailedCount
	if v.Total > 0 {
		pct = float64(settled) / float64(v.Total)
	}

	var b strings.Builder

	status := m.theme.statusStyle().Render("[uploading]")
	counts := fmt.Sprintf("%d/%d files", settled, v.Total)
	fmt.Fprintf(&b, "%s %s %s\n", status, m.progress.ViewAs(pct), counts)

	if v.CurrentItemLabel != "" {
		fmt.Fprintf(&b, "now processing: %s\n", v.CurrentItemLabel)
	}
	b.WriteString("\n")

	for _, it := range v.Items {
		b.WriteString(m.renderItem(it))
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")
	fmt.Fprintf(&b, "\n%s\n", hint)

	return b.String()
}

// renderItem renders one per-item row.
func (m batchModel) renderItem(it models.IngestionItem) string {
	switch it.Status {
	case models.StatusCompleted:
		return fmt.Sprintf("  %s %s\n", m.theme.completedStyle().Render("✓"), it.DisplayName)
	case models.StatusFailed:
		return fmt.Sprintf("  %s %s: %s\n", m.theme.errorStyle().Render("✗"), it.DisplayName, it.Error)
	case models.StatusPending:
		return fmt.Sprintf("  · %s\n", it.DisplayName)
	default:
		detail := it.StageMessage
		if detail == "" {
			detail = string(it.Stage)
		}
		return fmt.Sprintf("  %s %s — %s (%d%%)\n",
			m.theme.statusStyle().Render("»"), it.DisplayName, detail, it.ProgressPercent)
	}
}

// finalView renders the completion message.
func (m batchModel) finalView() string {
	if m.quitting {
		msg := "\nBatch continues in background.\nUse 'uplink status' to resume tracking.\n"
		return m.theme.hintStyle().Render(msg)
	}

	v := m.view
	if m.err != nil {
		header := m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Batch finished with errors: %v\n", m.err))
		return header + fmt.Sprintf("  %d completed, %d failed of %d\n", v.CompletedCount, v.FailedCount, v.Total)
	}

	if v.FailedCount > 0 {
		return m.theme.errorStyle().Render("✗ Finished with failures") +
			fmt.Sprintf("\n  %d completed, %d failed of %d\n", v.CompletedCount, v.FailedCount, v.Total)
	}

	return m.theme.completedStyle().Render("✓ Completed") +
		fmt.Sprintf("\n  %d of %d files processed\n", v.CompletedCount, v.Total)
}

// tickCmd returns a command that sends a tick after the refresh interval.
func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunBatchProgress runs the interactive progress UI for a batch.
// Returns nil on success or Ctrl+C (background); a UI failure is an error,
// but a batch that settles with failed items is reported through the view,
// not as an error here.
func RunBatchProgress(orch *service.Orchestrator, handle *service.BatchHandle) error {
	model := newBatchModel(orch, handle)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	return nil
}

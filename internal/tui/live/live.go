// Package live renders a watch-mode dashboard for a running workload,
// fed by the driver's snapshot channel.
package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kvbench/internal/stats"
	"kvbench/internal/tui/components"
	"kvbench/internal/tui/styles"
)

// DoneMsg tells the dashboard the run behind it has finished.
type DoneMsg struct{}

type Model struct {
	Stats    stats.Snapshot
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	StartTime  time.Time
	Duration   time.Duration
	LastUpdate time.Time
	LastReqs   uint64

	Width int
}

func NewModel(totalDur time.Duration) Model {
	return Model{
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     components.NewSparkline(40, "ops/s", styles.Active),
		LatencyLine: components.NewSparkline(40, "p95 (ms)", styles.Warn),
		StartTime:   time.Now(),
		Duration:    totalDur,
		LastUpdate:  time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stats.Snapshot:
		now := time.Now()
		dt := now.Sub(m.LastUpdate).Seconds()
		if dt < 0.01 {
			dt = 0.01
		}

		rps := float64(msg.Requests-m.LastReqs) / dt
		m.RpsLine.Push(rps)
		m.LatencyLine.Push(msg.P95Ms)

		m.Stats = msg
		m.LastReqs = msg.Requests
		m.LastUpdate = now

		pct := float64(time.Since(m.StartTime)) / float64(m.Duration)
		if pct > 1.0 {
			pct = 1.0
		}
		return m, m.Progress.SetPercent(pct)

	case DoneMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 4
		if half < 10 {
			half = 10
		}
		m.RpsLine.Width = half
		m.LatencyLine.Width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render(fmt.Sprintf("workload %s  c=%d", m.Stats.Workload, m.Stats.Concurrency)))
	s.WriteString("\n\n")

	errRate := 0.0
	if m.Stats.Requests > 0 {
		errRate = float64(m.Stats.Fail) / float64(m.Stats.Requests) * 100
	}
	errStyle := styles.Success
	if errRate > 1.0 {
		errStyle = styles.Warn
	}
	if errRate > 5.0 {
		errStyle = styles.Error
	}

	col1 := fmt.Sprintf("REQ: %d\nOK:  %d", m.Stats.Requests, m.Stats.Success)
	col2 := fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", errRate, m.Stats.Fail)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(errStyle.Render(col2)),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	s.WriteString(styles.Box.Render(fmt.Sprintf(
		"P50: %.2f ms  |  P95: %.2f ms  |  P99: %.2f ms  |  Max: %d ms",
		m.Stats.P50Ms, m.Stats.P95Ms, m.Stats.P99Ms, m.Stats.MaxMs,
	)))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render("q to quit"))

	return s.String()
}

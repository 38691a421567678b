package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fxload/internal/runner"
	"fxload/internal/tui/components"
	"fxload/internal/tui/styles"
)

// Model is the live panel of a running test: counters, two sparklines,
// latency percentiles and the schedule progress.
type Model struct {
	Stats    runner.StatsSnapshot
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	LastUpdate time.Time
	LastReqs   uint64

	Width  int
	Height int
}

func NewModel() Model {
	return Model{
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     components.NewSparkline(40, "RPS", "req/s", styles.Active),
		LatencyLine: components.NewSparkline(40, "Latency p(95)", "ms", styles.Warn),
		LastUpdate:  time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.StatsSnapshot:
		now := time.Now()
		dt := now.Sub(m.LastUpdate).Seconds()
		if dt < 0.01 {
			dt = 0.01
		}

		var delta uint64
		if msg.Requests > m.LastReqs {
			delta = msg.Requests - m.LastReqs
		}
		m.RpsLine.Add(float64(delta) / dt)
		m.LatencyLine.Add(msg.P95ServiceMs)

		m.Stats = msg
		m.LastReqs = msg.Requests
		m.LastUpdate = now

		return m, m.Progress.SetPercent(Percent(msg))

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = max(msg.Width-4, 10)

		half := max(msg.Width/2-6, 10)
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

// Percent is the share of the scheduled duration already elapsed.
func Percent(s runner.StatsSnapshot) float64 {
	if s.Done || s.Duration <= 0 {
		return 1
	}
	return min(float64(s.Elapsed)/float64(s.Duration), 1)
}

// ErrorRate is the failed share of requests in percent.
func ErrorRate(s runner.StatsSnapshot) float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Fail) / float64(s.Requests) * 100
}

func (m Model) View() string {
	s := strings.Builder{}
	st := m.Stats

	errRate := ErrorRate(st)
	errColor := styles.Active
	switch {
	case errRate > 5:
		errColor = styles.Error
	case errRate > 1:
		errColor = styles.Warn
	}

	checkColor := styles.Active
	if st.ChecksFailed > 0 {
		checkColor = styles.Warn
	}

	col1 := fmt.Sprintf("VUS: %d/%d\nITER: %d", st.VUs, st.VUsMax, st.Iterations)
	col2 := fmt.Sprintf("REQ: %d\nERR: %s", st.Requests, errColor.Render(fmt.Sprintf("%.2f%%", errRate)))
	col3 := fmt.Sprintf("CHECKS: %s\nDROPPED: %d",
		checkColor.Render(fmt.Sprintf("✓ %d ✗ %d", st.ChecksPassed, st.ChecksFailed)),
		st.Dropped,
	)
	col4 := fmt.Sprintf("RECV: %d kB\nIN-FLIGHT: %d", st.Bytes/1000, st.Inflight)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(col3),
		styles.Box.Render(col4),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	latencies := fmt.Sprintf(
		"avg: %.2f ms  |  med: %.2f ms  |  p(90): %.2f ms  |  p(95): %.2f ms  |  p(99): %.2f ms  |  max: %.2f ms",
		st.AvgServiceMs,
		st.P50ServiceMs,
		st.P90ServiceMs,
		st.P95ServiceMs,
		st.P99ServiceMs,
		st.MaxServiceMs,
	)
	box := styles.Box
	if m.Width > 4 {
		box = box.Width(m.Width - 4)
	}
	s.WriteString(box.Render(latencies))
	s.WriteString("\n\n")

	s.WriteString(fmt.Sprintf("%s / %s\n",
		st.Elapsed.Round(time.Second), st.Duration))
	s.WriteString(m.Progress.View())

	return s.String()
}

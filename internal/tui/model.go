package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"fxload/internal/banner"
	"fxload/internal/runner"
	"fxload/internal/tui/live"
	"fxload/internal/tui/styles"
)

type doneMsg struct{}

// Model wraps the live panel with a title and key help. It quits once the
// monitor reports every scenario finished or the user presses q.
type Model struct {
	Live     live.Model
	Updates  runner.StatsUpdateChan
	Title    string
	Quitting bool
	// Cancel stops the run when the user quits early
	Cancel context.CancelFunc
}

func NewModel(title string, updates runner.StatsUpdateChan, cancel context.CancelFunc) Model {
	return Model{
		Live:    live.NewModel(),
		Updates: updates,
		Title:   title,
		Cancel:  cancel,
	}
}

func waitForUpdate(ch runner.StatsUpdateChan) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return doneMsg{}
		}
		return s
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.Updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.Quitting = true
			if m.Cancel != nil {
				m.Cancel()
			}
			return m, tea.Quit
		}

	case doneMsg:
		m.Quitting = true
		return m, tea.Quit

	case runner.StatsSnapshot:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		if msg.Done {
			m.Quitting = true
			return m, tea.Sequence(cmd, tea.Quit)
		}
		return m, tea.Batch(cmd, waitForUpdate(m.Updates))
	}

	var cmd tea.Cmd
	m.Live, cmd = m.Live.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(banner.GetString())
	s.WriteString(styles.Title.Render(m.Title))
	s.WriteString("\n\n")
	s.WriteString(m.Live.View())
	s.WriteString("\n\n")
	if !m.Quitting {
		s.WriteString(styles.FooterBase.Render(styles.RenderKey("q", "stop run")))
	}
	s.WriteString("\n")
	return s.String()
}

// Run shows the dashboard until the run finishes or the user quits.
func Run(ctx context.Context, title string, updates runner.StatsUpdateChan, cancel context.CancelFunc) error {
	p := tea.NewProgram(NewModel(title, updates, cancel), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

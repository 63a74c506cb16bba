package progress

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

var quitKeys = key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"))

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			m.quitting = true
			if !m.finished {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		// Room for icon, key and outcome columns
		if w := msg.Width - 50; w > 10 {
			m.bar.Width = min(w, 60)
		}
		return m, nil

	case taskStartMsg:
		t := m.track(msg.key)
		t.state = stateRunning
		return m, nil

	case taskProgressMsg:
		t := m.track(msg.key)
		t.state = stateRunning
		t.written = msg.written
		t.total = msg.total
		return m, nil

	case taskDoneMsg:
		t := m.track(msg.key)
		t.state = stateDone
		t.result = msg.result
		if msg.result.Download.BytesWritten > 0 {
			t.written = msg.result.Download.BytesWritten
		}
		return m, nil

	case runFinishedMsg:
		m.finished = true
		m.results = msg.results
		for k, res := range msg.results {
			t := m.track(k)
			t.state = stateDone
			t.result = res
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

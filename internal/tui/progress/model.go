// Package progress renders a live view of a run: one row per target with
// its state, a progress bar while downloading and the final outcome.
package progress

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/elsanchez/resfetch/internal/domain"
)

type taskState int

const (
	stateQueued taskState = iota
	stateRunning
	stateDone
)

type task struct {
	key     string
	state   taskState
	written int64
	total   int64
	result  domain.TaskResult
}

// Model is the Bubbletea model for the run progress view
type Model struct {
	// Navigation
	width    int
	quitting bool
	finished bool

	// Dependencies
	cancel func()

	// State
	order   []string
	tasks   map[string]*task
	results map[string]domain.TaskResult
	started time.Time

	// Components
	bar     progress.Model
	spinner spinner.Model
}

// NewModel creates the view for the given target keys. cancel is called
// when the user quits before the run finished.
func NewModel(keys []string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 30

	tasks := make(map[string]*task, len(keys))
	for _, k := range keys {
		tasks[k] = &task{key: k}
	}

	if cancel == nil {
		cancel = func() {}
	}

	return Model{
		cancel:  cancel,
		order:   append([]string(nil), keys...),
		tasks:   tasks,
		started: time.Now(),
		bar:     bar,
		spinner: s,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Results returns the aggregated results once the run finished.
func (m Model) Results() map[string]domain.TaskResult {
	return m.results
}

// Interrupted reports whether the user quit before the run finished.
func (m Model) Interrupted() bool {
	return m.quitting && !m.finished
}

// track returns the row for key, adding one for keys outside the initial list
func (m *Model) track(key string) *task {
	t, ok := m.tasks[key]
	if !ok {
		t = &task{key: key}
		m.tasks[key] = t
		m.order = append(m.order, key)
	}
	return t
}

func (m Model) counts() (queued, running, done int) {
	for _, t := range m.tasks {
		switch t.state {
		case stateQueued:
			queued++
		case stateRunning:
			running++
		default:
			done++
		}
	}
	return
}

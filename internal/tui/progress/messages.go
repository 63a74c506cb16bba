package progress

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/elsanchez/resfetch/internal/domain"
)

// Message types sent by the Observer and the run goroutine

type taskStartMsg struct {
	key string
}

type taskProgressMsg struct {
	key     string
	written int64
	total   int64
}

type taskDoneMsg struct {
	key    string
	result domain.TaskResult
}

type runFinishedMsg struct {
	results map[string]domain.TaskResult
}

// RunFinished builds the message that ends the program once every task
// reported back.
func RunFinished(results map[string]domain.TaskResult) tea.Msg {
	return runFinishedMsg{results: results}
}

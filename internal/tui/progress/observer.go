package progress

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/engine"
)

// progressInterval caps how often a single task's progress reaches the UI.
const progressInterval = 100 * time.Millisecond

var _ engine.Observer = (*Observer)(nil)

// Observer forwards coordinator events to a running tea.Program.
type Observer struct {
	send func(tea.Msg)

	mu   sync.Mutex
	last map[string]time.Time
}

// NewObserver creates an observer bound to p.
func NewObserver(p *tea.Program) *Observer {
	return newObserver(p.Send)
}

func newObserver(send func(tea.Msg)) *Observer {
	return &Observer{send: send, last: make(map[string]time.Time)}
}

func (o *Observer) OnTaskStart(targetID string) {
	o.send(taskStartMsg{key: targetID})
}

func (o *Observer) OnProgress(targetID string, written, total int64) {
	now := time.Now()
	o.mu.Lock()
	due := now.Sub(o.last[targetID]) >= progressInterval || (total > 0 && written >= total)
	if due {
		o.last[targetID] = now
	}
	o.mu.Unlock()

	if due {
		o.send(taskProgressMsg{key: targetID, written: written, total: total})
	}
}

func (o *Observer) OnTaskDone(targetID string, result domain.TaskResult) {
	o.mu.Lock()
	delete(o.last, targetID)
	o.mu.Unlock()
	o.send(taskDoneMsg{key: targetID, result: result})
}

package engine

import (
	"log/slog"
	"sync"

	"github.com/elsanchez/resfetch/internal/domain"
)

// Observer recibe los eventos del coordinador. Las implementaciones deben
// ser seguras para uso concurrente: los eventos llegan desde los workers.
type Observer interface {
	OnTaskStart(targetID string)
	OnProgress(targetID string, written, total int64)
	OnTaskDone(targetID string, result domain.TaskResult)
}

// NopObserver descarta todos los eventos
type NopObserver struct{}

func (NopObserver) OnTaskStart(string) {}
func (NopObserver) OnProgress(string, int64, int64) {}
func (NopObserver) OnTaskDone(string, domain.TaskResult) {}

// LogObserver registra inicio y fin de cada tarea, y el progreso cada
// vez que una descarga cruza otro múltiplo de Step bytes
type LogObserver struct {
	Log  *slog.Logger
	Step int64

	mu   sync.Mutex
	last map[string]int64
}

// NewLogObserver crea un observer que escribe en log
func NewLogObserver(log *slog.Logger) *LogObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LogObserver{Log: log, Step: 1 << 20, last: make(map[string]int64)}
}

func (o *LogObserver) OnTaskStart(targetID string) {
	o.Log.Info("task started", "target", targetID)
}

func (o *LogObserver) OnProgress(targetID string, written, total int64) {
	o.mu.Lock()
	step := written / o.Step
	report := step > o.last[targetID]
	if report {
		o.last[targetID] = step
	}
	o.mu.Unlock()

	if report {
		o.Log.Debug("download progress", "target", targetID, "bytes", written, "total", total)
	}
}

func (o *LogObserver) OnTaskDone(targetID string, result domain.TaskResult) {
	o.mu.Lock()
	delete(o.last, targetID)
	o.mu.Unlock()

	attrs := []any{
		"target", targetID,
		"outcome", result.Outcome,
		"candidates", len(result.Discovery.Candidates),
		"templates_tried", result.Discovery.TemplatesTried(),
		"duration", result.FinishedAt.Sub(result.StartedAt),
	}
	if result.Download.FinalPath != "" {
		attrs = append(attrs, "path", result.Download.FinalPath)
	}
	if result.Error != "" {
		attrs = append(attrs, "error", result.Error)
	}

	if result.Outcome.IsSuccess() {
		o.Log.Info("task done", attrs...)
	} else {
		o.Log.Warn("task done", attrs...)
	}
}

// MultiObserver reparte cada evento entre varios observers
type MultiObserver []Observer

func (m MultiObserver) OnTaskStart(targetID string) {
	for _, o := range m {
		o.OnTaskStart(targetID)
	}
}

func (m MultiObserver) OnProgress(targetID string, written, total int64) {
	for _, o := range m {
		o.OnProgress(targetID, written, total)
	}
}

func (m MultiObserver) OnTaskDone(targetID string, result domain.TaskResult) {
	for _, o := range m {
		o.OnTaskDone(targetID, result)
	}
}

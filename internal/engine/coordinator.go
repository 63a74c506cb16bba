package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/downloader"
)

// Processor ejecuta la tarea de un objetivo. *Pipeline lo implementa.
type Processor interface {
	Process(ctx context.Context, spec domain.TargetSpec, onProgress downloader.ProgressFunc) domain.TaskResult
}

// Coordinator reparte objetivos entre un pool acotado de workers
type Coordinator struct {
	processor Processor
	observer  Observer
	log       *slog.Logger
}

// NewCoordinator crea un coordinador. observer puede ser nil.
func NewCoordinator(processor Processor, observer Observer, log *slog.Logger) *Coordinator {
	if observer == nil {
		observer = NopObserver{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{processor: processor, observer: observer, log: log}
}

// RunAll procesa todos los objetivos con como mucho workers tareas a la
// vez y retorna los resultados indexados por ID de objetivo cuando todas
// las tareas terminaron. Con el contexto cancelado no se despachan más
// tareas; las que no llegaron a empezar se reportan como canceladas.
func (c *Coordinator) RunAll(ctx context.Context, targets []domain.TargetSpec, workers int) map[string]domain.TaskResult {
	if workers <= 0 {
		workers = 3
	}

	keys := TargetKeys(targets)
	results := make(map[string]domain.TaskResult, len(targets))
	var mu sync.Mutex
	record := func(key string, res domain.TaskResult) {
		mu.Lock()
		results[key] = res
		mu.Unlock()
	}

	pool := make(chan struct{}, workers)
	var wg sync.WaitGroup

	c.log.Info("run started", "targets", len(targets), "workers", workers)

	cancelFrom := func(i int) {
		for j := i; j < len(targets); j++ {
			res := canceledResult(targets[j], ctx.Err())
			record(keys[j], res)
			c.observer.OnTaskDone(keys[j], res)
		}
	}

dispatch:
	for i, spec := range targets {
		key := keys[i]

		select {
		case <-ctx.Done():
			cancelFrom(i)
			break dispatch
		case pool <- struct{}{}:
		}
		// Ambos casos pueden estar listos a la vez
		if ctx.Err() != nil {
			<-pool
			cancelFrom(i)
			break dispatch
		}

		wg.Add(1)
		go func(key string, spec domain.TargetSpec) {
			defer wg.Done()
			defer func() { <-pool }()

			res := c.runTask(ctx, key, spec)
			record(key, res)
			c.observer.OnTaskDone(key, res)
		}(key, spec)
	}

	wg.Wait()
	c.log.Info("run finished", "targets", len(results))
	return results
}

// RunOne procesa un único objetivo con el mismo aislamiento que RunAll.
// Lo usa la cola del daemon, que administra su propio pool.
func (c *Coordinator) RunOne(ctx context.Context, key string, spec domain.TargetSpec) domain.TaskResult {
	if ctx.Err() != nil {
		res := canceledResult(spec, ctx.Err())
		c.observer.OnTaskDone(key, res)
		return res
	}
	res := c.runTask(ctx, key, spec)
	c.observer.OnTaskDone(key, res)
	return res
}

// runTask aísla una tarea: un panic se convierte en un resultado Error
// solo para ese objetivo
func (c *Coordinator) runTask(ctx context.Context, key string, spec domain.TargetSpec) (res domain.TaskResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("task panicked", "target", key, "panic", r, "stack", string(debug.Stack()))
			res = domain.TaskResult{Target: spec, StartedAt: started}
			res.ResolveOutcome(fmt.Errorf("task panicked: %v", r))
			res.FinishedAt = time.Now()
		}
	}()

	c.observer.OnTaskStart(key)
	return c.processor.Process(ctx, spec, func(written, total int64) {
		c.observer.OnProgress(key, written, total)
	})
}

func canceledResult(spec domain.TargetSpec, cause error) domain.TaskResult {
	now := time.Now()
	res := domain.TaskResult{Target: spec, StartedAt: now, FinishedAt: now}
	res.ResolveOutcome(domain.NewError(domain.KindCanceled, "dispatch", spec.ID, cause))
	return res
}

// TargetKeys calcula la clave de agregación de cada objetivo: su ID, o la
// posición cuando el objetivo no es válido. Los IDs repetidos reciben un sufijo.
func TargetKeys(targets []domain.TargetSpec) []string {
	keys := make([]string, len(targets))
	seen := make(map[string]int, len(targets))
	for i, spec := range targets {
		key := "#" + strconv.Itoa(i+1)
		if t, err := domain.NewProbeTarget(spec); err == nil {
			key = t.ID()
		}
		if seen[key] > 0 {
			base := key
			for n := seen[base] + 1; ; n++ {
				key = base + "#" + strconv.Itoa(n)
				if seen[key] == 0 {
					seen[base] = n
					break
				}
			}
		}
		seen[key]++
		keys[i] = key
	}
	return keys
}

package daemon

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/engine"
	"github.com/elsanchez/resfetch/internal/repository"
)

// QueueManager procesa los objetivos encolados con un pool acotado de
// workers. Cada objetivo pasa por el mismo pipeline que una ejecución
// directa; la base de datos solo guarda estado e informes.
type QueueManager struct {
	subs         repository.SubmissionRepository
	coordinator  *engine.Coordinator
	workers      int
	workerPool   chan struct{}
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	pollInterval time.Duration
	wake         chan struct{}
	log          *slog.Logger
}

// NewQueueManager crea un nuevo gestor de cola
func NewQueueManager(
	subs repository.SubmissionRepository,
	processor engine.Processor,
	observer engine.Observer,
	workers int,
	log *slog.Logger,
) *QueueManager {
	ctx, cancel := context.WithCancel(context.Background())

	if workers <= 0 {
		workers = 3
	}
	if log == nil {
		log = slog.Default()
	}

	return &QueueManager{
		subs:         subs,
		coordinator:  engine.NewCoordinator(processor, observer, log),
		workers:      workers,
		workerPool:   make(chan struct{}, workers),
		ctx:          ctx,
		cancel:       cancel,
		pollInterval: 5 * time.Second,
		wake:         make(chan struct{}, 1),
		log:          log,
	}
}

// Start inicia el queue manager. Los objetivos que quedaron en ejecución
// en una parada anterior vuelven a la cola.
func (q *QueueManager) Start() {
	if n, err := q.subs.Requeue(q.ctx); err != nil {
		q.log.Error("requeue failed", "error", err)
	} else if n > 0 {
		q.log.Info("requeued interrupted targets", "count", n)
	}

	q.log.Info("queue manager started", "workers", q.workers)
	q.wg.Add(1)
	go q.processLoop()
}

// Stop detiene el queue manager. Las tareas en curso terminan sus
// peticiones activas y vuelven a quedar pendientes.
func (q *QueueManager) Stop() {
	q.log.Info("queue manager stopping")
	q.cancel()
	q.wg.Wait()
	q.log.Info("queue manager stopped")
}

// Submit encola objetivos bajo un nuevo run ID y despierta el loop
func (q *QueueManager) Submit(ctx context.Context, targets []domain.TargetSpec) (string, []int64, error) {
	if len(targets) == 0 {
		return "", nil, errors.New("no targets")
	}

	runID := uuid.NewString()
	ids := make([]int64, 0, len(targets))
	for _, spec := range targets {
		// Los objetivos inválidos se encolan igual y terminan con outcome error
		if t, err := domain.NewProbeTarget(spec); err == nil {
			spec.ID = t.ID()
		}
		id, err := q.subs.Create(ctx, &domain.Submission{
			RunID:  runID,
			Target: spec,
			Status: domain.QueuePending,
		})
		if err != nil {
			return runID, ids, err
		}
		ids = append(ids, id)
	}

	q.log.Info("targets queued", "run", runID, "count", len(ids))
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return runID, ids, nil
}

// processLoop es el loop principal que busca objetivos pendientes
func (q *QueueManager) processLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	// Procesar inmediatamente al inicio
	q.checkPending()

	for {
		select {
		case <-q.ctx.Done():
			q.log.Debug("process loop shutting down")
			return
		case <-ticker.C:
			q.checkPending()
		case <-q.wake:
			q.checkPending()
		}
	}
}

// checkPending despacha objetivos pendientes mientras haya workers libres
func (q *QueueManager) checkPending() {
	pending, err := q.subs.GetPending(q.ctx)
	if err != nil {
		if q.ctx.Err() == nil {
			q.log.Error("get pending targets failed", "error", err)
		}
		return
	}

	if len(pending) == 0 {
		return
	}

	q.log.Debug("pending targets found", "count", len(pending))

	for _, sub := range pending {
		select {
		case <-q.ctx.Done():
			return
		case q.workerPool <- struct{}{}:
		default:
			// Pool lleno, el resto espera al siguiente tick
			return
		}

		// Se marca antes de lanzar el worker para no despacharlo dos veces
		if err := q.subs.UpdateStatus(q.ctx, sub.ID, domain.QueueRunning); err != nil {
			<-q.workerPool
			q.log.Error("update status failed", "submission", sub.ID, "error", err)
			continue
		}

		q.wg.Add(1)
		go q.process(sub)
	}
}

// process ejecuta un objetivo y guarda su informe
func (q *QueueManager) process(sub *domain.Submission) {
	defer q.wg.Done()
	defer func() {
		<-q.workerPool
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}()

	key := sub.Target.ID
	if key == "" {
		key = "#" + strconv.FormatInt(sub.ID, 10)
	}

	q.log.Info("processing target", "submission", sub.ID, "target", key)
	res := q.coordinator.RunOne(q.ctx, key, sub.Target)

	// El contexto de la cola puede estar cancelado: el estado se guarda igual
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(q.ctx), 5*time.Second)
	defer cancel()

	// Interrumpido por la parada del daemon: vuelve a la cola para el próximo inicio
	if res.Outcome == domain.OutcomeCanceled && q.ctx.Err() != nil {
		if err := q.subs.UpdateStatus(saveCtx, sub.ID, domain.QueuePending); err != nil {
			q.log.Error("requeue failed", "submission", sub.ID, "error", err)
		} else {
			q.log.Info("target requeued", "submission", sub.ID, "target", key)
		}
		return
	}

	if err := q.subs.Finish(saveCtx, sub.ID, &res); err != nil {
		q.log.Error("save report failed", "submission", sub.ID, "error", err)
		return
	}

	q.log.Info("target finished", "submission", sub.ID, "target", key, "outcome", res.Outcome, "path", res.Download.FinalPath)
}

// GetStats retorna estadísticas de la cola y de los resultados
func (q *QueueManager) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	for _, status := range []domain.QueueStatus{domain.QueuePending, domain.QueueRunning, domain.QueueFinished} {
		n, err := q.subs.CountByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		stats[string(status)] = n
	}

	outcomes, err := q.subs.CountByOutcome(ctx)
	if err != nil {
		return nil, err
	}
	for outcome, n := range outcomes {
		stats["outcome_"+string(outcome)] = n
	}

	total, err := q.subs.CountTotal(ctx)
	if err != nil {
		return nil, err
	}
	stats["total"] = total
	stats["workers_total"] = q.workers
	stats["workers_busy"] = len(q.workerPool)

	return stats, nil
}

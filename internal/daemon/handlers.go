package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/repository"
)

// Handlers maneja las peticiones del servidor
type Handlers struct {
	subs  repository.SubmissionRepository
	queue *QueueManager
}

// NewHandlers crea un nuevo conjunto de handlers
func NewHandlers(subs repository.SubmissionRepository, queue *QueueManager) *Handlers {
	return &Handlers{
		subs:  subs,
		queue: queue,
	}
}

// AddPayload es el payload para encolar objetivos. Las URLs de página se
// convierten en objetivos extrayendo sus identificadores.
type AddPayload struct {
	Targets  []domain.TargetSpec `json:"targets,omitempty"`
	PageURLs []string            `json:"page_urls,omitempty"`
}

// AddResult es la respuesta de "add"
type AddResult struct {
	RunID string  `json:"run_id"`
	IDs   []int64 `json:"ids"`
	Count int     `json:"count"`
}

// HandleAdd maneja la petición de encolar objetivos
func (h *Handlers) HandleAdd(ctx context.Context, payload json.RawMessage) Response {
	var req AddPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return errorResponse(fmt.Errorf("invalid payload: %w", err))
	}

	targets := append([]domain.TargetSpec(nil), req.Targets...)
	for _, pageURL := range req.PageURLs {
		t, err := domain.ParseTarget(pageURL)
		if err != nil {
			return errorResponse(err)
		}
		targets = append(targets, t.Spec())
	}

	if len(targets) == 0 {
		return Response{Success: false, Error: "at least one target or page url is required"}
	}

	runID, ids, err := h.queue.Submit(ctx, targets)
	if err != nil {
		return errorResponse(fmt.Errorf("queue targets: %w", err))
	}

	return dataResponse(AddResult{RunID: runID, IDs: ids, Count: len(ids)})
}

// StatusPayload es el payload para consultar un objetivo
type StatusPayload struct {
	ID int64 `json:"id"`
}

// HandleStatus retorna un objetivo con su informe si ya terminó
func (h *Handlers) HandleStatus(ctx context.Context, payload json.RawMessage) Response {
	var req StatusPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return errorResponse(fmt.Errorf("invalid payload: %w", err))
	}

	if req.ID == 0 {
		return Response{Success: false, Error: "id is required"}
	}

	sub, err := h.subs.GetByID(ctx, req.ID)
	if err != nil {
		return errorResponse(fmt.Errorf("get submission: %w", err))
	}

	return dataResponse(sub)
}

// ListPayload es el payload para listar objetivos
type ListPayload struct {
	Limit int    `json:"limit"`
	RunID string `json:"run_id,omitempty"`
}

// ListResult es la respuesta de "list"
type ListResult struct {
	Submissions []*domain.Submission `json:"submissions"`
	Count       int                  `json:"count"`
}

// HandleList lista los objetivos recientes o los de un run. Los informes
// completos se omiten; se piden con "status" o "report".
func (h *Handlers) HandleList(ctx context.Context, payload json.RawMessage) Response {
	var req ListPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return errorResponse(fmt.Errorf("invalid payload: %w", err))
		}
	}

	if req.Limit <= 0 {
		req.Limit = 50
	}

	var (
		subs []*domain.Submission
		err  error
	)
	if req.RunID != "" {
		subs, err = h.subs.GetByRun(ctx, req.RunID)
	} else {
		subs, err = h.subs.GetRecent(ctx, req.Limit)
	}
	if err != nil {
		return errorResponse(fmt.Errorf("get submissions: %w", err))
	}

	for _, sub := range subs {
		sub.Report = nil
	}

	return dataResponse(ListResult{Submissions: subs, Count: len(subs)})
}

// ReportPayload es el payload para pedir el informe de un run
type ReportPayload struct {
	RunID string `json:"run_id"`
}

// RunReport agrega los informes de un run por clave de objetivo
type RunReport struct {
	RunID    string                       `json:"run_id"`
	Pending  int                          `json:"pending"`
	Results  map[string]domain.TaskResult `json:"results"`
	Outcomes map[domain.Outcome]int       `json:"outcomes"`
}

// HandleReport retorna los resultados de un run agregados por objetivo
func (h *Handlers) HandleReport(ctx context.Context, payload json.RawMessage) Response {
	var req ReportPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return errorResponse(fmt.Errorf("invalid payload: %w", err))
	}

	if req.RunID == "" {
		return Response{Success: false, Error: "run_id is required"}
	}

	subs, err := h.subs.GetByRun(ctx, req.RunID)
	if err != nil {
		return errorResponse(fmt.Errorf("get submissions: %w", err))
	}
	if len(subs) == 0 {
		return Response{Success: false, Error: fmt.Sprintf("run not found: %s", req.RunID)}
	}

	report := RunReport{
		RunID:    req.RunID,
		Results:  make(map[string]domain.TaskResult, len(subs)),
		Outcomes: make(map[domain.Outcome]int),
	}
	for _, sub := range subs {
		if sub.Report == nil {
			report.Pending++
			continue
		}
		key := sub.Target.ID
		if key == "" {
			key = fmt.Sprintf("#%d", sub.ID)
		}
		if _, dup := report.Results[key]; dup {
			key = fmt.Sprintf("%s#%d", key, sub.ID)
		}
		report.Results[key] = *sub.Report
		report.Outcomes[sub.Report.Outcome]++
	}

	return dataResponse(report)
}

// HandleStats maneja la petición de estadísticas
func (h *Handlers) HandleStats(ctx context.Context) Response {
	stats, err := h.queue.GetStats(ctx)
	if err != nil {
		return errorResponse(fmt.Errorf("get stats: %w", err))
	}

	return dataResponse(stats)
}

func dataResponse(v interface{}) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(fmt.Errorf("encode response: %w", err))
	}
	return Response{Success: true, Data: data}
}

func errorResponse(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

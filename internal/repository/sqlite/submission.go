package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/repository"
)

// SubmissionRepository implementa repository.SubmissionRepository usando SQLite
type SubmissionRepository struct {
	db *sqlx.DB
}

// Compiletime check: asegura que implementa la interfaz
var _ repository.SubmissionRepository = (*SubmissionRepository)(nil)

// NewSubmissionRepository crea un nuevo repositorio de objetivos encolados
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// submissionRow mapea la tabla SQL a struct Go
type submissionRow struct {
	ID           int64          `db:"id"`
	RunID        string         `db:"run_id"`
	TargetID     string         `db:"target_id"`
	TargetJSON   string         `db:"target"`
	Status       string         `db:"status"`
	Outcome      sql.NullString `db:"outcome"`
	OutputPath   sql.NullString `db:"output_path"`
	ReportJSON   sql.NullString `db:"report"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    int64          `db:"created_at"`
	CompletedAt  sql.NullInt64  `db:"completed_at"`
}

// Create inserta un nuevo objetivo en la cola
func (r *SubmissionRepository) Create(ctx context.Context, sub *domain.Submission) (int64, error) {
	targetJSON, err := json.Marshal(sub.Target)
	if err != nil {
		return 0, fmt.Errorf("marshal target: %w", err)
	}

	status := sub.Status
	if status == "" {
		status = domain.QueuePending
	}

	query := `
		INSERT INTO submissions (run_id, target_id, target, status)
		VALUES (:run_id, :target_id, :target, :status)
	`

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"run_id":    sub.RunID,
		"target_id": sub.Target.ID,
		"target":    string(targetJSON),
		"status":    string(status),
	})
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	return id, nil
}

// GetByID obtiene un objetivo por ID
func (r *SubmissionRepository) GetByID(ctx context.Context, id int64) (*domain.Submission, error) {
	var row submissionRow

	query := `SELECT * FROM submissions WHERE id = ?`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission not found: %d", id)
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}

	return submissionRowToDomain(&row)
}

// GetPending obtiene los objetivos pendientes en orden de llegada
func (r *SubmissionRepository) GetPending(ctx context.Context) ([]*domain.Submission, error) {
	var rows []submissionRow

	query := `SELECT * FROM submissions WHERE status = ? ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &rows, query, string(domain.QueuePending)); err != nil {
		return nil, fmt.Errorf("get pending submissions: %w", err)
	}

	return submissionRowsToDomain(rows)
}

// GetRecent obtiene los objetivos más recientes
func (r *SubmissionRepository) GetRecent(ctx context.Context, limit int) ([]*domain.Submission, error) {
	var rows []submissionRow

	query := `
		SELECT * FROM submissions
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("get recent submissions: %w", err)
	}

	return submissionRowsToDomain(rows)
}

// GetByRun obtiene los objetivos de una misma ejecución
func (r *SubmissionRepository) GetByRun(ctx context.Context, runID string) ([]*domain.Submission, error) {
	var rows []submissionRow

	query := `SELECT * FROM submissions WHERE run_id = ? ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("get submissions by run: %w", err)
	}

	return submissionRowsToDomain(rows)
}

// UpdateStatus actualiza solo el estado en la cola
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id int64, status domain.QueueStatus) error {
	query := `UPDATE submissions SET status = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, string(status), id)
	return err
}

// Requeue devuelve a pendiente los objetivos que quedaron en ejecución
// cuando el daemon se detuvo sin terminarlos
func (r *SubmissionRepository) Requeue(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE submissions SET status = ? WHERE status = ?`,
		string(domain.QueuePending), string(domain.QueueRunning))
	if err != nil {
		return 0, fmt.Errorf("requeue submissions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}

// Finish guarda el informe final y marca el objetivo como terminado
func (r *SubmissionRepository) Finish(ctx context.Context, id int64, report *domain.TaskResult) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	var errMsg interface{}
	if report.Error != "" {
		errMsg = report.Error
	} else if report.Download.Error != "" {
		errMsg = report.Download.Error
	}

	query := `
		UPDATE submissions
		SET status = :status, outcome = :outcome, output_path = :output_path,
		    report = :report, error_message = :error_message, completed_at = :completed_at
		WHERE id = :id
	`

	_, err = r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            id,
		"status":        string(domain.QueueFinished),
		"outcome":       string(report.Outcome),
		"output_path":   report.Download.FinalPath,
		"report":        string(reportJSON),
		"error_message": errMsg,
		"completed_at":  time.Now().Unix(),
	})

	return err
}

// CountByStatus cuenta objetivos por estado de cola
func (r *SubmissionRepository) CountByStatus(ctx context.Context, status domain.QueueStatus) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM submissions WHERE status = ?`
	err := r.db.GetContext(ctx, &count, query, string(status))
	return count, err
}

// CountByOutcome cuenta los objetivos terminados agrupados por Outcome
func (r *SubmissionRepository) CountByOutcome(ctx context.Context) (map[domain.Outcome]int, error) {
	var rows []struct {
		Outcome string `db:"outcome"`
		Count   int    `db:"n"`
	}

	query := `
		SELECT outcome, COUNT(*) AS n FROM submissions
		WHERE outcome IS NOT NULL
		GROUP BY outcome
	`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count by outcome: %w", err)
	}

	counts := make(map[domain.Outcome]int, len(rows))
	for _, row := range rows {
		counts[domain.Outcome(row.Outcome)] = row.Count
	}
	return counts, nil
}

// CountTotal cuenta todos los objetivos
func (r *SubmissionRepository) CountTotal(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM submissions`
	err := r.db.GetContext(ctx, &count, query)
	return count, err
}

// Helper: conversión row → domain
func submissionRowToDomain(row *submissionRow) (*domain.Submission, error) {
	var target domain.TargetSpec
	if err := json.Unmarshal([]byte(row.TargetJSON), &target); err != nil {
		return nil, fmt.Errorf("unmarshal target: %w", err)
	}

	sub := &domain.Submission{
		ID:         row.ID,
		RunID:      row.RunID,
		Target:     target,
		Status:     domain.QueueStatus(row.Status),
		Outcome:    domain.Outcome(row.Outcome.String),
		OutputPath: row.OutputPath.String,
		Error:      row.ErrorMessage.String,
		CreatedAt:  time.Unix(row.CreatedAt, 0),
	}

	if row.ReportJSON.Valid && row.ReportJSON.String != "" {
		var report domain.TaskResult
		if err := json.Unmarshal([]byte(row.ReportJSON.String), &report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		sub.Report = &report
	}

	if row.CompletedAt.Valid {
		t := time.Unix(row.CompletedAt.Int64, 0)
		sub.CompletedAt = &t
	}

	return sub, nil
}

func submissionRowsToDomain(rows []submissionRow) ([]*domain.Submission, error) {
	subs := make([]*domain.Submission, 0, len(rows))

	for _, row := range rows {
		sub, err := submissionRowToDomain(&row)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

package repository

import (
	"context"

	"github.com/elsanchez/resfetch/internal/domain"
)

// SubmissionRepository define las operaciones sobre los objetivos encolados
// en el daemon. Es solo un registro de cola e informes: el motor nunca lo
// consulta para decidir si un recurso ya existe.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *domain.Submission) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Submission, error)

	GetPending(ctx context.Context) ([]*domain.Submission, error)
	GetRecent(ctx context.Context, limit int) ([]*domain.Submission, error)
	GetByRun(ctx context.Context, runID string) ([]*domain.Submission, error)

	UpdateStatus(ctx context.Context, id int64, status domain.QueueStatus) error
	Requeue(ctx context.Context) (int, error)
	Finish(ctx context.Context, id int64, report *domain.TaskResult) error

	CountByStatus(ctx context.Context, status domain.QueueStatus) (int, error)
	CountByOutcome(ctx context.Context) (map[domain.Outcome]int, error)
	CountTotal(ctx context.Context) (int, error)
}

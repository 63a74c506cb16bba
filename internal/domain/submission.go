package domain

import "time"

// QueueStatus representa los estados de un objetivo encolado en el daemon
type QueueStatus string

const (
	QueuePending  QueueStatus = "pending"
	QueueRunning  QueueStatus = "running"
	QueueFinished QueueStatus = "finished"
)

// Submission es un objetivo encolado en el daemon junto con su informe
type Submission struct {
	ID          int64       `json:"id"`
	RunID       string      `json:"run_id"`
	Target      TargetSpec  `json:"target"`
	Status      QueueStatus `json:"status"`
	Outcome     Outcome     `json:"outcome,omitempty"`
	OutputPath  string      `json:"output_path,omitempty"`
	Report      *TaskResult `json:"report,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// IsCompleted retorna true si el objetivo ya tiene un resultado final
func (s *Submission) IsCompleted() bool {
	return s.Status == QueueFinished
}

// IsActive retorna true si el objetivo está en proceso
func (s *Submission) IsActive() bool {
	return s.Status == QueueRunning
}

package domain

import "fmt"

// JobStatus representa los estados posibles de un DownloadJob
type JobStatus string

const (
	JobPending       JobStatus = "pending"
	JobHeaderChecked JobStatus = "header_checked"
	JobStreaming     JobStatus = "streaming"
	JobComplete      JobStatus = "complete"
	JobFailed        JobStatus = "failed"
	JobSkipped       JobStatus = "skipped"
)

// rank ordena los estados no terminales; los terminales comparten el máximo
func (s JobStatus) rank() int {
	switch s {
	case JobPending:
		return 0
	case JobHeaderChecked:
		return 1
	case JobStreaming:
		return 2
	default:
		return 3
	}
}

// IsTerminal retorna true si el estado ya no admite transiciones
func (s JobStatus) IsTerminal() bool {
	return s == JobComplete || s == JobFailed || s == JobSkipped
}

// CanTransition verifica que la transición sea monótona
func (s JobStatus) CanTransition(to JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch to {
	case JobFailed, JobSkipped:
		return true
	case JobComplete:
		return s == JobStreaming
	default:
		return to.rank() > s.rank()
	}
}

// DownloadJob es el estado de una descarga en curso; vive solo durante un fetch
type DownloadJob struct {
	Candidate       Candidate
	DestinationPath string
	status          JobStatus
}

// NewDownloadJob crea un job en estado Pending
func NewDownloadJob(c Candidate, dest string) *DownloadJob {
	return &DownloadJob{Candidate: c, DestinationPath: dest, status: JobPending}
}

// Status retorna el estado actual
func (j *DownloadJob) Status() JobStatus {
	return j.status
}

// Advance mueve el job a un nuevo estado, rechazando transiciones hacia atrás
func (j *DownloadJob) Advance(to JobStatus) error {
	if !j.status.CanTransition(to) {
		return fmt.Errorf("invalid job transition %s -> %s", j.status, to)
	}
	j.status = to
	return nil
}

// DownloadResult es el resultado inmutable de un fetch
type DownloadResult struct {
	Success       bool       `json:"success"`
	Status        JobStatus  `json:"status"`
	URL           string     `json:"url"`
	BytesWritten  int64      `json:"bytes_written"`
	FailureReason *ErrorKind `json:"failure_reason,omitempty"`
	FinalPath     string     `json:"final_path,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Result construye el DownloadResult a partir del estado terminal del job
func (j *DownloadJob) Result(written int64, err error) DownloadResult {
	res := DownloadResult{
		Status:       j.status,
		URL:          j.Candidate.URL,
		BytesWritten: written,
	}
	switch j.status {
	case JobComplete, JobSkipped:
		res.Success = true
		res.FinalPath = j.DestinationPath
	default:
		kind := KindOf(err)
		if kind == "" {
			kind = KindNetwork
		}
		res.FailureReason = &kind
		if err != nil {
			res.Error = err.Error()
		}
	}
	return res
}

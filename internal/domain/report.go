package domain

import "time"

// Classification es la clasificación de la respuesta a una plantilla
type Classification string

const (
	ClassDirect     Classification = "direct"
	ClassStructured Classification = "structured"
	ClassNoMatch    Classification = "no_match"
	ClassPotential  Classification = "potential"
	ClassAuthDenied Classification = "auth_denied"
	ClassNotFound   Classification = "not_found"
	ClassStatus     Classification = "unexpected_status"
	ClassNetwork    Classification = "network_error"
	ClassDecode     Classification = "decode_error"
	ClassInvalid    Classification = "invalid_template"
	ClassNotTried   Classification = "not_tried"
)

// ProbeRecord registra lo ocurrido con una plantilla
type ProbeRecord struct {
	Template       string         `json:"template"`
	URL            string         `json:"url,omitempty"`
	Method         string         `json:"method,omitempty"`
	StatusCode     int            `json:"status_code,omitempty"`
	ContentType    string         `json:"content_type,omitempty"`
	Classification Classification `json:"classification"`
	ErrorKind      ErrorKind      `json:"error_kind,omitempty"`
	Error          string         `json:"error,omitempty"`
	Candidates     int            `json:"candidates"`
	Duration       time.Duration  `json:"duration"`
}

// Requested indica si la plantilla llegó a emitir una petición
func (r ProbeRecord) Requested() bool {
	return r.Classification != ClassNotTried && r.Classification != ClassInvalid
}

// DiscoveryResult es la lista ordenada y deduplicada de candidatos de un objetivo
type DiscoveryResult struct {
	TargetID   string        `json:"target_id"`
	Candidates []Candidate   `json:"candidates"`
	Probes     []ProbeRecord `json:"probes,omitempty"`
	PageError  string        `json:"page_error,omitempty"`
	FailFast   bool          `json:"fail_fast,omitempty"`
}

// TemplatesTried cuenta las plantillas que emitieron una petición
func (d DiscoveryResult) TemplatesTried() int {
	n := 0
	for _, p := range d.Probes {
		if p.Requested() {
			n++
		}
	}
	return n
}

// AuthDenied indica si alguna plantilla fue rechazada por autenticación
func (d DiscoveryResult) AuthDenied() bool {
	for _, p := range d.Probes {
		if p.Classification == ClassAuthDenied {
			return true
		}
	}
	return false
}

// Outcome es el resultado final de una tarea
type Outcome string

const (
	OutcomeComplete     Outcome = "complete"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeFailed       Outcome = "failed"
	OutcomeNothingFound Outcome = "nothing_found"
	OutcomeDenied       Outcome = "denied"
	OutcomeCanceled     Outcome = "canceled"
	OutcomeError        Outcome = "error"
)

// IsSuccess retorna true si el objetivo quedó descargado
func (o Outcome) IsSuccess() bool {
	return o == OutcomeComplete || o == OutcomeSkipped
}

// TaskResult es el informe agregado de un objetivo
type TaskResult struct {
	Target     TargetSpec       `json:"target"`
	Discovery  DiscoveryResult  `json:"discovery"`
	Attempts   []DownloadResult `json:"attempts,omitempty"`
	Download   DownloadResult   `json:"download"`
	Outcome    Outcome          `json:"outcome"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// ResolveOutcome calcula el Outcome a partir de los intentos registrados
func (r *TaskResult) ResolveOutcome(taskErr error) {
	if taskErr != nil {
		r.Error = taskErr.Error()
		if KindOf(taskErr) == KindCanceled {
			r.Outcome = OutcomeCanceled
		} else {
			r.Outcome = OutcomeError
		}
		return
	}

	if n := len(r.Attempts); n > 0 {
		r.Download = r.Attempts[n-1]
		switch r.Download.Status {
		case JobComplete:
			r.Outcome = OutcomeComplete
		case JobSkipped:
			r.Outcome = OutcomeSkipped
		default:
			r.Outcome = OutcomeFailed
		}
		return
	}

	if r.Discovery.AuthDenied() {
		r.Outcome = OutcomeDenied
		return
	}
	r.Outcome = OutcomeNothingFound
}

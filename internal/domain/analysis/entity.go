package analysis

import (
	"time"
)

// RequestID identifies one analysis request end to end.
type RequestID string

// Type enum for the four fixed specialist roles.
type Type string

const (
	TypeDescriptive  Type = "descriptive"
	TypeDiagnostic   Type = "diagnostic"
	TypePredictive   Type = "predictive"
	TypePrescriptive Type = "prescriptive"
)

// TypeOrder is the fixed report ordering. Descriptive always runs first;
// the others may only start after it has finished.
var TypeOrder = []Type{TypeDescriptive, TypeDiagnostic, TypePredictive, TypePrescriptive}

// ValidType reports whether t is one of the four roles.
func ValidType(t Type) bool {
	for _, v := range TypeOrder {
		if v == t {
			return true
		}
	}
	return false
}

// Request is an accepted analysis request. Immutable once accepted.
type Request struct {
	ID        RequestID `json:"id"`
	Question  string    `json:"question"`
	Types     []Type    `json:"types"`
	FilePaths []string  `json:"file_paths"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadedFile is a file that passed security validation. Rejected files are
// never promoted to this state.
type UploadedFile struct {
	Path     string   `json:"path"`
	Name     string   `json:"name"`
	Ext      string   `json:"ext"`
	MIME     string   `json:"mime"`
	Size     int64    `json:"size"`
	SHA256   string   `json:"sha256"`
	PIIFlags []string `json:"pii_flags,omitempty"`
}

// Outcome of file validation.
type Outcome string

const (
	Accepted Outcome = "ACCEPTED"
	Rejected Outcome = "REJECTED"
)

// Reason codes surfaced to callers and the audit trail.
type Reason string

const (
	ReasonUnreadable           Reason = "UNREADABLE"
	ReasonTypeMismatch         Reason = "TYPE_MISMATCH"
	ReasonTooLarge             Reason = "TOO_LARGE"
	ReasonPIIRejected          Reason = "PII_REJECTED"
	ReasonNoValidData          Reason = "NO_VALID_DATA"
	ReasonAuthenticityRejected Reason = "DATA_AUTHENTICITY_REJECTED"
	ReasonTimedOut             Reason = "TIMED_OUT"
	ReasonBusy                 Reason = "BUSY"
	ReasonCanceled             Reason = "CANCELED"
	ReasonInternal             Reason = "INTERNAL"
)

// ValidationResult is owned by the security validator and read-only for the
// orchestrator. The digest is present even when the file was rejected.
type ValidationResult struct {
	Path     string   `json:"path"`
	Outcome  Outcome  `json:"outcome"`
	Reason   Reason   `json:"reason,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	SHA256   string   `json:"sha256"`
	MIME     string   `json:"mime,omitempty"`
	Size     int64    `json:"size"`
	PIIFlags []string `json:"pii_flags,omitempty"`
}

// Verdict is the data-authenticity gate decision, produced exactly once per
// request before any specialist runs.
type Verdict struct {
	Authentic bool   `json:"authentic"`
	Rationale string `json:"rationale"`
}

// SectionStatus of one report section.
type SectionStatus string

const (
	SectionDone     SectionStatus = "DONE"
	SectionDegraded SectionStatus = "DEGRADED" // statistics only, narrative unavailable
	SectionFailed   SectionStatus = "FAILED"
	SectionTimedOut SectionStatus = "TIMED_OUT"
)

// Section is the per-type structured output: computed statistics plus the
// narrative the specialist produced from them.
type Section struct {
	Type       Type          `json:"type"`
	Status     SectionStatus `json:"status"`
	Statistics any           `json:"statistics,omitempty"`
	Narrative  string        `json:"narrative,omitempty"`
	Error      string        `json:"error,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

// Report is the consolidated result: sections in fixed type order regardless
// of completion order, plus the executive summary synthesized last.
// Immutable once the pipeline reaches a terminal phase.
type Report struct {
	RequestID        RequestID          `json:"request_id"`
	Question         string             `json:"question"`
	Files            []UploadedFile     `json:"files"`
	RejectedFiles    []ValidationResult `json:"rejected_files,omitempty"`
	Verdict          Verdict            `json:"verdict"`
	Sections         []Section          `json:"sections"`
	ExecutiveSummary string             `json:"executive_summary"`
	GeneratedAt      time.Time          `json:"generated_at"`
	ArtifactURL      string             `json:"artifact_url,omitempty"`
}

// Phase of the orchestrator state machine.
type Phase string

const (
	PhaseReceived    Phase = "RECEIVED"
	PhaseValidating  Phase = "VALIDATING"
	PhaseGating      Phase = "GATING"
	PhaseDispatching Phase = "DISPATCHING"
	PhaseAggregating Phase = "AGGREGATING"
	PhaseDone        Phase = "DONE"
	PhaseFailed      Phase = "FAILED"
)

// Terminal reports whether the phase absorbs all further transitions.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseFailed }

// Progress is the polling snapshot exposed to the caller.
type Progress struct {
	RequestID RequestID `json:"request_id"`
	Phase     Phase     `json:"phase"`
	Percent   int       `json:"percent"`
	Stage     string    `json:"current_stage_label"`
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline"`
	Canceled  bool      `json:"canceled"`
}

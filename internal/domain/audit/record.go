package audit

import "time"

// Kind enumerates pipeline events.
type Kind string

const (
	KindRequestAccepted Kind = "request_accepted"
	KindFileValidated   Kind = "file_validated"
	KindPhaseTransition Kind = "phase_transition"
	KindVerdict         Kind = "authenticity_verdict"
	KindTaskStarted     Kind = "task_started"
	KindTaskFinished    Kind = "task_finished"
	KindError           Kind = "error"
	KindReportFinalized Kind = "report_finalized"
	KindRunCanceled     Kind = "run_canceled"
)

// Record is one immutable audit event. Payload carries derived metadata
// only, never raw file content.
type Record struct {
	Time      time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id"`
	Kind      Kind           `json:"event_kind"`
	Component string         `json:"component"`
	Success   bool           `json:"success"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Recorder is the process-wide append-only sink. Record must never block
// the caller and a sink write failure must never surface into pipeline
// logic.
type Recorder interface {
	Record(r Record)
}

// Nop discards every record. Used in tests and as a safe default.
type Nop struct{}

func (Nop) Record(Record) {}

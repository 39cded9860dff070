package analysis

import "context"

// Reasoner is the opaque LLM capability: invoke with a role, a task
// instruction and context, receive a textual result or failure. Kept
// synchronous with ctx-based timeout so the state machine stays
// deterministic and testable via a stub.
type Reasoner interface {
	Reason(ctx context.Context, role, instruction, context_ string) (string, error)
}

// ReportStore archives the consolidated report. A nil store disables
// archival; archival failure is never fatal to the pipeline.
type ReportStore interface {
	Archive(ctx context.Context, id RequestID, report *Report) (string, error)
}

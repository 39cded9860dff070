package analysis

import (
	"errors"
	"fmt"
)

// ErrBusy is returned by Submit when the admission slot is taken.
var ErrBusy = errors.New("another analysis is already running")

// ErrNotFound is returned when a request ID is unknown.
var ErrNotFound = errors.New("analysis not found")

// PipelineError: the pipeline reached FAILED. Carries the reason code and
// the phase at which the failure occurred, for get_result callers.
type PipelineError struct {
	Reason Reason
	Phase  Phase
	Detail string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed in %s: %s (%s)", e.Phase, e.Reason, e.Detail)
}

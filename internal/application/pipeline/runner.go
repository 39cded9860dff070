package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/audit"
)

// ErrNotReady is returned by Result while the pipeline is still running.
var ErrNotReady = errors.New("analysis still in progress")

// SubmitRequest is the collaborator-facing submission payload.
type SubmitRequest struct {
	Question  string
	Types     []analysis.Type
	FilePaths []string
}

// run is the mutable state of one background pipeline, owned by the Runner.
type run struct {
	mu       sync.Mutex
	progress analysis.Progress
	report   *analysis.Report
	err      error
	finished time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func (r *run) snapshot() analysis.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Runner owns background execution: it is the only component the external
// web/CLI layer calls. Submission never blocks on pipeline completion;
// callers poll Progress or fetch Result once the run is terminal. Terminal
// runs are kept for Retention so results stay pollable, then pruned.
type Runner struct {
	Orch      *Orchestrator
	Admission *Admission
	Timeout   time.Duration
	Retention time.Duration
	Audit     audit.Recorder
	Log       *zap.Logger

	mu   sync.Mutex
	runs map[analysis.RequestID]*run
}

func NewRunner(orch *Orchestrator, adm *Admission, timeout time.Duration, rec audit.Recorder, log *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		Orch:      orch,
		Admission: adm,
		Timeout:   timeout,
		Retention: time.Hour,
		Audit:     rec,
		Log:       log,
		runs:      make(map[analysis.RequestID]*run),
	}
}

// Submit validates the request, claims the admission slot and launches the
// background worker. Returns ErrBusy without creating any run state when
// the slot is taken.
func (rn *Runner) Submit(req SubmitRequest) (analysis.RequestID, error) {
	if req.Question == "" {
		return "", fmt.Errorf("research question is required")
	}
	if len(req.FilePaths) == 0 {
		return "", fmt.Errorf("at least one uploaded file is required")
	}
	types := req.Types
	if len(types) == 0 {
		types = analysis.TypeOrder
	}
	for _, t := range types {
		if !analysis.ValidType(t) {
			return "", fmt.Errorf("unknown analysis type %q", t)
		}
	}

	rn.prune(time.Now())

	if !rn.Admission.TryAcquire() {
		return "", analysis.ErrBusy
	}

	id := analysis.RequestID(uuid.New().String())
	accepted := &analysis.Request{
		ID:        id,
		Question:  req.Question,
		Types:     types,
		FilePaths: req.FilePaths,
		CreatedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), rn.Timeout)
	r := &run{
		cancel: cancel,
		done:   make(chan struct{}),
		progress: analysis.Progress{
			RequestID: id,
			Phase:     analysis.PhaseReceived,
			Percent:   0,
			Stage:     "queued",
			StartedAt: time.Now().UTC(),
			Deadline:  time.Now().UTC().Add(rn.Timeout),
		},
	}

	rn.mu.Lock()
	rn.runs[id] = r
	rn.mu.Unlock()

	go rn.execute(ctx, accepted, r)
	return id, nil
}

func (rn *Runner) execute(ctx context.Context, req *analysis.Request, r *run) {
	// Deferred in this order so the admission slot is free before done
	// closes and a waiter can submit the next request.
	defer close(r.done)
	defer r.cancel()
	defer rn.Admission.Release()

	report, err := rn.Orch.Run(ctx, req, func(phase analysis.Phase, percent int, stage string) {
		r.mu.Lock()
		r.progress.Phase = phase
		r.progress.Percent = percent
		r.progress.Stage = stage
		r.mu.Unlock()
	})

	r.mu.Lock()
	r.report = report
	r.err = err
	r.finished = time.Now()
	if err != nil {
		r.progress.Phase = analysis.PhaseFailed
		r.progress.Percent = 100
		r.progress.Stage = "failed"
	}
	r.mu.Unlock()

	if err != nil {
		rn.Log.Warn("pipeline finished with failure", zap.String("request_id", string(req.ID)), zap.Error(err))
		return
	}
	rn.Log.Info("pipeline finished", zap.String("request_id", string(req.ID)))
}

// Progress returns the polling snapshot for a request.
func (rn *Runner) Progress(id analysis.RequestID) (analysis.Progress, error) {
	r, ok := rn.lookup(id)
	if !ok {
		return analysis.Progress{}, analysis.ErrNotFound
	}
	return r.snapshot(), nil
}

// Result returns the consolidated report once the run is terminal. While
// the pipeline is running it returns ErrNotReady; a failed pipeline yields
// the *analysis.PipelineError carrying reason and phase-at-failure.
func (rn *Runner) Result(id analysis.RequestID) (*analysis.Report, error) {
	r, ok := rn.lookup(id)
	if !ok {
		return nil, analysis.ErrNotFound
	}
	select {
	case <-r.done:
	default:
		return nil, ErrNotReady
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report, r.err
}

// Wait blocks until the run is terminal. Intended for tests and CLI-style
// callers, not the polling boundary.
func (rn *Runner) Wait(id analysis.RequestID) error {
	r, ok := rn.lookup(id)
	if !ok {
		return analysis.ErrNotFound
	}
	<-r.done
	return nil
}

// Cancel signals cancellation to the running pipeline and acknowledges.
// Still-running sections are marked TIMED_OUT by the orchestrator and the
// report aggregates whatever completed. Canceling a terminal run is a pure
// ack: no state change, no audit record.
func (rn *Runner) Cancel(id analysis.RequestID) error {
	r, ok := rn.lookup(id)
	if !ok {
		return analysis.ErrNotFound
	}
	select {
	case <-r.done:
		return nil
	default:
	}
	r.mu.Lock()
	r.progress.Canceled = true
	r.mu.Unlock()
	r.cancel()
	rn.Audit.Record(audit.Record{
		Time: time.Now().UTC(), RequestID: string(id),
		Kind: audit.KindRunCanceled, Component: "runner", Success: true,
		Payload: map[string]any{"reason": analysis.ReasonCanceled},
	})
	return nil
}

func (rn *Runner) lookup(id analysis.RequestID) (*run, bool) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	r, ok := rn.runs[id]
	return r, ok
}

// prune drops terminal runs older than the retention window.
func (rn *Runner) prune(now time.Time) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	for id, r := range rn.runs {
		select {
		case <-r.done:
		default:
			continue
		}
		r.mu.Lock()
		finished := r.finished
		r.mu.Unlock()
		if !finished.IsZero() && now.Sub(finished) > rn.Retention {
			delete(rn.runs, id)
		}
	}
}

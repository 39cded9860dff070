package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/sapiens-pipeline/internal/agents"
	"github.com/bryanwahyu/sapiens-pipeline/internal/dataset"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/audit"
	"github.com/bryanwahyu/sapiens-pipeline/internal/infra/ai/prompt"
	"github.com/bryanwahyu/sapiens-pipeline/internal/security"
)

// Clock abstraction so transitions are testable.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// placeholderMarkers in dataset metadata flag fabricated or filler data
// during the deterministic part of the gate.
var placeholderMarkers = []string{"lorem ipsum", "placeholder", "synthetic_", "dummy_", "fake_data"}

// ProgressFunc receives phase transitions for progress reporting.
type ProgressFunc func(phase analysis.Phase, percent int, stage string)

// Orchestrator drives one request through the state machine
// RECEIVED → VALIDATING → GATING → DISPATCHING → AGGREGATING → DONE, with
// FAILED absorbing from any of the first four. It owns no cross-request
// state; everything here is scoped to a single Run call.
type Orchestrator struct {
	Validator *security.Validator
	Reasoner  analysis.Reasoner
	Audit     audit.Recorder
	Store     analysis.ReportStore
	Clock     Clock
	Log       *zap.Logger
}

func (o *Orchestrator) clock() Clock {
	if o.Clock == nil {
		return SystemClock{}
	}
	return o.Clock
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

func (o *Orchestrator) recorder() audit.Recorder {
	if o.Audit == nil {
		return audit.Nop{}
	}
	return o.Audit
}

// Run executes the pipeline for one accepted request. The returned error is
// always a *analysis.PipelineError; partial section failures and timeouts
// are represented inside the report instead. A panic in any phase moves the
// pipeline to FAILED rather than leaving it pending.
func (o *Orchestrator) Run(ctx context.Context, req *analysis.Request, progress ProgressFunc) (report *analysis.Report, err error) {
	if progress == nil {
		progress = func(analysis.Phase, int, string) {}
	}
	phase := analysis.PhaseReceived

	defer func() {
		if r := recover(); r != nil {
			o.logger().Error("pipeline panic", zap.Any("panic", r), zap.String("request_id", string(req.ID)))
			err = o.fail(req.ID, phase, analysis.ReasonInternal, fmt.Sprintf("panic: %v", r), "orchestrator")
			report = nil
			progress(analysis.PhaseFailed, 100, "failed")
		}
	}()

	o.transition(req.ID, phase, analysis.PhaseReceived)
	progress(analysis.PhaseReceived, 5, "request accepted")
	o.recorder().Record(audit.Record{
		Time: o.clock().Now().UTC(), RequestID: string(req.ID),
		Kind: audit.KindRequestAccepted, Component: "orchestrator", Success: true,
		Payload: map[string]any{"question": req.Question, "types": req.Types, "files": len(req.FilePaths)},
	})

	// RECEIVED → VALIDATING: every file checked concurrently.
	phase = analysis.PhaseValidating
	o.transition(req.ID, analysis.PhaseReceived, phase)
	progress(phase, 15, "validating uploaded files")

	accepted, rejected := o.validateFiles(ctx, req)
	if len(accepted) == 0 {
		return nil, o.fail(req.ID, phase, analysis.ReasonNoValidData, "no uploaded file passed security validation", "security.validator")
	}

	// VALIDATING → GATING: authenticity verdict before any specialist runs.
	phase = analysis.PhaseGating
	o.transition(req.ID, analysis.PhaseValidating, phase)
	progress(phase, 30, "checking data authenticity")

	datasets := o.loadDatasets(req.ID, accepted)
	verdict := o.gate(ctx, req, datasets)
	o.recorder().Record(audit.Record{
		Time: o.clock().Now().UTC(), RequestID: string(req.ID),
		Kind: audit.KindVerdict, Component: "orchestrator", Success: verdict.Authentic,
		Payload: map[string]any{"authentic": verdict.Authentic, "rationale": verdict.Rationale},
	})
	if !verdict.Authentic {
		return nil, o.fail(req.ID, phase, analysis.ReasonAuthenticityRejected, verdict.Rationale, "orchestrator")
	}

	// GATING → DISPATCHING: descriptive first, then the fan-out.
	phase = analysis.PhaseDispatching
	o.transition(req.ID, analysis.PhaseGating, phase)
	progress(phase, 40, "running specialist agents")

	sections := o.dispatch(ctx, req, datasets, progress)

	// DISPATCHING → AGGREGATING: fixed-order consolidation.
	phase = analysis.PhaseAggregating
	o.transition(req.ID, analysis.PhaseDispatching, phase)
	progress(phase, 90, "aggregating report")

	report = &analysis.Report{
		RequestID:     req.ID,
		Question:      req.Question,
		Files:         accepted,
		RejectedFiles: rejected,
		Verdict:       verdict,
		Sections:      ordered(sections),
		GeneratedAt:   o.clock().Now().UTC(),
	}
	report.ExecutiveSummary = o.summarize(ctx, req, report)

	o.archive(ctx, req.ID, report)

	o.recorder().Record(audit.Record{
		Time: o.clock().Now().UTC(), RequestID: string(req.ID),
		Kind: audit.KindReportFinalized, Component: "orchestrator", Success: true,
		Payload: map[string]any{"sections": len(report.Sections)},
	})
	o.transition(req.ID, analysis.PhaseAggregating, analysis.PhaseDone)
	progress(analysis.PhaseDone, 100, "done")
	return report, nil
}

// validateFiles fans out the security validator over every file. Rejected
// files never become UploadedFile.
func (o *Orchestrator) validateFiles(ctx context.Context, req *analysis.Request) ([]analysis.UploadedFile, []analysis.ValidationResult) {
	results := make([]analysis.ValidationResult, len(req.FilePaths))
	var wg sync.WaitGroup
	for i, path := range req.FilePaths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			results[i] = o.Validator.Validate(ctx, req.ID, path)
		}(i, path)
	}
	wg.Wait()

	var accepted []analysis.UploadedFile
	var rejected []analysis.ValidationResult
	for _, res := range results {
		if res.Outcome == analysis.Accepted {
			accepted = append(accepted, analysis.UploadedFile{
				Path:     res.Path,
				Name:     filepath.Base(res.Path),
				Ext:      strings.ToLower(filepath.Ext(res.Path)),
				MIME:     res.MIME,
				Size:     res.Size,
				SHA256:   res.SHA256,
				PIIFlags: res.PIIFlags,
			})
		} else {
			rejected = append(rejected, res)
		}
	}
	return accepted, rejected
}

// loadDatasets parses the tabular subset of the accepted files. A parse
// failure excludes the file from analysis; the gate decides whether enough
// data remains.
func (o *Orchestrator) loadDatasets(id analysis.RequestID, files []analysis.UploadedFile) []*dataset.Dataset {
	var out []*dataset.Dataset
	for _, f := range files {
		if !dataset.Tabular(f.Path) {
			continue
		}
		ds, err := dataset.Load(f.Path)
		if err != nil {
			o.logger().Warn("dataset load failed", zap.String("file", f.Name), zap.Error(err))
			o.recorder().Record(audit.Record{
				Time: o.clock().Now().UTC(), RequestID: string(id),
				Kind: audit.KindError, Component: "dataset", Success: false,
				Payload: map[string]any{"file": f.Name, "error": err.Error()},
			})
			continue
		}
		out = append(out, ds)
	}
	return out
}

// gate combines deterministic heuristics with the reasoner's judgment. The
// heuristics alone can reject; when the reasoner is unavailable they alone
// decide, with the rationale noting the degradation.
func (o *Orchestrator) gate(ctx context.Context, req *analysis.Request, datasets []*dataset.Dataset) analysis.Verdict {
	rows := 0
	numeric := 0
	var summaries []dataset.Summary
	for _, ds := range datasets {
		s := ds.Summarize()
		summaries = append(summaries, s)
		rows += s.RowCount
		numeric += len(s.NumericColumns)
		if marker := placeholderIn(ds); marker != "" {
			return analysis.Verdict{
				Authentic: false,
				Rationale: fmt.Sprintf("dataset %s carries placeholder marker %q", ds.Name, marker),
			}
		}
	}
	if rows == 0 {
		return analysis.Verdict{Authentic: false, Rationale: "no tabular rows available for analysis"}
	}
	if numeric == 0 {
		return analysis.Verdict{Authentic: false, Rationale: "no numeric columns available for statistical analysis"}
	}

	if o.Reasoner == nil {
		return analysis.Verdict{Authentic: true, Rationale: "heuristic checks passed; reasoner not configured"}
	}

	summaryJSON, _ := json.Marshal(summaries)
	raw, err := o.Reasoner.Reason(ctx, prompt.RoleGatekeeper, prompt.GateSystem(), prompt.GateUser(req.Question, string(summaryJSON)))
	if err != nil {
		o.logger().Warn("gate reasoner unavailable, heuristics decide", zap.Error(err))
		return analysis.Verdict{Authentic: true, Rationale: "heuristic checks passed; reasoner unavailable: " + err.Error()}
	}

	var parsed analysis.Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		o.logger().Warn("gate verdict unparseable, heuristics decide", zap.Error(err))
		return analysis.Verdict{Authentic: true, Rationale: "heuristic checks passed; verdict unparseable"}
	}
	if parsed.Rationale == "" {
		parsed.Rationale = "no rationale provided"
	}
	return parsed
}

func placeholderIn(ds *dataset.Dataset) string {
	fields := append([]string{ds.Name}, ds.Columns...)
	if len(ds.Rows) > 0 {
		fields = append(fields, ds.Rows[0]...)
	}
	joined := strings.ToLower(strings.Join(fields, " "))
	for _, marker := range placeholderMarkers {
		if strings.Contains(joined, marker) {
			return marker
		}
	}
	return ""
}

// dispatch runs the specialists: Descriptive strictly first, Diagnostic and
// Predictive concurrently after it, Prescriptive last so it can read the
// other sections. A failing task never aborts its siblings; tasks cut off
// by the deadline are marked TIMED_OUT and aggregation proceeds with
// whatever completed.
func (o *Orchestrator) dispatch(ctx context.Context, req *analysis.Request, datasets []*dataset.Dataset, progress ProgressFunc) map[analysis.Type]analysis.Section {
	specialists := agents.ForTypes(req.Types, o.Reasoner)
	sections := make(map[analysis.Type]analysis.Section, len(specialists))

	baseInput := agents.Input{Question: req.Question, Datasets: datasets}

	var rest []agents.Specialist
	for _, sp := range specialists {
		if sp.Type() == analysis.TypeDescriptive {
			sections[sp.Type()] = o.runTask(ctx, req.ID, sp, baseInput, new(sync.Once))
			progress(analysis.PhaseDispatching, 55, "descriptive analysis complete")
		} else {
			rest = append(rest, sp)
		}
	}

	if desc, ok := sections[analysis.TypeDescriptive]; ok {
		baseInput.Descriptive = agents.ContextFrom(desc)
	}

	// Fan-out stage: diagnostic and predictive are read-only over the
	// descriptive output and the datasets.
	var fanout, last []agents.Specialist
	for _, sp := range rest {
		if sp.Type() == analysis.TypePrescriptive {
			last = append(last, sp)
		} else {
			fanout = append(fanout, sp)
		}
	}
	for t, sec := range o.runStage(ctx, req.ID, fanout, baseInput) {
		sections[t] = sec
	}
	progress(analysis.PhaseDispatching, 75, "diagnostic and predictive analysis complete")

	if len(last) > 0 {
		input := baseInput
		for _, t := range []analysis.Type{analysis.TypeDiagnostic, analysis.TypePredictive} {
			if sec, ok := sections[t]; ok {
				input.PriorSections = append(input.PriorSections, sec)
			}
		}
		for t, sec := range o.runStage(ctx, req.ID, last, input) {
			sections[t] = sec
		}
	}
	progress(analysis.PhaseDispatching, 85, "specialist agents complete")
	return sections
}

// runStage launches a set of specialists concurrently and waits for all of
// them or the deadline, whichever comes first. Tasks not finished when the
// deadline fires are recorded as TIMED_OUT. Each task carries a once guard
// shared with the stage so an abandoned goroutine cannot emit a second
// task_finished record after the stage already recorded the timeout.
func (o *Orchestrator) runStage(ctx context.Context, id analysis.RequestID, specs []agents.Specialist, in agents.Input) map[analysis.Type]analysis.Section {
	out := make(map[analysis.Type]analysis.Section, len(specs))
	if len(specs) == 0 {
		return out
	}

	onces := make(map[analysis.Type]*sync.Once, len(specs))
	for _, sp := range specs {
		onces[sp.Type()] = new(sync.Once)
	}

	type staged struct {
		t   analysis.Type
		sec analysis.Section
	}
	results := make(chan staged, len(specs))
	for _, sp := range specs {
		go func(sp agents.Specialist) {
			results <- staged{t: sp.Type(), sec: o.runTask(ctx, id, sp, in, onces[sp.Type()])}
		}(sp)
	}

	for range specs {
		select {
		case r := <-results:
			out[r.t] = r.sec
		case <-ctx.Done():
			for _, sp := range specs {
				if _, ok := out[sp.Type()]; !ok {
					out[sp.Type()] = o.timedOut(id, sp.Type(), onces[sp.Type()])
				}
			}
			return out
		}
	}
	return out
}

// runTask wraps one specialist execution with task audit records and panic
// isolation: a panicking agent fails its own section only. finished must
// fire exactly once per task even when the stage abandons the goroutine at
// the deadline.
func (o *Orchestrator) runTask(ctx context.Context, id analysis.RequestID, sp agents.Specialist, in agents.Input, finished *sync.Once) (sec analysis.Section) {
	if err := ctx.Err(); err != nil {
		return o.timedOut(id, sp.Type(), finished)
	}

	o.recorder().Record(audit.Record{
		Time: o.clock().Now().UTC(), RequestID: string(id),
		Kind: audit.KindTaskStarted, Component: "agents." + string(sp.Type()), Success: true,
	})

	defer func() {
		if r := recover(); r != nil {
			o.logger().Error("specialist panic", zap.String("type", string(sp.Type())), zap.Any("panic", r))
			sec = analysis.Section{Type: sp.Type(), Status: analysis.SectionFailed, Error: fmt.Sprintf("panic: %v", r)}
		}
		if ctx.Err() != nil && sec.Status != analysis.SectionDone && sec.Status != analysis.SectionDegraded {
			sec.Status = analysis.SectionTimedOut
			sec.Error = string(analysis.ReasonTimedOut)
		}
		finished.Do(func() {
			o.recorder().Record(audit.Record{
				Time: o.clock().Now().UTC(), RequestID: string(id),
				Kind: audit.KindTaskFinished, Component: "agents." + string(sp.Type()),
				Success: sec.Status == analysis.SectionDone || sec.Status == analysis.SectionDegraded,
				Payload: map[string]any{"status": sec.Status, "duration_ms": sec.DurationMS},
			})
		})
	}()

	return sp.Run(ctx, in)
}

func (o *Orchestrator) timedOut(id analysis.RequestID, t analysis.Type, finished *sync.Once) analysis.Section {
	sec := analysis.Section{Type: t, Status: analysis.SectionTimedOut, Error: string(analysis.ReasonTimedOut)}
	finished.Do(func() {
		o.recorder().Record(audit.Record{
			Time: o.clock().Now().UTC(), RequestID: string(id),
			Kind: audit.KindTaskFinished, Component: "agents." + string(t), Success: false,
			Payload: map[string]any{"status": sec.Status},
		})
	})
	return sec
}

// ordered returns sections in the fixed report order regardless of
// completion order.
func ordered(sections map[analysis.Type]analysis.Section) []analysis.Section {
	var out []analysis.Section
	for _, t := range analysis.TypeOrder {
		if sec, ok := sections[t]; ok {
			out = append(out, sec)
		}
	}
	return out
}

// summarize synthesizes the executive summary last, falling back to a
// deterministic digest when the reasoner cannot answer.
func (o *Orchestrator) summarize(ctx context.Context, req *analysis.Request, report *analysis.Report) string {
	fallback := fallbackSummary(report)
	if o.Reasoner == nil {
		return fallback
	}

	var sb strings.Builder
	for _, sec := range report.Sections {
		fmt.Fprintf(&sb, "[%s %s] %s\n", sec.Type, sec.Status, sec.Narrative)
	}
	text, err := o.Reasoner.Reason(ctx, prompt.RoleEditor, prompt.NarrativeSystem(prompt.RoleEditor), prompt.NarrativeUser(req.Question, sb.String(), ""))
	if err != nil || strings.TrimSpace(text) == "" {
		o.logger().Warn("executive summary degraded to deterministic fallback", zap.Error(err))
		return fallback
	}
	return text
}

func fallbackSummary(report *analysis.Report) string {
	var parts []string
	for _, sec := range report.Sections {
		parts = append(parts, fmt.Sprintf("%s: %s", sec.Type, strings.ToLower(string(sec.Status))))
	}
	return fmt.Sprintf("Analysis of %d file(s) for %q. Sections: %s.",
		len(report.Files), report.Question, strings.Join(parts, ", "))
}

// archive uploads the consolidated report when a store is configured.
// Failure is audited but never fails a finished pipeline.
func (o *Orchestrator) archive(ctx context.Context, id analysis.RequestID, report *analysis.Report) {
	if o.Store == nil {
		return
	}
	url, err := o.Store.Archive(ctx, id, report)
	if err != nil {
		o.logger().Warn("report archival failed", zap.Error(err))
		o.recorder().Record(audit.Record{
			Time: o.clock().Now().UTC(), RequestID: string(id),
			Kind: audit.KindError, Component: "storage", Success: false,
			Payload: map[string]any{"error": err.Error()},
		})
		return
	}
	report.ArtifactURL = url
}

// transition audits a phase change before it completes.
func (o *Orchestrator) transition(id analysis.RequestID, from, to analysis.Phase) {
	o.recorder().Record(audit.Record{
		Time: o.clock().Now().UTC(), RequestID: string(id),
		Kind: audit.KindPhaseTransition, Component: "orchestrator", Success: true,
		Payload: map[string]any{"from": from, "to": to},
	})
}

// fail records the failure and moves the pipeline to FAILED. The reason
// code and originating component land in the audit trail before the
// transition completes.
func (o *Orchestrator) fail(id analysis.RequestID, at analysis.Phase, reason analysis.Reason, detail, component string) error {
	o.recorder().Record(audit.Record{
		Time: o.clock().Now().UTC(), RequestID: string(id),
		Kind: audit.KindError, Component: component, Success: false,
		Payload: map[string]any{"reason": reason, "detail": detail, "phase": at},
	})
	o.transition(id, at, analysis.PhaseFailed)
	return &analysis.PipelineError{Reason: reason, Phase: at, Detail: detail}
}

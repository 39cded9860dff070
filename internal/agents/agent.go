// Package agents contains the four fixed specialist roles. The set is
// closed: Descriptive, Diagnostic, Predictive, Prescriptive, sharing one
// task interface. Each specialist wraps its own statistical-engine calls
// and its own reasoning call.
package agents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bryanwahyu/sapiens-pipeline/internal/dataset"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
)

// Input is what a specialist may read: the validated datasets, the research
// question, and output from prior stages. Diagnostic, Predictive and
// Prescriptive may consume the Descriptive section; Prescriptive also sees
// the other two.
type Input struct {
	Question      string
	Datasets      []*dataset.Dataset
	Descriptive   string             // descriptive narrative + statistics, empty for the descriptive agent itself
	PriorSections []analysis.Section // populated for the prescriptive agent
}

// Specialist is the shared task interface. Run never returns an error:
// failure modes are encoded in the section status. A statistical failure
// marks the section FAILED; a reasoning failure degrades it to statistics
// only.
type Specialist interface {
	Type() analysis.Type
	Run(ctx context.Context, in Input) analysis.Section
}

// ForTypes returns the specialists for the requested types, in fixed
// dependency order (Descriptive first).
func ForTypes(types []analysis.Type, reasoner analysis.Reasoner) []Specialist {
	requested := map[analysis.Type]bool{}
	for _, t := range types {
		requested[t] = true
	}
	var out []Specialist
	for _, t := range analysis.TypeOrder {
		if !requested[t] {
			continue
		}
		switch t {
		case analysis.TypeDescriptive:
			out = append(out, &Descriptive{Reasoner: reasoner})
		case analysis.TypeDiagnostic:
			out = append(out, &Diagnostic{Reasoner: reasoner})
		case analysis.TypePredictive:
			out = append(out, &Predictive{Reasoner: reasoner})
		case analysis.TypePrescriptive:
			out = append(out, &Prescriptive{Reasoner: reasoner})
		}
	}
	return out
}

// finish stamps status and duration on a section under construction.
func finish(sec analysis.Section, started time.Time) analysis.Section {
	sec.DurationMS = time.Since(started).Milliseconds()
	return sec
}

// failed builds a FAILED section from a statistical-engine error.
func failed(t analysis.Type, started time.Time, err error) analysis.Section {
	return finish(analysis.Section{
		Type:   t,
		Status: analysis.SectionFailed,
		Error:  err.Error(),
	}, started)
}

// narrate runs the reasoning call and applies the degradation rule: when
// the narrative step fails, the section keeps its statistics and is marked
// DEGRADED instead of failing the whole task. A failure caused by the
// deadline is a timeout, not a degradation.
func narrate(ctx context.Context, r analysis.Reasoner, role, system, user string, sec analysis.Section, started time.Time) analysis.Section {
	if r == nil {
		sec.Status = analysis.SectionDegraded
		sec.Error = "narrative unavailable: no reasoner configured"
		return finish(sec, started)
	}
	text, err := r.Reason(ctx, role, system, user)
	if err != nil {
		if ctx.Err() != nil {
			sec.Status = analysis.SectionTimedOut
			sec.Error = string(analysis.ReasonTimedOut)
			return finish(sec, started)
		}
		sec.Status = analysis.SectionDegraded
		sec.Error = "narrative unavailable: " + err.Error()
		return finish(sec, started)
	}
	sec.Status = analysis.SectionDone
	sec.Narrative = text
	return finish(sec, started)
}

// statsJSON renders computed statistics for prompts and prior-stage context.
func statsJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// tabular filters the datasets the engine can actually process.
func tabular(in Input) []*dataset.Dataset {
	var out []*dataset.Dataset
	for _, ds := range in.Datasets {
		if ds != nil {
			out = append(out, ds)
		}
	}
	return out
}

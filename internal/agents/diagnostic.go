package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/infra/ai/prompt"
	"github.com/bryanwahyu/sapiens-pipeline/internal/stats"
)

// Diagnostic runs correlation analysis and hypothesis tests, then a
// causal-hypothesis narrative over them.
type Diagnostic struct {
	Reasoner analysis.Reasoner
}

func (d *Diagnostic) Type() analysis.Type { return analysis.TypeDiagnostic }

type diagnosticStats struct {
	Correlations []*stats.Correlation     `json:"correlations"`
	Hypotheses   []*stats.HypothesisTests `json:"hypothesis_tests,omitempty"`
}

func (d *Diagnostic) Run(ctx context.Context, in Input) analysis.Section {
	started := time.Now()

	payload := diagnosticStats{}
	var firstErr error
	for _, ds := range tabular(in) {
		corr, err := stats.Correlate(ds)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		payload.Correlations = append(payload.Correlations, corr)

		// Hypothesis tests share the correlation minimums; a failure here
		// is not fatal once correlations exist.
		if tests, err := stats.TTest(ds, stats.DefaultAlpha); err == nil {
			payload.Hypotheses = append(payload.Hypotheses, tests)
		}
	}
	if len(payload.Correlations) == 0 {
		if firstErr == nil {
			firstErr = fmt.Errorf("no tabular dataset available: %w", stats.ErrInsufficientData)
		}
		return failed(d.Type(), started, firstErr)
	}

	sec := analysis.Section{Type: d.Type(), Statistics: payload}
	return narrate(ctx, d.Reasoner, prompt.RoleDiagnostic,
		prompt.NarrativeSystem(prompt.RoleDiagnostic),
		prompt.NarrativeUser(in.Question, statsJSON(payload), in.Descriptive),
		sec, started)
}

package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/infra/ai/prompt"
	"github.com/bryanwahyu/sapiens-pipeline/internal/stats"
)

// Predictive fits regressions and produces a forecast narrative.
type Predictive struct {
	Reasoner analysis.Reasoner
}

func (p *Predictive) Type() analysis.Type { return analysis.TypePredictive }

type predictiveStats struct {
	Regressions []*stats.Regression `json:"regressions"`
}

func (p *Predictive) Run(ctx context.Context, in Input) analysis.Section {
	started := time.Now()

	payload := predictiveStats{}
	var firstErr error
	for _, ds := range tabular(in) {
		reg, err := stats.Regress(ds)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		payload.Regressions = append(payload.Regressions, reg)
	}
	if len(payload.Regressions) == 0 {
		if firstErr == nil {
			firstErr = fmt.Errorf("no tabular dataset available: %w", stats.ErrInsufficientData)
		}
		return failed(p.Type(), started, firstErr)
	}

	sec := analysis.Section{Type: p.Type(), Statistics: payload}
	return narrate(ctx, p.Reasoner, prompt.RolePredictive,
		prompt.NarrativeSystem(prompt.RolePredictive),
		prompt.NarrativeUser(in.Question, statsJSON(payload), in.Descriptive),
		sec, started)
}

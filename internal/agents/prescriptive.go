package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/infra/ai/prompt"
	"github.com/bryanwahyu/sapiens-pipeline/internal/stats"
)

// Prescriptive synthesizes recommendations conditioned on the other three
// sections. It re-derives the descriptive summary so its recommendations
// stay grounded in computed numbers even when prior narratives degraded.
type Prescriptive struct {
	Reasoner analysis.Reasoner
}

func (p *Prescriptive) Type() analysis.Type { return analysis.TypePrescriptive }

type prescriptiveStats struct {
	Descriptions []*stats.Description `json:"descriptions"`
}

func (p *Prescriptive) Run(ctx context.Context, in Input) analysis.Section {
	started := time.Now()

	payload := prescriptiveStats{}
	var firstErr error
	for _, ds := range tabular(in) {
		desc, err := stats.Describe(ds)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		payload.Descriptions = append(payload.Descriptions, desc)
	}
	if len(payload.Descriptions) == 0 {
		if firstErr == nil {
			firstErr = fmt.Errorf("no tabular dataset available: %w", stats.ErrInsufficientData)
		}
		return failed(p.Type(), started, firstErr)
	}

	sec := analysis.Section{Type: p.Type(), Statistics: payload}
	return narrate(ctx, p.Reasoner, prompt.RolePrescriptive,
		prompt.NarrativeSystem(prompt.RolePrescriptive),
		prompt.NarrativeUser(in.Question, statsJSON(payload), priorContext(in)),
		sec, started)
}

// priorContext folds the completed sibling sections into prompt context.
func priorContext(in Input) string {
	var parts []string
	if in.Descriptive != "" {
		parts = append(parts, in.Descriptive)
	}
	for _, sec := range in.PriorSections {
		if sec.Type == analysis.TypePrescriptive {
			continue
		}
		switch sec.Status {
		case analysis.SectionDone, analysis.SectionDegraded:
			part := fmt.Sprintf("%s statistics: %s", sec.Type, statsJSON(sec.Statistics))
			if sec.Narrative != "" {
				part += fmt.Sprintf("\n%s narrative: %s", sec.Type, sec.Narrative)
			}
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n\n")
}

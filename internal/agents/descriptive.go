package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/bryanwahyu/sapiens-pipeline/internal/dataset"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/infra/ai/prompt"
	"github.com/bryanwahyu/sapiens-pipeline/internal/stats"
)

// Descriptive computes summary statistics and trend notes. It always runs
// first; the other specialists may consume its output as context.
type Descriptive struct {
	Reasoner analysis.Reasoner
}

func (d *Descriptive) Type() analysis.Type { return analysis.TypeDescriptive }

type descriptiveStats struct {
	Descriptions []*stats.Description `json:"descriptions"`
	Trends       []string             `json:"trends,omitempty"`
}

func (d *Descriptive) Run(ctx context.Context, in Input) analysis.Section {
	started := time.Now()

	payload := descriptiveStats{}
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
		payload.Trends = append(payload.Trends, trendNotes(ds)...)
	}
	if len(payload.Descriptions) == 0 {
		if firstErr == nil {
			firstErr = fmt.Errorf("no tabular dataset available: %w", stats.ErrInsufficientData)
		}
		return failed(d.Type(), started, firstErr)
	}

	sec := analysis.Section{Type: d.Type(), Statistics: payload}
	return narrate(ctx, d.Reasoner, prompt.RoleDescriptive,
		prompt.NarrativeSystem(prompt.RoleDescriptive),
		prompt.NarrativeUser(in.Question, statsJSON(payload), ""),
		sec, started)
}

// trendNotes compares first-half and second-half means per numeric column.
// A relative shift above 5% is reported as a trend.
func trendNotes(ds *dataset.Dataset) []string {
	var notes []string
	for _, col := range ds.NumericColumns() {
		vals, _ := ds.NumericColumn(col)
		if len(vals) < 4 {
			continue
		}
		half := len(vals) / 2
		first := stat.Mean(vals[:half], nil)
		second := stat.Mean(vals[half:], nil)
		if first == 0 {
			continue
		}
		shift := (second - first) / first
		switch {
		case shift > 0.05:
			notes = append(notes, fmt.Sprintf("%s/%s: increasing (%.1f%%)", ds.Name, col, shift*100))
		case shift < -0.05:
			notes = append(notes, fmt.Sprintf("%s/%s: decreasing (%.1f%%)", ds.Name, col, shift*100))
		}
	}
	if len(notes) == 0 {
		return nil
	}
	return notes
}

// ContextFrom renders a completed descriptive section for downstream
// specialists.
func ContextFrom(sec analysis.Section) string {
	if sec.Type != analysis.TypeDescriptive {
		return ""
	}
	switch sec.Status {
	case analysis.SectionDone, analysis.SectionDegraded:
		parts := []string{"Descriptive statistics: " + statsJSON(sec.Statistics)}
		if sec.Narrative != "" {
			parts = append(parts, "Descriptive narrative: "+sec.Narrative)
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

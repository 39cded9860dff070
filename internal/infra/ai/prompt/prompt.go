// Package prompt holds the role instructions handed to the reasoning
// capability. Prompts demand plain text for narratives and strict JSON for
// the authenticity gate so the orchestrator can parse decisions
// deterministically.
package prompt

import "fmt"

// Role names used when invoking the reasoner.
const (
	RoleGatekeeper   = "gatekeeper"
	RoleDescriptive  = "descriptive_analyst"
	RoleDiagnostic   = "diagnostic_analyst"
	RolePredictive   = "predictive_analyst"
	RolePrescriptive = "prescriptive_analyst"
	RoleEditor       = "report_editor"
)

// GateSystem instructs the model to judge data authenticity and answer with
// one JSON object only.
func GateSystem() string {
	return `You are a rigorous data authenticity reviewer for an academic analysis platform. Decide whether the dataset summaries describe sufficient real data to analyze, or fabricated/placeholder/empty data. Respond with a single JSON object, no markdown, no commentary:
{"authentic": <true|false>, "rationale": "<one or two sentences>"}
Treat empty datasets, lorem-ipsum style filler, and obviously synthetic placeholder values as not authentic. When in doubt about borderline but plausible data, lean authentic.`
}

// GateUser wraps the research question and dataset summaries.
func GateUser(question, summaries string) string {
	return fmt.Sprintf("Research question: %s\n\nDataset summaries:\n%s\n\nRespond with the JSON verdict.", question, summaries)
}

// NarrativeSystem is the shared preamble for the specialist roles.
func NarrativeSystem(role string) string {
	base := "You write concise analytical narrative for an academic data-analysis report. Use only the statistics provided; never invent numbers. Plain text, no markdown headings."
	switch role {
	case RoleDescriptive:
		return base + " Focus: summarize central tendency, spread and notable trends."
	case RoleDiagnostic:
		return base + " Focus: interpret correlations and hypothesis tests; phrase causal statements as hypotheses, not facts."
	case RolePredictive:
		return base + " Focus: interpret the regression, its fit quality and what a forecast based on it can and cannot support."
	case RolePrescriptive:
		return base + " Focus: actionable recommendations grounded in the descriptive, diagnostic and predictive findings provided."
	case RoleEditor:
		return base + " Focus: a short executive summary of the full report, one paragraph."
	default:
		return base
	}
}

// NarrativeUser builds the user message for a specialist narrative.
func NarrativeUser(question, statistics, priorContext string) string {
	msg := fmt.Sprintf("Research question: %s\n\nComputed statistics:\n%s", question, statistics)
	if priorContext != "" {
		msg += "\n\nContext from earlier analysis stages:\n" + priorContext
	}
	return msg
}

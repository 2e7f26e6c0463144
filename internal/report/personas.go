package report

import "strings"

// Persona is a named analytical viewpoint that parameterizes planning
// heuristics, report structure preferences, and writing style.
type Persona struct {
	Name             string
	Description      string
	ReportGuidelines []string
	ChartGuidelines  string
	// SchemaFields are the section topics a complete report for this persona
	// is expected to cover; the completeness evaluator scores against them.
	SchemaFields []string
}

const DefaultPersonaName = "general"

var personaCatalogue = map[string]Persona{
	"general": {
		Name:        "general",
		Description: "A broad business analyst writing for a non-specialist audience.",
		ReportGuidelines: []string{
			"Open with a short executive summary.",
			"Ground every factual claim in a cited source.",
			"Close with practical takeaways.",
		},
		ChartGuidelines: "Use a chart only when numeric comparisons help the reader.",
		SchemaFields:    []string{"overview", "key findings", "analysis", "conclusion"},
	},
	"procurement": {
		Name:        "procurement",
		Description: "A procurement officer focused on price trends, supplier reliability, and sourcing risk.",
		ReportGuidelines: []string{
			"Lead with price and availability signals.",
			"Quantify trends with explicit figures and periods.",
			"Flag supply risks and alternatives.",
		},
		ChartGuidelines: "Prefer line charts for price trends and bar charts for supplier comparisons.",
		SchemaFields:    []string{"price trend", "supplier landscape", "risk factors", "sourcing recommendation"},
	},
	"researcher": {
		Name:        "researcher",
		Description: "A domain researcher who wants mechanisms, evidence strength, and open questions.",
		ReportGuidelines: []string{
			"Distinguish established findings from preliminary results.",
			"Cite academic sources whenever they exist.",
			"State the limits of the available evidence.",
		},
		ChartGuidelines: "Charts are optional; include one only for quantitative study results.",
		SchemaFields:    []string{"background", "evidence review", "mechanisms", "open questions", "references"},
	},
	"executive": {
		Name:        "executive",
		Description: "A senior executive who needs the decision-relevant picture in minimal time.",
		ReportGuidelines: []string{
			"One-paragraph bottom line first.",
			"Keep sections short; push detail into bullet points.",
			"End with a clear recommendation and confidence level.",
		},
		ChartGuidelines: "At most one chart, only if it changes the decision.",
		SchemaFields:    []string{"bottom line", "market context", "implications", "recommendation"},
	},
}

// GetPersona resolves a persona by name. Unknown names resolve to the
// default persona, never an error.
func GetPersona(name string) Persona {
	if persona, ok := personaCatalogue[strings.ToLower(strings.TrimSpace(name))]; ok {
		return persona
	}
	return personaCatalogue[DefaultPersonaName]
}

// PersonaNames lists the catalogue for transport-layer discovery.
func PersonaNames() []string {
	return []string{"general", "procurement", "researcher", "executive"}
}

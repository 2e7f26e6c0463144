package report

import (
	"fmt"
	"strings"
	"text/template"

	"reportengine/backend/internal/tools"
)

// Prompt templates use << >> delimiters so the literal step-reference token
// ({{STEP_n_RESULT}}) can appear in instruction text unescaped. Model-call
// sites pass typed parameter structs; no control flow lives in the template
// text.

const promptDataBudgetRunes = 1200

var (
	plannerTmpl   = template.Must(template.New("planner").Delims("<<", ">>").Parse(plannerTemplateText))
	structureTmpl = template.Must(template.New("structure").Delims("<<", ">>").Parse(structureTemplateText))
	sectionTmpl   = template.Must(template.New("section").Delims("<<", ">>").Parse(sectionTemplateText))
	chartTmpl     = template.Must(template.New("chart").Delims("<<", ">>").Parse(chartTemplateText))
)

type PlannerPromptParams struct {
	Query            string
	Persona          Persona
	Probe            tools.ProbeSignals
	ProbeSkipped     bool
	RelationPreviews string
}

type StructurePromptParams struct {
	Query      string
	Persona    Persona
	DataDigest string
}

type SectionPromptParams struct {
	Query          string
	Persona        Persona
	Section        ReportSection
	SectionData    string
	PriorSections  string
	ChartMarker    string
	ChartGuideline string
}

type ChartPromptParams struct {
	SectionTitle string
	SectionText  string
	Guideline    string
}

const plannerTemplateText = `You are a research planner for a business reporting system.

User query: <<.Query>>
Persona: <<.Persona.Description>>

Available tools, in priority order by intent:
- web_search: real-time, news, or current-events intent.
- rdb: numeric or statistical intent (prices, volumes, counts).
- graph_db: entity-relationship intent (origins, compositions, links).
- vector_db: narrative or analytical intent over ingested documents.
- academic_search: academic intent; write the query in English.

Graph store probe:
- origin relations present: <<.Probe.HasOriginRelations>>
- attribute relations present: <<.Probe.HasAttributeRelations>>
- document relations present: <<.Probe.HasDocumentRelations>>
<<if .RelationPreviews>>- example relations: <<.RelationPreviews>>
<<end>><<if .ProbeSkipped>>(The probe was skipped; treat all graph signals as false.)
<<end>>
Rules:
1. Decompose the query into independent semantic units and write one
   tool-bound sub-question per unit, preserving the original query context.
2. Prefer the minimum tool set that satisfies the declared intent; do not
   fan out to extra tools.
3. If a graph signal above is true, include at least one graph_db
   sub-question exercising it. Never create a graph_db sub-question when all
   graph signals are false.
4. Analyze dependencies between sub-questions. Step 1 holds every
   dependency-free sub-question; a later step's question may reference an
   earlier step N's result with the literal token {{STEP_N_RESULT}}.

Respond with JSON only:
{"title": "...", "reasoning": "...", "execution_steps": [
  {"step": 1, "reasoning": "...", "sub_questions": [
    {"question": "...", "tool": "web_search"}]}]}`

const structureTemplateText = `You design the section structure of a business report.

User query: <<.Query>>
Persona: <<.Persona.Description>>
Persona guidelines:
<<range .Persona.ReportGuidelines>>- <<.>>
<<end>>
Collected data (index: title | source | excerpt):
<<.DataDigest>>

Design an ordered list of report sections. Each section declares the exact
data indexes it will cite; claim only indexes relevant to the section goal.

Respond with JSON only:
{"sections": [{"section_title": "...", "description": "...",
  "content_type": "text", "use_indexes": [0, 2]}]}`

const sectionTemplateText = `Write one section of a business report in Markdown.

User query: <<.Query>>
Persona: <<.Persona.Description>>
Section title: <<.Section.SectionTitle>>
Section goal: <<.Section.Description>>
<<if .PriorSections>>Earlier sections already cover: <<.PriorSections>>
<<end>>
Source data for this section (cite with [SOURCE:index] markers):
<<.SectionData>>

Rules:
- Cite every factual claim with its [SOURCE:index] marker.
- Use only the indexes listed above; never invent indexes.
- Do not repeat content from earlier sections.
- Do not write the section title; start with the body text.
<<if .ChartGuideline>>- If a chart would help (<<.ChartGuideline>>), place the
  literal marker <<.ChartMarker>> where it belongs.
<<end>>`

const chartTemplateText = `Build one chart for the report section below.

Section title: <<.SectionTitle>>
Section text so far:
<<.SectionText>>

Guideline: <<.Guideline>>

Respond with JSON only:
{"type": "line|bar|pie", "title": "...", "labels": ["..."], "series": [1.0]}`

func renderPlannerPrompt(params PlannerPromptParams) (string, error) {
	params.RelationPreviews = strings.Join(params.Probe.RelationPreviews, "; ")
	return renderTemplate(plannerTmpl, params)
}

func renderStructurePrompt(params StructurePromptParams) (string, error) {
	return renderTemplate(structureTmpl, params)
}

func renderSectionPrompt(params SectionPromptParams) (string, error) {
	return renderTemplate(sectionTmpl, params)
}

func renderChartPrompt(params ChartPromptParams) (string, error) {
	return renderTemplate(chartTmpl, params)
}

func renderTemplate(tmpl *template.Template, params any) (string, error) {
	var builder strings.Builder
	if err := tmpl.Execute(&builder, params); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return builder.String(), nil
}

// buildDataDigest renders dictionary entries for a prompt, trimming each
// excerpt to the prompt budget. Trimming here is a presentation concern; the
// dictionary itself always holds full content.
func buildDataDigest(dict map[int]DictEntry, indexes []int) string {
	var builder strings.Builder
	for _, index := range indexes {
		entry, ok := dict[index]
		if !ok {
			continue
		}
		builder.WriteString(fmt.Sprintf("[%d] %s | %s | %s\n", index, entry.Title, entry.Source, trimToRunes(entry.Content, promptDataBudgetRunes)))
	}
	return strings.TrimRight(builder.String(), "\n")
}

func trimToRunes(raw string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(raw)
	if len(runes) <= maxRunes {
		return raw
	}
	return string(runes[:maxRunes])
}

package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// LLMChartBuilder asks the model for a chart definition derived from the
// section text generated so far.
type LLMChartBuilder struct {
	completer Completer
}

func NewLLMChartBuilder(completer Completer) LLMChartBuilder {
	return LLMChartBuilder{completer: completer}
}

func (b LLMChartBuilder) BuildChart(ctx context.Context, section ReportSection, sectionText string, state *SessionState) (ChartPayload, error) {
	if b.completer == nil {
		return ChartPayload{}, errors.New("chart completer unavailable")
	}

	prompt, err := renderChartPrompt(ChartPromptParams{
		SectionTitle: section.SectionTitle,
		SectionText:  trimToRunes(sectionText, 3000),
		Guideline:    state.Persona.ChartGuidelines,
	})
	if err != nil {
		return ChartPayload{}, err
	}

	raw, err := b.completer.Complete(ctx, prompt)
	if err != nil {
		return ChartPayload{}, err
	}
	return parseChart(raw)
}

func parseChart(raw string) (ChartPayload, error) {
	jsonRaw := extractJSONBlock(raw)
	if jsonRaw == "" {
		return ChartPayload{}, errors.New("chart response did not include json")
	}
	var chart ChartPayload
	if err := json.NewDecoder(strings.NewReader(jsonRaw)).Decode(&chart); err != nil {
		return ChartPayload{}, fmt.Errorf("decode chart: %w", err)
	}
	switch chart.Type {
	case "line", "bar", "pie":
	default:
		return ChartPayload{}, fmt.Errorf("unsupported chart type %q", chart.Type)
	}
	if len(chart.Labels) == 0 || len(chart.Labels) != len(chart.Series) {
		return ChartPayload{}, errors.New("chart labels and series must align")
	}
	return chart, nil
}

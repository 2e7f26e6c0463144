package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Structurer designs the section list in one model call. Unlike the planner
// there is no deterministic fallback: a report cannot proceed without at
// least one section, so malformed output is terminal for the query.
type Structurer struct {
	completer Completer
}

func NewStructurer(completer Completer) Structurer {
	return Structurer{completer: completer}
}

func (s Structurer) DesignStructure(ctx context.Context, state *SessionState, dict map[int]DictEntry) ([]ReportSection, error) {
	if s.completer == nil {
		return nil, StructureDesignError{Cause: errors.New("structurer completer unavailable")}
	}

	prompt, err := renderStructurePrompt(StructurePromptParams{
		Query:      state.OriginalQuery,
		Persona:    state.Persona,
		DataDigest: buildDataDigest(dict, SelectedOrdered(state)),
	})
	if err != nil {
		return nil, StructureDesignError{Cause: err}
	}

	raw, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, StructureDesignError{Cause: err}
	}

	sections, err := parseSections(raw, dict)
	if err != nil {
		return nil, StructureDesignError{Cause: err}
	}
	return sections, nil
}

func parseSections(raw string, dict map[int]DictEntry) ([]ReportSection, error) {
	jsonRaw := extractJSONBlock(raw)
	if jsonRaw == "" {
		return nil, errors.New("structure response did not include json")
	}

	var parsed struct {
		Sections []ReportSection `json:"sections"`
	}
	if err := json.NewDecoder(strings.NewReader(jsonRaw)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode structure: %w", err)
	}

	sections := make([]ReportSection, 0, len(parsed.Sections))
	for _, section := range parsed.Sections {
		section.SectionTitle = strings.TrimSpace(section.SectionTitle)
		section.Description = strings.TrimSpace(section.Description)
		if section.SectionTitle == "" {
			continue
		}
		if section.ContentType == "" {
			section.ContentType = "text"
		}
		// Claimed indexes outside the dictionary are dropped; an empty claim
		// set is legal (the section writes from the query alone).
		valid := section.UseIndexes[:0]
		for _, index := range section.UseIndexes {
			if _, ok := dict[index]; ok {
				valid = append(valid, index)
			}
		}
		section.UseIndexes = valid
		sections = append(sections, section)
	}
	if len(sections) == 0 {
		return nil, errors.New("structure contained no usable sections")
	}
	return sections, nil
}

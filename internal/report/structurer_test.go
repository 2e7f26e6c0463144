package report

import (
	"context"
	"errors"
	"testing"

	"reportengine/backend/internal/tools"
)

func dictOf(contents ...string) map[int]DictEntry {
	collected := make([]tools.SearchResult, 0, len(contents))
	for _, content := range contents {
		collected = append(collected, tools.SearchResult{Source: tools.WebSearch, Title: content, Content: content})
	}
	return BuildDataDictionary(collected)
}

func TestParseSectionsDropsInvalidIndexes(t *testing.T) {
	raw := `{"sections": [
		{"section_title": "Overview", "description": "d", "use_indexes": [0, 7, 1]}
	]}`
	sections, err := parseSections(raw, dictOf("a", "b"))
	if err != nil {
		t.Fatalf("parse sections: %v", err)
	}
	if len(sections[0].UseIndexes) != 2 || sections[0].UseIndexes[0] != 0 || sections[0].UseIndexes[1] != 1 {
		t.Fatalf("use_indexes = %v, want [0 1]", sections[0].UseIndexes)
	}
	if sections[0].ContentType != "text" {
		t.Fatalf("content type default = %q", sections[0].ContentType)
	}
}

func TestParseSectionsRequiresAtLeastOne(t *testing.T) {
	if _, err := parseSections(`{"sections": []}`, dictOf("a")); err == nil {
		t.Fatal("expected error for empty section list")
	}
	if _, err := parseSections(`{"sections": [{"section_title": "   "}]}`, dictOf("a")); err == nil {
		t.Fatal("expected error when every section is unusable")
	}
}

func TestDesignStructureWrapsFailures(t *testing.T) {
	state := NewSessionState("r", "q", GetPersona("general"))

	for name, completer := range map[string]Completer{
		"model error":      stubCompleter{err: errors.New("down")},
		"malformed output": stubCompleter{response: "not json"},
	} {
		_, err := NewStructurer(completer).DesignStructure(context.Background(), state, dictOf("a"))
		var structureErr StructureDesignError
		if !errors.As(err, &structureErr) {
			t.Fatalf("%s: err = %v, want StructureDesignError", name, err)
		}
	}
}

func TestBuildDataDictionaryIsPositional(t *testing.T) {
	dict := dictOf("first", "second", "third")
	if len(dict) != 3 {
		t.Fatalf("dict size = %d", len(dict))
	}
	for i, want := range []string{"first", "second", "third"} {
		if dict[i].Title != want {
			t.Fatalf("dict[%d].Title = %q, want %q", i, dict[i].Title, want)
		}
	}

	// Rebuilding from the same collected list yields identical indexes.
	again := dictOf("first", "second", "third")
	for i := range dict {
		if dict[i] != again[i] {
			t.Fatalf("dictionary not stable at index %d", i)
		}
	}
}

func TestGetPersonaDefaults(t *testing.T) {
	if got := GetPersona("no-such-persona").Name; got != "general" {
		t.Fatalf("default persona = %q", got)
	}
	if got := GetPersona("procurement").Name; got != "procurement" {
		t.Fatalf("named persona = %q", got)
	}
	if len(PersonaNames()) < 4 {
		t.Fatalf("personas = %v", PersonaNames())
	}
}

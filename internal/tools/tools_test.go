package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"reportengine/backend/internal/config"
)

type staticTool struct {
	name    Name
	results []SearchResult
}

func (s staticTool) Name() Name { return s.name }

func (s staticTool) Search(_ context.Context, _ string) ([]SearchResult, error) {
	return s.results, nil
}

func TestParseName(t *testing.T) {
	name, err := ParseName(" Graph_DB ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if name != GraphDB {
		t.Fatalf("expected graph_db, got %s", name)
	}
	if _, err := ParseName("sparql"); err == nil {
		t.Fatal("expected error for unknown tool name")
	}
}

func TestRegistryLookupDispatch(t *testing.T) {
	registry := Registry{
		Web:      staticTool{name: WebSearch},
		Vector:   staticTool{name: VectorDB},
		Graph:    staticTool{name: GraphDB},
		Rel:      staticTool{name: RDB},
		Academic: staticTool{name: AcademicSearch},
	}
	for _, name := range allNames {
		tool, err := registry.Lookup(name)
		if err != nil {
			t.Fatalf("lookup %s: %v", name, err)
		}
		if tool.Name() != name {
			t.Fatalf("expected %s, got %s", name, tool.Name())
		}
	}
}

func TestRegistryLookupUnconfigured(t *testing.T) {
	registry := Registry{Web: staticTool{name: WebSearch}}
	if _, err := registry.Lookup(GraphDB); err == nil {
		t.Fatal("expected error for unconfigured tool")
	}
}

func TestWebClientSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "secret" {
			t.Errorf("missing subscription token")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"url":"https://example.com/a","title":"A","description":"alpha result"},
			{"url":"https://example.com/a","title":"A dup","description":"dup"},
			{"url":"https://example.com/b","title":"","description":"<b>beta</b> result"}
		]}}`))
	}))
	defer server.Close()

	client := NewWebClient(config.Config{
		WebSearchBaseURL:  server.URL,
		WebSearchAPIKey:   "secret",
		MaxResultsPerTool: 5,
	}, server.Client())

	results, err := client.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 deduped results, got %d", len(results))
	}
	if results[0].Source != WebSearch || results[0].Title != "A" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Content != "beta result" {
		t.Fatalf("expected markup stripped, got %q", results[1].Content)
	}
	if results[1].Title != "https://example.com/b" {
		t.Fatalf("expected URL fallback title, got %q", results[1].Title)
	}
}

func TestWebClientMissingKey(t *testing.T) {
	client := NewWebClient(config.Config{WebSearchBaseURL: "http://localhost:0"}, nil)
	if _, err := client.Search(context.Background(), "query"); err != ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGraphProbeDegradesToAllFalse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewGraphClient(config.Config{GraphStoreURL: server.URL}, server.Client())
	signals := client.Probe(context.Background(), "anything")
	if signals.Any() {
		t.Fatalf("expected all-false signals, got %+v", signals)
	}
}

func TestGraphSearchAndHints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"relations":[
			{"subject":"Oolong","predicate":"originates_from","object":"Fujian","detail":"Oolong tea originates from Fujian province."},
			{"subject":"Oolong","predicate":"contains","object":"Catechin","score":0.9}
		]}`))
	}))
	defer server.Close()

	client := NewGraphClient(config.Config{GraphStoreURL: server.URL, MaxResultsPerTool: 5}, server.Client())
	results, err := client.Search(context.Background(), "oolong")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 relations, got %d", len(results))
	}
	if results[0].Score != defaultGraphScore {
		t.Fatalf("expected default graph score, got %f", results[0].Score)
	}
	if results[1].Score != 0.9 {
		t.Fatalf("expected explicit score, got %f", results[1].Score)
	}

	hints := ExtractHints(results)
	if len(hints) != 3 {
		t.Fatalf("expected 3 unique hints, got %v", hints)
	}
}

func TestAcademicClientParsesAtom(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1234.5678</id>
    <title>Tea  polyphenol
 effects</title>
    <summary>A study of polyphenols.</summary>
    <published>2024-03-01T00:00:00Z</published>
    <author><name>A. Author</name></author>
    <link href="http://arxiv.org/abs/1234.5678v1" rel="alternate"/>
  </entry>
</feed>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(feed))
	}))
	defer server.Close()

	client := NewAcademicClient(config.Config{AcademicBaseURL: server.URL, MaxResultsPerTool: 5}, server.Client())
	results, err := client.Search(context.Background(), "tea polyphenols")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(results))
	}
	if results[0].Title != "Tea polyphenol effects" {
		t.Fatalf("expected whitespace-normalized title, got %q", results[0].Title)
	}
	if results[0].URL != "http://arxiv.org/abs/1234.5678v1" {
		t.Fatalf("expected alternate link, got %q", results[0].URL)
	}
	if results[0].Metadata["authors"] != "A. Author" {
		t.Fatalf("unexpected authors: %q", results[0].Metadata["authors"])
	}
}

func TestKeywordTerms(t *testing.T) {
	terms := keywordTerms("Average price of green tea, 2024 price?")
	want := map[string]bool{"average": true, "price": true, "green": true, "tea": true, "2024": true}
	if len(terms) != len(want) {
		t.Fatalf("unexpected terms: %v", terms)
	}
	for _, term := range terms {
		if !want[term] {
			t.Fatalf("unexpected term %q", term)
		}
	}
}

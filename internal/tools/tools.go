package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Name identifies a retrieval tool. The set is closed: adding a tool means
// adding one constant here, one adapter, and one case in Registry.Lookup.
type Name string

const (
	WebSearch      Name = "web_search"
	VectorDB       Name = "vector_db"
	GraphDB        Name = "graph_db"
	RDB            Name = "rdb"
	AcademicSearch Name = "academic_search"
)

var allNames = []Name{WebSearch, VectorDB, GraphDB, RDB, AcademicSearch}

// ParseName resolves a tool name string emitted by the planner model.
func ParseName(raw string) (Name, error) {
	trimmed := Name(strings.ToLower(strings.TrimSpace(raw)))
	for _, name := range allNames {
		if trimmed == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown tool name %q", raw)
}

// SearchResult is the standard record every retrieval tool produces. Content
// is never truncated here; trimming for prompt budgets happens at the prompt
// builder, because hallucination checking needs the full text downstream.
type SearchResult struct {
	Source    Name              `json:"source"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	URL       string            `json:"url,omitempty"`
	Score     float64           `json:"score"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Tool is a retrieval capability. "No results" returns an empty slice, never
// an error; errors are reserved for genuine infrastructure failure.
type Tool interface {
	Name() Name
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Registry binds each tool name to its adapter. Unconfigured adapters are
// nil; looking one up reports an error the gatherer converts into an empty
// result set for that task.
type Registry struct {
	Web      Tool
	Vector   Tool
	Graph    Tool
	Rel      Tool
	Academic Tool
}

func (r Registry) Lookup(name Name) (Tool, error) {
	var tool Tool
	switch name {
	case WebSearch:
		tool = r.Web
	case VectorDB:
		tool = r.Vector
	case GraphDB:
		tool = r.Graph
	case RDB:
		tool = r.Rel
	case AcademicSearch:
		tool = r.Academic
	default:
		return nil, fmt.Errorf("unknown tool name %q", name)
	}
	if tool == nil {
		return nil, fmt.Errorf("tool %s is not configured", name)
	}
	return tool, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

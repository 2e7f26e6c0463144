package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reportengine/backend/internal/tools"
)

// ErrAborted is the cooperative-termination path: a run observed its abort
// signal at a checkpoint and stopped. It is not a failure.
var ErrAborted = errors.New("run aborted")

// StructureDesignError is terminal for a query: without at least one valid
// section there is no safe default report structure to fall back to.
type StructureDesignError struct {
	Cause error
}

func (e StructureDesignError) Error() string {
	return fmt.Sprintf("could not design report structure: %v", e.Cause)
}

func (e StructureDesignError) Unwrap() error { return e.Cause }

// Completer is the non-streaming model capability injected into the planner,
// structurer, and chart builder.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StreamCompleter is the streaming model capability driving section prose.
type StreamCompleter interface {
	Stream(ctx context.Context, prompt string, onDelta func(string) error) error
}

// Plan is the two-level execution schedule: sequential steps of parallel
// tool-bound sub-questions.
type Plan struct {
	Title          string `json:"title"`
	Reasoning      string `json:"reasoning"`
	ExecutionSteps []Step `json:"execution_steps"`
}

type Step struct {
	Step         int           `json:"step"`
	Reasoning    string        `json:"reasoning"`
	SubQuestions []SubQuestion `json:"sub_questions"`
}

type SubQuestion struct {
	Question string     `json:"question"`
	Tool     tools.Name `json:"tool"`
}

// RedundantTaskCount counts sub-questions that repeat an earlier tool-query
// pair anywhere in the plan. Case and surrounding whitespace are ignored.
func (p Plan) RedundantTaskCount() int {
	seen := make(map[string]struct{})
	redundant := 0
	for _, step := range p.ExecutionSteps {
		for _, sq := range step.SubQuestions {
			key := string(sq.Tool) + "\x00" + strings.ToLower(strings.TrimSpace(sq.Question))
			if _, dup := seen[key]; dup {
				redundant++
				continue
			}
			seen[key] = struct{}{}
		}
	}
	return redundant
}

// ReportSection is one planned unit of the final report. UseIndexes lists
// the data-dictionary entries the section is permitted to cite; reuse of an
// index across sections is legal.
type ReportSection struct {
	SectionTitle string `json:"section_title"`
	Description  string `json:"description"`
	ContentType  string `json:"content_type"`
	UseIndexes   []int  `json:"use_indexes"`
}

// DictEntry is the flattened view of one collected result, addressed by its
// permanent index in the session's collected list.
type DictEntry struct {
	Title   string     `json:"title"`
	Content string     `json:"content"`
	Source  tools.Name `json:"source"`
	URL     string     `json:"url,omitempty"`
	Score   float64    `json:"score"`
	Type    string     `json:"type,omitempty"`
}

// SessionState is the mutable state threaded through one report run. It is
// owned by that run: the executor mutates it, the structurer and streamer
// read it, and no two components touch it concurrently.
type SessionState struct {
	RunID           string
	OriginalQuery   string
	Persona         Persona
	Plan            Plan
	StepContext     map[int]string
	Collected       []tools.SearchResult
	SelectedIndexes map[int]struct{}
	ChartCounter    int
	StartedAt       time.Time
}

func NewSessionState(runID, query string, persona Persona) *SessionState {
	return &SessionState{
		RunID:           runID,
		OriginalQuery:   query,
		Persona:         persona,
		StepContext:     make(map[int]string),
		SelectedIndexes: make(map[int]struct{}),
		StartedAt:       time.Now().UTC(),
	}
}

// ChartPayload is the side-channel chart emitted when a section requests a
// visualization.
type ChartPayload struct {
	ID     int       `json:"id"`
	Type   string    `json:"type"`
	Title  string    `json:"title"`
	Labels []string  `json:"labels"`
	Series []float64 `json:"series"`
}

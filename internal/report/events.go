package report

import "reportengine/backend/internal/tools"

type EventType string

const (
	EventStatus             EventType = "status"
	EventPlan               EventType = "plan"
	EventSearchResults      EventType = "search_results"
	EventCollectionComplete EventType = "collection_complete"
	EventSectionStart       EventType = "section_start"
	EventSectionEnd         EventType = "section_end"
	EventContent            EventType = "content"
	EventChart              EventType = "chart"
	EventAbort              EventType = "abort"
	EventError              EventType = "error"
	EventFinalComplete      EventType = "final_complete"
)

// Event is the side-channel progress stream a run emits. The transport layer
// frames these; only names and payload shapes are part of the core contract.
type Event struct {
	Type         EventType            `json:"type"`
	Message      string               `json:"message,omitempty"`
	Step         int                  `json:"step,omitempty"`
	Tool         tools.Name           `json:"tool,omitempty"`
	Query        string               `json:"query,omitempty"`
	Results      []tools.SearchResult `json:"results,omitempty"`
	Plan         *Plan                `json:"plan,omitempty"`
	SectionTitle string               `json:"sectionTitle,omitempty"`
	Chunk        string               `json:"chunk,omitempty"`
	Chart        *ChartPayload        `json:"chart,omitempty"`
	Collected    int                  `json:"collected,omitempty"`
}

func emitEvent(onEvent func(Event), event Event) {
	if onEvent == nil {
		return
	}
	onEvent(event)
}

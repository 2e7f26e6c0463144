package report

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// ChartMarker is the literal in-text trigger a section writer emits where a
// chart belongs.
const ChartMarker = "[CHART_PLACEHOLDER]"

const defaultSectionChunkBuffer = 64

// ChartBuilder turns a section's accumulated text into a chart payload. The
// call is synchronous; it runs inside the consumer while the section's
// producer keeps generating behind the bounded channel.
type ChartBuilder interface {
	BuildChart(ctx context.Context, section ReportSection, sectionText string, state *SessionState) (ChartPayload, error)
}

// Streamer generates every section concurrently while delivering chunks to
// the caller strictly in declared section order. Producers write into one
// bounded channel per section and close it as the completion sentinel; a
// producer that falls more than the buffer ahead of the consumer blocks.
type Streamer struct {
	llm    StreamCompleter
	charts ChartBuilder
	abort  *AbortRegistry
	buffer int
}

func NewStreamer(llm StreamCompleter, charts ChartBuilder, abort *AbortRegistry) Streamer {
	return Streamer{
		llm:    llm,
		charts: charts,
		abort:  abort,
		buffer: defaultSectionChunkBuffer,
	}
}

// StreamSections fans out one producer per section immediately, then
// consumes section channels in order. It returns the assembled report text.
// One section failing degrades only that section; an abort observed before a
// section's emission loop stops forwarding and returns ErrAborted with the
// text emitted so far.
func (s Streamer) StreamSections(ctx context.Context, state *SessionState, sections []ReportSection, dict map[int]DictEntry, onEvent func(Event)) (string, error) {
	channels := make([]chan string, len(sections))
	for i := range sections {
		channels[i] = make(chan string, s.buffer)
		go s.produceSection(ctx, state, sections, i, dict, channels[i])
	}

	var report strings.Builder
	if title := strings.TrimSpace(state.Plan.Title); title != "" {
		heading := "# " + title + "\n"
		report.WriteString(heading)
		emitEvent(onEvent, Event{Type: EventContent, Chunk: heading})
	}

	for i, section := range sections {
		if s.abort != nil && s.abort.IsRequested(state.RunID) {
			emitEvent(onEvent, Event{Type: EventAbort, Message: fmt.Sprintf("run aborted before section %q", section.SectionTitle)})
			return report.String(), ErrAborted
		}

		emitEvent(onEvent, Event{Type: EventSectionStart, SectionTitle: section.SectionTitle})
		heading := "\n## " + section.SectionTitle + "\n\n"
		report.WriteString(heading)
		emitEvent(onEvent, Event{Type: EventContent, Chunk: heading})

		sectionStart := report.Len()
		pending := ""
		flush := func(text string) {
			if text == "" {
				return
			}
			report.WriteString(text)
			emitEvent(onEvent, Event{Type: EventContent, Chunk: text})
		}

		for chunk := range channels[i] {
			pending += chunk
			for {
				markerAt := strings.Index(pending, ChartMarker)
				if markerAt >= 0 {
					flush(pending[:markerAt])
					pending = pending[markerAt+len(ChartMarker):]
					s.emitChart(ctx, state, section, report.String()[sectionStart:], flush, onEvent)
					continue
				}
				// Hold back any suffix that could still grow into the marker
				// across the next chunk boundary.
				safe := len(pending) - partialMarkerSuffix(pending)
				flush(pending[:safe])
				pending = pending[safe:]
				break
			}
		}
		// Channel closed: a trailing partial marker can no longer complete.
		flush(pending)

		emitEvent(onEvent, Event{Type: EventSectionEnd, SectionTitle: section.SectionTitle})
	}

	return report.String(), nil
}

func (s Streamer) produceSection(ctx context.Context, state *SessionState, sections []ReportSection, index int, dict map[int]DictEntry, ch chan<- string) {
	defer close(ch)

	section := sections[index]
	priorTitles := make([]string, 0, index)
	for _, prior := range sections[:index] {
		priorTitles = append(priorTitles, prior.SectionTitle)
	}

	prompt, err := renderSectionPrompt(SectionPromptParams{
		Query:          state.OriginalQuery,
		Persona:        state.Persona,
		Section:        section,
		SectionData:    buildDataDigest(dict, section.UseIndexes),
		PriorSections:  strings.Join(priorTitles, "; "),
		ChartMarker:    ChartMarker,
		ChartGuideline: state.Persona.ChartGuidelines,
	})
	if err == nil && s.llm == nil {
		err = fmt.Errorf("section stream completer unavailable")
	}
	if err == nil {
		err = s.llm.Stream(ctx, prompt, func(delta string) error {
			return sendChunk(ctx, ch, delta)
		})
	}
	if err != nil && ctx.Err() == nil {
		log.Printf("section generation failed: run_id=%s section=%q err=%v", state.RunID, section.SectionTitle, err)
		// The failure stays inside this section as an inline message; the
		// close below is the sentinel either way.
		_ = sendChunk(ctx, ch, fmt.Sprintf("> This section could not be generated: %v\n", err))
	}
}

func sendChunk(ctx context.Context, ch chan<- string, chunk string) error {
	select {
	case ch <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Streamer) emitChart(ctx context.Context, state *SessionState, section ReportSection, sectionText string, flush func(string), onEvent func(Event)) {
	if s.charts == nil {
		return
	}
	chart, err := s.charts.BuildChart(ctx, section, sectionText, state)
	if err != nil {
		log.Printf("chart build failed: run_id=%s section=%q err=%v", state.RunID, section.SectionTitle, err)
		return
	}
	state.ChartCounter++
	chart.ID = state.ChartCounter
	flush(fmt.Sprintf("[CHART:%d]", chart.ID))
	emitEvent(onEvent, Event{Type: EventChart, SectionTitle: section.SectionTitle, Chart: &chart})
}

// partialMarkerSuffix returns the length of the longest suffix of text that
// is a proper prefix of ChartMarker.
func partialMarkerSuffix(text string) int {
	maxLen := len(ChartMarker) - 1
	if len(text) < maxLen {
		maxLen = len(text)
	}
	for length := maxLen; length > 0; length-- {
		if strings.HasPrefix(ChartMarker, text[len(text)-length:]) {
			return length
		}
	}
	return 0
}

package eval

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"reportengine/backend/internal/tools"
)

const (
	headerFloor  = 3
	headerTarget = 6

	minReportRunes = 500

	schemaSimilarityThreshold = 0.65
)

var (
	headerPattern   = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	citationPattern = regexp.MustCompile(`\[SOURCE:(\d+(?:,\d+)*)\]`)
)

// Similarity scores how close two short texts are on a 0..1 scale. It is
// an optional capability of the engine; schema matching degrades to
// substring comparison when none is wired.
type Similarity interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

func detectHeaders(reportText string) []string {
	matches := headerPattern.FindAllStringSubmatch(reportText, -1)
	headers := make([]string, 0, len(matches))
	for _, m := range matches {
		headers = append(headers, strings.TrimSpace(m[1]))
	}
	return headers
}

// sectionRate is 1.0 at or above the target header count, interpolates
// linearly between the floor and the target, and halves the per-header
// credit below the floor.
func sectionRate(headers int) float64 {
	switch {
	case headers >= headerTarget:
		return 1.0
	case headers <= headerFloor:
		return float64(headers) / float64(headerTarget) * 0.5
	default:
		return 0.25 + 0.25*float64(headers-headerFloor)
	}
}

func schemaRate(ctx context.Context, sim Similarity, fields, headers []string) float64 {
	if len(fields) == 0 {
		return 1.0
	}
	matched := 0
	for _, field := range fields {
		if schemaFieldMatches(ctx, sim, field, headers) {
			matched++
		}
	}
	return float64(matched) / float64(len(fields))
}

func schemaFieldMatches(ctx context.Context, sim Similarity, field string, headers []string) bool {
	needle := strings.ToLower(field)
	for _, header := range headers {
		if strings.Contains(strings.ToLower(header), needle) {
			return true
		}
		if sim == nil {
			continue
		}
		score, err := sim.Similarity(ctx, field, header)
		if err != nil {
			continue
		}
		if score >= schemaSimilarityThreshold {
			return true
		}
	}
	return false
}

func scoreCompleteness(ctx context.Context, sim Similarity, reportText string, schemaFields []string) CompletenessMetrics {
	headers := detectHeaders(reportText)
	section := sectionRate(len(headers))
	schema := schemaRate(ctx, sim, schemaFields, headers)
	rate := 0.60*section + 0.40*schema
	return CompletenessMetrics{
		SectionRate:     section,
		SchemaRate:      schema,
		Rate:            rate,
		Score:           rate * 10,
		DetectedHeaders: len(headers),
	}
}

var structuralMarkers = []string{"introduction", "overview", "conclusion", "summary", "sources", "references"}

func scoreTaskSuccess(reportText string, requirements []string) TaskSuccessMetrics {
	lengthPart := 1.0
	if runes := len([]rune(reportText)); runes < minReportRunes {
		lengthPart = float64(runes) / float64(minReportRunes)
	}

	headers := strings.ToLower(strings.Join(detectHeaders(reportText), "\n"))
	found := 0
	for _, marker := range structuralMarkers {
		if strings.Contains(headers, marker) {
			found++
		}
	}
	structurePart := 1.0
	if found < 2 {
		structurePart = float64(found) / 2.0
	}

	requirementPart := 1.0
	if len(requirements) > 0 {
		body := strings.ToLower(reportText)
		covered := 0
		for _, req := range requirements {
			if strings.Contains(body, strings.ToLower(req)) {
				covered++
			}
		}
		requirementPart = float64(covered) / float64(len(requirements))
	}

	pct := 100 * (0.20*lengthPart + 0.30*structurePart + 0.50*requirementPart)
	status := TaskFailure
	switch {
	case pct >= 90:
		status = TaskCompleteSuccess
	case pct >= 50:
		status = TaskPartialSuccess
	}
	return TaskSuccessMetrics{Status: status, CompletionPercent: pct, Score: pct / 10}
}

func scoreEfficiency(executionSeconds float64, redundantSteps, tokensUsed, costMicros int) EfficiencyMetrics {
	score := 10.0

	switch {
	case executionSeconds > 120:
		score -= 3.0
	case executionSeconds > 60:
		score -= 1.5
	}
	switch {
	case redundantSteps >= 6:
		score -= 2.0
	case redundantSteps >= 3:
		score -= 1.0
	}
	switch {
	case tokensUsed >= 100_000:
		score -= 2.0
	case tokensUsed >= 50_000:
		score -= 1.0
	}
	switch {
	case costMicros > 1_000_000:
		score -= 2.0
	case costMicros > 500_000:
		score -= 1.0
	}

	if score < 0 {
		score = 0
	}
	return EfficiencyMetrics{
		Score:            score,
		ExecutionSeconds: executionSeconds,
		RedundantSteps:   redundantSteps,
		TokensUsed:       tokensUsed,
		CostMicros:       costMicros,
	}
}

func scoreSourceQuality(sources []tools.SearchResult) SourceQualityMetrics {
	if len(sources) == 0 {
		return SourceQualityMetrics{}
	}
	sum := 0.0
	types := map[string]struct{}{}
	for _, src := range sources {
		sum += src.Score
		key := string(src.Source)
		if docType, ok := src.Metadata["doc_type"]; ok && docType != "" {
			key = key + "/" + docType
		}
		types[key] = struct{}{}
	}
	mean := sum / float64(len(sources))
	diversity := float64(len(types)) / 8.0
	if diversity > 1 {
		diversity = 1
	}
	return SourceQualityMetrics{
		Score:         0.5*mean*10 + 0.5*diversity*10,
		MeanRelevance: mean,
		DistinctTypes: len(types),
	}
}

// parseCitations returns every index referenced by a [SOURCE:i,j] marker,
// in order of appearance, and the count of indexes that fall outside the
// data dictionary.
func parseCitations(reportText string, sourceCount int) (indexes []int, invalid int) {
	for _, m := range citationPattern.FindAllStringSubmatch(reportText, -1) {
		for _, raw := range strings.Split(m[1], ",") {
			idx, err := strconv.Atoi(raw)
			if err != nil {
				invalid++
				continue
			}
			indexes = append(indexes, idx)
			if idx < 0 || idx >= sourceCount {
				invalid++
			}
		}
	}
	return indexes, invalid
}

func buildContentMetrics(reportText string, sourceCount int) ContentMetrics {
	indexes, invalid := parseCitations(reportText, sourceCount)
	return ContentMetrics{
		WordCount:        len(strings.Fields(reportText)),
		SectionCount:     len(detectHeaders(reportText)),
		CitationCount:    len(indexes),
		InvalidCitations: invalid,
	}
}

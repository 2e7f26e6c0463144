package report

import "reportengine/backend/internal/tools"

// BuildDataDictionary maps each collected result to its permanent index. The
// mapping is a pure function of list order: rebuilding it from the same list
// always yields identical entries, which is what keeps citation markers
// stable across the structurer, streamer, and evaluator.
func BuildDataDictionary(collected []tools.SearchResult) map[int]DictEntry {
	dict := make(map[int]DictEntry, len(collected))
	for i, result := range collected {
		dict[i] = DictEntry{
			Title:   result.Title,
			Content: result.Content,
			Source:  result.Source,
			URL:     result.URL,
			Score:   result.Score,
			Type:    result.Metadata["doc_type"],
		}
	}
	return dict
}

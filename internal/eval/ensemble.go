package eval

import "sort"

const (
	disagreementSpread = 3.0
	maxExamples        = 10
	neutralScore       = 5.0
)

// reconcile merges one scalar per judge into a single value. The weighted
// average wins when the judges roughly agree; a spread of 3.0 points or
// more means the panel split, and the median is more robust than any
// average an outlier can drag around.
func reconcile(values, weights []float64) (score float64, disagreement bool) {
	if len(values) == 0 {
		return neutralScore, false
	}
	if spread(values) >= disagreementSpread {
		return median(values), true
	}
	return weightedMean(values, weights), false
}

func weightedMean(values, weights []float64) float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		total = float64(len(values))
		for i := range weights {
			weights[i] = 1
		}
	}
	sum := 0.0
	for i, v := range values {
		sum += v * weights[i] / total
	}
	return sum
}

func spread(values []float64) float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func medianInt(values []int) int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func minFloat(values []float64) float64 {
	lo := values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
	}
	return lo
}

// mergeExamples pools flagged statements across judges, drops duplicate
// statements, and caps the list so one chatty judge cannot flood the
// result.
func mergeExamples(perJudge [][]FlaggedStatement) []FlaggedStatement {
	seen := map[string]struct{}{}
	var merged []FlaggedStatement
	for _, examples := range perJudge {
		for _, ex := range examples {
			if _, ok := seen[ex.Statement]; ok {
				continue
			}
			seen[ex.Statement] = struct{}{}
			merged = append(merged, ex)
			if len(merged) == maxExamples {
				return merged
			}
		}
	}
	return merged
}

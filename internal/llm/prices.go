package llm

import (
	"math"
	"strings"
)

// ModelPrice holds per-token prices in micro-USD. Micros are used end to end
// so small per-call amounts survive integer arithmetic.
type ModelPrice struct {
	PromptMicrosPerToken     float64
	CompletionMicrosPerToken float64
}

// PriceTable maps model ids to their token prices. Unknown models price at
// the fallback entry so cost estimation never fails a run.
type PriceTable struct {
	prices   map[string]ModelPrice
	fallback ModelPrice
}

func DefaultPriceTable() PriceTable {
	return PriceTable{
		prices: map[string]ModelPrice{
			"openai/gpt-4o":                  {PromptMicrosPerToken: 2.5, CompletionMicrosPerToken: 10},
			"openai/gpt-4o-mini":             {PromptMicrosPerToken: 0.15, CompletionMicrosPerToken: 0.6},
			"anthropic/claude-3.5-haiku":     {PromptMicrosPerToken: 0.8, CompletionMicrosPerToken: 4},
			"google/gemini-2.0-flash-001":    {PromptMicrosPerToken: 0.1, CompletionMicrosPerToken: 0.4},
			"meta-llama/llama-3.1-70b":       {PromptMicrosPerToken: 0.3, CompletionMicrosPerToken: 0.3},
			"mistralai/mistral-small-latest": {PromptMicrosPerToken: 0.1, CompletionMicrosPerToken: 0.3},
		},
		fallback: ModelPrice{PromptMicrosPerToken: 1, CompletionMicrosPerToken: 3},
	}
}

func (t PriceTable) Lookup(model string) ModelPrice {
	if price, ok := t.prices[strings.TrimSpace(model)]; ok {
		return price
	}
	return t.fallback
}

// EstimateCostMicros returns the estimated cost of one call in micro-USD.
func (t PriceTable) EstimateCostMicros(model string, promptTokens, completionTokens int) int {
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	price := t.Lookup(model)
	cost := float64(promptTokens)*price.PromptMicrosPerToken + float64(completionTokens)*price.CompletionMicrosPerToken
	return int(math.Round(cost))
}

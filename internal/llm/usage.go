package llm

import (
	"context"
	"sync"
)

// UsageMeter accumulates token usage and estimated spend across every model
// call made under one run's context. Clients are shared process-wide, so the
// meter travels on the context instead of living on the client, in the
// manner of net/http/httptrace.
type UsageMeter struct {
	mu               sync.Mutex
	prices           PriceTable
	promptTokens     int
	completionTokens int
	costMicros       int
}

func NewUsageMeter() *UsageMeter {
	return &UsageMeter{prices: DefaultPriceTable()}
}

func (m *UsageMeter) record(model string, usage Usage) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens += usage.PromptTokens
	m.completionTokens += usage.CompletionTokens
	m.costMicros += m.prices.EstimateCostMicros(model, usage.PromptTokens, usage.CompletionTokens)
}

// Totals returns the accumulated token count and estimated cost in
// micro-USD.
func (m *UsageMeter) Totals() (tokens, costMicros int) {
	if m == nil {
		return 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promptTokens + m.completionTokens, m.costMicros
}

type usageMeterKey struct{}

// WithUsageMeter returns a context under which every completion records its
// reported token usage into meter.
func WithUsageMeter(ctx context.Context, meter *UsageMeter) context.Context {
	return context.WithValue(ctx, usageMeterKey{}, meter)
}

func meterFrom(ctx context.Context) *UsageMeter {
	meter, _ := ctx.Value(usageMeterKey{}).(*UsageMeter)
	return meter
}

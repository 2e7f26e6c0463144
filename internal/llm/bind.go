package llm

import "context"

// BoundClient fixes a client to one model so pipeline components can consume
// the plain prompt-in/text-out capability without carrying model selection.
type BoundClient struct {
	client Client
	model  string
}

func Bind(client Client, model string) BoundClient {
	return BoundClient{client: client, model: model}
}

func (b BoundClient) Complete(ctx context.Context, prompt string) (string, error) {
	return b.client.Complete(ctx, CompletionRequest{
		Model:    b.model,
		Messages: []Message{{Role: "user", Content: prompt}},
	})
}

// Stream forwards deltas only; token usage is recorded on the context's
// UsageMeter inside the client, so no usage callback is needed here.
func (b BoundClient) Stream(ctx context.Context, prompt string, onDelta func(string) error) error {
	return b.client.Stream(ctx, CompletionRequest{
		Model:    b.model,
		Messages: []Message{{Role: "user", Content: prompt}},
	}, onDelta, nil)
}

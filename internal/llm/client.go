package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"reportengine/backend/internal/config"
)

const maxErrorBodyBytes = 8 * 1024

var ErrMissingAPIKey = errors.New("llm api key is not configured")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type CompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type apiRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

// streamOptions asks the upstream to append a usage chunk to the stream
// before [DONE].
type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u apiUsage) toUsage() Usage {
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *apiUsage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type upstreamStatusError struct {
	statusCode int
	body       string
}

func (e upstreamStatusError) Error() string {
	return fmt.Sprintf("llm upstream returned %d: %s", e.statusCode, e.body)
}

// Client talks to an OpenRouter-compatible chat completion API. It holds a
// ring of up to three credentials; a quota or auth failure on one key moves
// the call to the next before the error is surfaced.
type Client struct {
	apiKeys    []string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	keys := make([]string, 0, len(cfg.LLMAPIKeys))
	for _, key := range cfg.LLMAPIKeys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return Client{
		apiKeys:    keys,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.LLMBaseURL), "/"),
		httpClient: httpClient,
	}
}

// Complete performs a non-streaming completion and returns the full text.
func (c Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	var text string
	err := c.withKeyRotation(func(key string) error {
		var callErr error
		text, callErr = c.completeWithKey(ctx, key, req)
		return callErr
	})
	return text, err
}

// Stream performs a streaming completion, invoking onDelta for every content
// chunk and onUsage once if the upstream reports token usage.
func (c Client) Stream(ctx context.Context, req CompletionRequest, onDelta func(string) error, onUsage func(Usage) error) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	return c.withKeyRotation(func(key string) error {
		return c.streamWithKey(ctx, key, req, onDelta, onUsage)
	})
}

func validateRequest(req CompletionRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("model is required")
	}
	if len(req.Messages) == 0 {
		return errors.New("messages are required")
	}
	return nil
}

func (c Client) withKeyRotation(call func(key string) error) error {
	if len(c.apiKeys) == 0 {
		return ErrMissingAPIKey
	}
	var lastErr error
	for _, key := range c.apiKeys {
		err := call(key)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRotatableError(err) {
			return err
		}
	}
	return lastErr
}

// isRotatableError reports whether the next configured credential should be
// tried. Quota, auth, and payment failures are key-scoped; anything else is
// an upstream problem a different key will not fix.
func isRotatableError(err error) bool {
	var statusErr upstreamStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.statusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusTooManyRequests:
		return true
	}
	return false
}

func (c Client) completeWithKey(ctx context.Context, key string, req CompletionRequest) (string, error) {
	payload, err := json.Marshal(apiRequest{
		Model:    strings.TrimSpace(req.Model),
		Messages: req.Messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	resp, err := c.post(ctx, key, payload, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", upstreamStatusError{statusCode: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return "", errors.New(strings.TrimSpace(parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("completion response had no choices")
	}
	if parsed.Usage != nil {
		meterFrom(ctx).record(req.Model, parsed.Usage.toUsage())
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c Client) streamWithKey(ctx context.Context, key string, req CompletionRequest, onDelta func(string) error, onUsage func(Usage) error) error {
	payload, err := json.Marshal(apiRequest{
		Model:         strings.TrimSpace(req.Model),
		Messages:      req.Messages,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return fmt.Errorf("marshal stream request: %w", err)
	}

	resp, err := c.post(ctx, key, payload, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return upstreamStatusError{statusCode: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}

		var parsed apiResponse
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			continue
		}

		if parsed.Usage != nil {
			usage := parsed.Usage.toUsage()
			meterFrom(ctx).record(req.Model, usage)
			if onUsage != nil {
				if err := onUsage(usage); err != nil {
					return err
				}
			}
		}

		if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
			return errors.New(strings.TrimSpace(parsed.Error.Message))
		}

		for _, choice := range parsed.Choices {
			delta := choice.Delta.Content
			if delta == "" {
				continue
			}
			if onDelta != nil {
				if err := onDelta(delta); err != nil {
					return err
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read llm stream: %w", err)
	}
	return nil
}

func (c Client) post(ctx context.Context, key string, payload []byte, accept string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build llm request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request llm: %w", err)
	}
	return resp, nil
}

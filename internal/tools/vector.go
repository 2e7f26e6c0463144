package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reportengine/backend/internal/config"
)

// VectorClient queries a vector store's HTTP search endpoint. The store does
// its own embedding; this adapter ships query text and receives scored
// chunks.
type VectorClient struct {
	baseURL    string
	topK       int
	httpClient *http.Client
}

type vectorAPIRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type vectorAPIResponse struct {
	Matches []vectorAPIMatch `json:"matches"`
}

type vectorAPIMatch struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	URL      string  `json:"url"`
	Score    float64 `json:"score"`
	DocType  string  `json:"doc_type"`
	ChunkIdx int     `json:"chunk_index"`
}

func NewVectorClient(cfg config.Config, httpClient *http.Client) *VectorClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &VectorClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.VectorStoreURL), "/"),
		topK:       cfg.MaxResultsPerTool,
		httpClient: httpClient,
	}
}

func (c *VectorClient) Name() Name { return VectorDB }

func (c *VectorClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("vector store url is not configured")
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	topK := c.topK
	if topK <= 0 {
		topK = 5
	}
	payload, err := json.Marshal(vectorAPIRequest{Query: trimmed, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal vector query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build vector request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request vector store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed vectorAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode vector response: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Matches))
	now := time.Now().UTC()
	for _, match := range parsed.Matches {
		content := strings.TrimSpace(match.Content)
		if content == "" {
			continue
		}
		title := strings.TrimSpace(match.Title)
		if title == "" {
			title = match.ID
		}
		results = append(results, SearchResult{
			Source:    VectorDB,
			Title:     title,
			Content:   content,
			URL:       strings.TrimSpace(match.URL),
			Score:     clampScore(match.Score),
			Timestamp: now,
			Metadata: map[string]string{
				"chunk_id":    match.ID,
				"doc_type":    match.DocType,
				"chunk_index": fmt.Sprintf("%d", match.ChunkIdx),
			},
		})
	}
	return results, nil
}

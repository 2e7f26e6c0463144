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

const defaultGraphScore = 0.6

// ProbeSignals is the cheap graph-presence pre-check the planner consumes.
// All-false signals are the legal default when the probe is skipped or the
// store is unreachable.
type ProbeSignals struct {
	HasOriginRelations    bool     `json:"hasOriginRelations"`
	HasAttributeRelations bool     `json:"hasAttributeRelations"`
	HasDocumentRelations  bool     `json:"hasDocumentRelations"`
	RelationPreviews      []string `json:"relationPreviews,omitempty"`
}

func (s ProbeSignals) Any() bool {
	return s.HasOriginRelations || s.HasAttributeRelations || s.HasDocumentRelations
}

// GraphClient queries a graph store's HTTP traversal endpoint.
type GraphClient struct {
	baseURL    string
	limit      int
	httpClient *http.Client
}

type graphAPIRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type graphAPIResponse struct {
	Relations []graphAPIRelation `json:"relations"`
}

type graphAPIRelation struct {
	Subject   string  `json:"subject"`
	Predicate string  `json:"predicate"`
	Object    string  `json:"object"`
	Detail    string  `json:"detail"`
	Score     float64 `json:"score"`
}

type graphProbeAPIResponse struct {
	Origin    bool     `json:"origin"`
	Attribute bool     `json:"attribute"`
	Document  bool     `json:"document"`
	Previews  []string `json:"previews"`
}

func NewGraphClient(cfg config.Config, httpClient *http.Client) *GraphClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GraphClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.GraphStoreURL), "/"),
		limit:      cfg.MaxResultsPerTool,
		httpClient: httpClient,
	}
}

func (c *GraphClient) Name() Name { return GraphDB }

func (c *GraphClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("graph store url is not configured")
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	limit := c.limit
	if limit <= 0 {
		limit = 5
	}
	payload, err := json.Marshal(graphAPIRequest{Query: trimmed, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal graph query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/traverse", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build graph request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request graph store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed graphAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode graph response: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Relations))
	now := time.Now().UTC()
	for _, relation := range parsed.Relations {
		subject := strings.TrimSpace(relation.Subject)
		object := strings.TrimSpace(relation.Object)
		if subject == "" || object == "" {
			continue
		}
		title := fmt.Sprintf("%s %s %s", subject, strings.TrimSpace(relation.Predicate), object)
		content := strings.TrimSpace(relation.Detail)
		if content == "" {
			content = title
		}
		score := relation.Score
		if score == 0 {
			score = defaultGraphScore
		}
		results = append(results, SearchResult{
			Source:    GraphDB,
			Title:     title,
			Content:   content,
			Score:     clampScore(score),
			Timestamp: now,
			Metadata: map[string]string{
				"subject":   subject,
				"predicate": strings.TrimSpace(relation.Predicate),
				"object":    object,
			},
		})
	}
	return results, nil
}

// Probe asks the graph store for the three presence signals and up to five
// relation previews. Failures degrade to all-false signals; the probe is
// advisory and must never block planning.
func (c *GraphClient) Probe(ctx context.Context, query string) ProbeSignals {
	if c.baseURL == "" {
		return ProbeSignals{}
	}
	payload, err := json.Marshal(graphAPIRequest{Query: strings.TrimSpace(query), Limit: 5})
	if err != nil {
		return ProbeSignals{}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/probe", bytes.NewReader(payload))
	if err != nil {
		return ProbeSignals{}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ProbeSignals{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ProbeSignals{}
	}

	var parsed graphProbeAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ProbeSignals{}
	}
	previews := parsed.Previews
	if len(previews) > 5 {
		previews = previews[:5]
	}
	return ProbeSignals{
		HasOriginRelations:    parsed.Origin,
		HasAttributeRelations: parsed.Attribute,
		HasDocumentRelations:  parsed.Document,
		RelationPreviews:      previews,
	}
}

// ExtractHints pulls entity names out of graph results so pending
// vector-store queries can be enriched in the graph-to-vector gather mode.
func ExtractHints(results []SearchResult) []string {
	seen := make(map[string]struct{}, len(results)*2)
	hints := make([]string, 0, len(results)*2)
	for _, result := range results {
		for _, key := range []string{"subject", "object"} {
			value := strings.TrimSpace(result.Metadata[key])
			if value == "" {
				continue
			}
			lower := strings.ToLower(value)
			if _, ok := seen[lower]; ok {
				continue
			}
			seen[lower] = struct{}{}
			hints = append(hints, value)
		}
	}
	return hints
}

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reportengine/backend/internal/config"
)

const (
	maxErrorBodyBytes = 8 * 1024
	maxQueryWords     = 50
	defaultWebScore   = 0.5
)

var ErrMissingAPIKey = errors.New("web search api key is not configured")

// APIError is a non-2xx response from a tool backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("tool backend returned %d: %s", e.StatusCode, e.Body)
}

// WebClient queries a Brave-compatible web search API.
type WebClient struct {
	apiKey     string
	baseURL    string
	count      int
	httpClient *http.Client
}

type webAPIResponse struct {
	Web struct {
		Results []webAPIResult `json:"results"`
	} `json:"web"`
	Results []webAPIResult `json:"results"`
}

type webAPIResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Snippet       string   `json:"snippet"`
	ExtraSnippets []string `json:"extra_snippets"`
}

func NewWebClient(cfg config.Config, httpClient *http.Client) *WebClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebClient{
		apiKey:     strings.TrimSpace(cfg.WebSearchAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.WebSearchBaseURL), "/"),
		count:      cfg.MaxResultsPerTool,
		httpClient: httpClient,
	}
}

func (c *WebClient) Name() Name { return WebSearch }

func (c *WebClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery == "" {
		return nil, nil
	}
	trimmedQuery = trimToWordLimit(trimmedQuery, maxQueryWords)

	count := c.count
	if count <= 0 {
		count = 5
	}

	endpoint, err := url.Parse(c.baseURL + "/web/search")
	if err != nil {
		return nil, fmt.Errorf("parse web search endpoint: %w", err)
	}

	params := endpoint.Query()
	params.Set("q", trimmedQuery)
	params.Set("count", fmt.Sprintf("%d", count))
	params.Set("spellcheck", "0")
	params.Set("text_decorations", "0")
	endpoint.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build web search request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request web search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed webAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode web search response: %w", err)
	}

	rawResults := parsed.Web.Results
	if len(rawResults) == 0 {
		rawResults = parsed.Results
	}

	results := make([]SearchResult, 0, len(rawResults))
	seenURLs := make(map[string]struct{}, len(rawResults))
	now := time.Now().UTC()
	for _, item := range rawResults {
		rawURL := strings.TrimSpace(item.URL)
		if rawURL == "" {
			continue
		}
		if _, exists := seenURLs[rawURL]; exists {
			continue
		}
		seenURLs[rawURL] = struct{}{}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = rawURL
		}

		content := strings.TrimSpace(item.Description)
		if content == "" {
			content = strings.TrimSpace(item.Snippet)
		}
		for _, extra := range item.ExtraSnippets {
			if trimmed := strings.TrimSpace(extra); trimmed != "" {
				content += "\n" + trimmed
			}
		}

		results = append(results, SearchResult{
			Source:    WebSearch,
			Title:     title,
			Content:   ExtractText(content),
			URL:       rawURL,
			Score:     defaultWebScore,
			Timestamp: now,
			Metadata:  map[string]string{"provider": "brave"},
		})

		if len(results) >= count {
			break
		}
	}

	return results, nil
}

func trimToWordLimit(input string, maxWords int) string {
	if maxWords <= 0 {
		return ""
	}
	words := strings.Fields(strings.TrimSpace(input))
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ")
}

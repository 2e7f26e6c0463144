package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reportengine/backend/internal/config"
)

const defaultAcademicScore = 0.55

// AcademicClient queries an arXiv-compatible Atom feed. The planner emits
// English query text for this tool.
type AcademicClient struct {
	baseURL    string
	limit      int
	httpClient *http.Client
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
	Links     []atomLink   `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

func NewAcademicClient(cfg config.Config, httpClient *http.Client) *AcademicClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AcademicClient{
		baseURL:    strings.TrimSpace(cfg.AcademicBaseURL),
		limit:      cfg.MaxResultsPerTool,
		httpClient: httpClient,
	}
}

func (c *AcademicClient) Name() Name { return AcademicSearch }

func (c *AcademicClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("academic search url is not configured")
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	limit := c.limit
	if limit <= 0 {
		limit = 5
	}
	endpoint := fmt.Sprintf("%s?search_query=all:%s&start=0&max_results=%d&sortBy=relevance&sortOrder=descending",
		c.baseURL, url.QueryEscape(trimmed), limit)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build academic request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/atom+xml")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request academic search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, APIError{StatusCode: resp.StatusCode, Body: "academic feed unavailable"}
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode academic feed: %w", err)
	}

	results := make([]SearchResult, 0, len(feed.Entries))
	now := time.Now().UTC()
	for _, entry := range feed.Entries {
		title := strings.Join(strings.Fields(entry.Title), " ")
		summary := strings.TrimSpace(entry.Summary)
		if title == "" || summary == "" {
			continue
		}

		timestamp := now
		if parsed, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published)); parseErr == nil {
			timestamp = parsed
		}

		link := strings.TrimSpace(entry.ID)
		for _, candidate := range entry.Links {
			if candidate.Rel == "alternate" && strings.TrimSpace(candidate.Href) != "" {
				link = strings.TrimSpace(candidate.Href)
				break
			}
		}

		authors := make([]string, 0, len(entry.Authors))
		for _, author := range entry.Authors {
			if name := strings.TrimSpace(author.Name); name != "" {
				authors = append(authors, name)
			}
		}

		results = append(results, SearchResult{
			Source:    AcademicSearch,
			Title:     title,
			Content:   summary,
			URL:       link,
			Score:     defaultAcademicScore,
			Timestamp: timestamp,
			Metadata: map[string]string{
				"authors":   strings.Join(authors, ", "),
				"published": strings.TrimSpace(entry.Published),
			},
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

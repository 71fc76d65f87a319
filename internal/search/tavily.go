package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"horse.fit/newsdesk/internal/news"
)

const (
	DefaultTavilyEndpoint = "https://api.tavily.com/search"
	maxErrorBodyBytes     = 512
)

// Provider runs one search and returns its raw hits in result order.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]news.RawHit, error)
}

type TavilyOptions struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

type TavilyClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewTavilyClient(opts TavilyOptions) (*TavilyClient, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("tavily api key is required")
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultTavilyEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &TavilyClient{apiKey: apiKey, endpoint: endpoint, client: client}, nil
}

type tavilyRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeImages     bool   `json:"include_images"`
	IncludeRawContent bool   `json:"include_raw_content"`
	MaxResults        int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []json.RawMessage `json:"results"`
}

// Search keeps each result's raw JSON as the hit payload. Results whose
// fields do not decode still come back, carrying only the payload, so the
// normalizer can reject them.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]news.RawHit, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:             query,
		SearchDepth:       "advanced",
		IncludeRawContent: true,
		MaxResults:        maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tavily response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(respBody))
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return nil, fmt.Errorf("tavily status %d: %s", resp.StatusCode, snippet)
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	hits := make([]news.RawHit, 0, len(parsed.Results))
	for _, raw := range parsed.Results {
		var hit news.RawHit
		if err := json.Unmarshal(raw, &hit); err != nil {
			hit = news.RawHit{}
		}
		hit.Payload = append(json.RawMessage(nil), raw...)
		hits = append(hits, hit)
	}
	return hits, nil
}

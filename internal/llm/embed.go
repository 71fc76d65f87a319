package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultEmbeddingEndpoint       = "http://localhost:11434/api/embed"
	DefaultEmbeddingModel          = "nomic-embed-text"
	DefaultEmbeddingMaxLength      = 512
	DefaultEmbeddingRequestTimeout = 45 * time.Second
)

type EmbedOptions struct {
	Endpoint       string
	Model          string
	MaxLength      int
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// HTTPEmbedder calls an embedding service. The request shape follows the
// endpoint path: Ollama /api/embed, OpenAI-compatible /v1/embeddings, or a
// plain {texts, max_length} service for anything else.
type HTTPEmbedder struct {
	opts EmbedOptions
}

type embedRequest struct {
	Model     string   `json:"model,omitempty"`
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func NewHTTPEmbedder(opts EmbedOptions) *HTTPEmbedder {
	return &HTTPEmbedder{opts: normalizeEmbedOptions(opts)}
}

func normalizeEmbedOptions(opts EmbedOptions) EmbedOptions {
	normalized := opts
	normalized.Endpoint = strings.TrimSpace(normalized.Endpoint)
	if normalized.Endpoint == "" {
		normalized.Endpoint = DefaultEmbeddingEndpoint
	}
	if strings.TrimSpace(normalized.Model) == "" {
		normalized.Model = DefaultEmbeddingModel
	}
	if normalized.MaxLength <= 0 {
		normalized.MaxLength = DefaultEmbeddingMaxLength
	}
	if normalized.RequestTimeout <= 0 {
		normalized.RequestTimeout = DefaultEmbeddingRequestTimeout
	}
	if normalized.HTTPClient == nil {
		normalized.HTTPClient = http.DefaultClient
	}
	return normalized
}

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(e.buildRequest(texts))
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, e.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := parsed.Embeddings
	if len(vectors) == 0 && len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		vectors = make([][]float64, 0, len(parsed.Data))
		for _, row := range parsed.Data {
			vectors = append(vectors, row.Embedding)
		}
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding response count mismatch: requested=%d returned=%d", len(texts), len(vectors))
	}

	out := make([][]float32, len(vectors))
	for i, vector := range vectors {
		out[i] = toFloat32(vector)
	}
	return out, nil
}

func (e *HTTPEmbedder) buildRequest(texts []string) embedRequest {
	parsedEndpoint, err := url.Parse(e.opts.Endpoint)
	path := ""
	if err == nil {
		path = strings.TrimRight(parsedEndpoint.Path, "/")
	}
	switch {
	case strings.HasSuffix(path, "/api/embed"), strings.HasSuffix(path, "/v1/embeddings"):
		return embedRequest{Model: e.opts.Model, Input: texts}
	default:
		return embedRequest{Texts: texts, MaxLength: e.opts.MaxLength}
	}
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, value := range values {
		out[i] = float32(value)
	}
	return out
}

package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced json", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "fenced", input: "```\n[\"World\"]\n```", want: `["World"]`},
		{name: "whitespace", input: "  \n{\"a\":1}\n  ", want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSONResponse(tt.input); got != tt.want {
				t.Fatalf("CleanJSONResponse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestOllamaModelComplete(t *testing.T) {
	t.Parallel()

	var captured ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  Technology  "},"done":true}`))
	}))
	defer srv.Close()

	model := NewOllamaModel(srv.URL+"/", "")
	got, err := model.Complete(context.Background(), Request{System: "sys", Prompt: "classify"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Technology" {
		t.Fatalf("unexpected completion: %q", got)
	}
	if captured.Model != DefaultOllamaModel || captured.Stream {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Content != "classify" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
}

func TestOllamaModelSurfacesStatusErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaModel(srv.URL, "missing").Complete(context.Background(), Request{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestHTTPEmbedderRequestShapes(t *testing.T) {
	t.Parallel()

	var lastBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody = map[string]any{}
		_ = json.Unmarshal(body, &lastBody)
		switch r.URL.Path {
		case "/v1/embeddings":
			_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
		default:
			_, _ = w.Write([]byte(`{"embeddings":[[1,0],[0,1]]}`))
		}
	}))
	defer srv.Close()

	ollama := NewHTTPEmbedder(EmbedOptions{Endpoint: srv.URL + "/api/embed", Model: "nomic-embed-text"})
	vectors, err := ollama.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if lastBody["model"] != "nomic-embed-text" || lastBody["input"] == nil {
		t.Fatalf("unexpected ollama request body: %v", lastBody)
	}

	openaiStyle := NewHTTPEmbedder(EmbedOptions{Endpoint: srv.URL + "/v1/embeddings"})
	vectors, err = openaiStyle.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("expected data rows sorted by index, got %v", vectors)
	}

	plain := NewHTTPEmbedder(EmbedOptions{Endpoint: srv.URL + "/embed"})
	if _, err := plain.Embed(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lastBody["texts"] == nil || lastBody["max_length"] == nil {
		t.Fatalf("unexpected plain request body: %v", lastBody)
	}
}

func TestHTTPEmbedderCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer srv.Close()

	_, err := NewHTTPEmbedder(EmbedOptions{Endpoint: srv.URL + "/api/embed"}).Embed(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected count mismatch error, got %v", err)
	}
}

type countingEmbedder struct {
	calls atomic.Int32
	texts atomic.Int32
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func TestCachedEmbedderServesRepeatedQueries(t *testing.T) {
	t.Parallel()

	next := &countingEmbedder{}
	cached := NewCachedEmbedder(next, 0)

	if _, err := cached.Embed(context.Background(), []string{"Interest rate hike"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vectors, err := cached.Embed(context.Background(), []string{"interest  rate hike", "new query"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.calls.Load() != 2 || next.texts.Load() != 2 {
		t.Fatalf("expected only the miss to be forwarded, calls=%d texts=%d", next.calls.Load(), next.texts.Load())
	}
	if vectors[0][0] != float32(len("Interest rate hike")) {
		t.Fatalf("expected cached vector for normalized query, got %v", vectors[0])
	}
}

type namedModel string

func (m namedModel) Name() string { return string(m) }
func (m namedModel) Complete(context.Context, Request) (string, error) {
	return string(m), nil
}

func TestRegistryResolvesDefaultAndNamedProviders(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(" OpenAI ")
	if err := registry.Register(namedModel("ollama")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(namedModel("openai")); err != nil {
		t.Fatalf("register: %v", err)
	}

	model, err := registry.Model("")
	if err != nil || model.Name() != "openai" {
		t.Fatalf("expected default openai model, got %v / %v", model, err)
	}
	if _, err := registry.Model("anthropic"); err == nil {
		t.Fatalf("expected unregistered provider to fail")
	}
	if names := registry.ProviderNames(); strings.Join(names, ",") != "ollama,openai" {
		t.Fatalf("unexpected provider names: %v", names)
	}
}

func TestNewRegistryFromConfigSkipsProvidersWithoutKeys(t *testing.T) {
	t.Parallel()

	registry := NewRegistryFromConfig(ProviderConfig{Default: "ollama", ModelName: "llama3", AnthropicAPIKey: "sk-test"})
	if names := registry.ProviderNames(); strings.Join(names, ",") != "anthropic,ollama" {
		t.Fatalf("unexpected provider names: %v", names)
	}
}

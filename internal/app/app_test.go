package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/config"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/runlock"
	"horse.fit/newsdesk/internal/store"
)

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{err: nil, want: exitOK},
		{err: fmt.Errorf("acquire: %w", news.ErrRunInProgress), want: exitRunInProgress},
		{err: fmt.Errorf("%w: question is empty", news.ErrMalformedInput), want: exitUsage},
		{err: fmt.Errorf("%w: all queries failed", news.ErrProviderUnavailable), want: exitFailure},
		{err: errors.New("boom"), want: exitFailure},
	}
	for _, tc := range cases {
		if got := exitCodeFor(tc.err); got != tc.want {
			t.Fatalf("exitCodeFor(%v): got %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	t.Parallel()

	if code := Run(nil); code != exitUsage {
		t.Fatalf("expected usage exit code without args, got %d", code)
	}
	if code := Run([]string{"frobnicate"}); code != exitUsage {
		t.Fatalf("expected usage exit code for unknown command, got %d", code)
	}
	if code := Run([]string{"help"}); code != exitOK {
		t.Fatalf("expected help to succeed, got %d", code)
	}
}

func TestCommandUsageErrors(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		{"get"},
		{"search"},
		{"search", "--k", "0", "rates"},
		{"ask"},
		{"list", "--limit", "-1"},
		{"list", "--category", "weather"},
		{"runs", "--limit", "0"},
		{"reset"},
		{"schedule", "--every", "10s"},
		{"serve", "--port", "70000"},
	}
	for _, args := range cases {
		if code := Run(args); code != exitUsage {
			t.Fatalf("Run(%v): got %d want %d", args, code, exitUsage)
		}
	}
}

func TestParseOutputFormat(t *testing.T) {
	t.Parallel()

	if format, err := parseOutputFormat("", outputFormatTable); err != nil || format != outputFormatTable {
		t.Fatalf("expected default table format, got %q err=%v", format, err)
	}
	if format, err := parseOutputFormat(" JSON ", outputFormatTable); err != nil || format != outputFormatJSON {
		t.Fatalf("expected json format, got %q err=%v", format, err)
	}
	if _, err := parseOutputFormat("yaml", outputFormatTable); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestTruncateForTable(t *testing.T) {
	t.Parallel()

	if got := truncateForTable("  short  ", 10); got != "short" {
		t.Fatalf("unexpected short value: %q", got)
	}
	if got := truncateForTable("Markets rally after rate decision", 12); got != "Markets r..." {
		t.Fatalf("unexpected truncated value: %q", got)
	}
	if got := truncateForTable("Überraschung", 3); got != "Übe" {
		t.Fatalf("unexpected rune truncation: %q", got)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:         "test",
		LogLevel:            "info",
		StoreBackend:        config.StoreMemory,
		DBMaxConns:          1,
		EmbeddingDimensions: 4,
		RunLock:             config.LockLocal,
		TopNewsMaxResults:   10,
		InterestMaxResults:  3,
		InterestsFile:       "missing-interests.txt",
		LLMProvider:         "ollama",
		OllamaBaseURL:       "http://127.0.0.1:1",
		ModelName:           "llama3",
		EmbeddingEndpoint:   "http://127.0.0.1:1/api/embed",
		EmbeddingModel:      "nomic-embed-text",
		DedupThreshold:      0.75,
		WorkerCount:         2,
		CollaboratorTimeout: time.Second,
		SearchTimeout:       time.Second,
		SearchContextMaxK:   20,
	}
}

func TestNewRuntimeWiresMemoryStoreAndLocalLock(t *testing.T) {
	t.Parallel()

	rt, err := newRuntime(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer rt.Close()

	if _, ok := rt.backend.(*store.MemoryBackend); !ok {
		t.Fatalf("expected memory backend, got %T", rt.backend)
	}
	if _, ok := rt.lock.(*runlock.Local); !ok {
		t.Fatalf("expected local lock, got %T", rt.lock)
	}
	if rt.Gateway().Snapshot().Len() != 0 {
		t.Fatalf("expected empty live generation")
	}

	// No search key: a collection aborts without touching the store.
	_, err = rt.service.Collect(context.Background())
	if !errors.Is(err, news.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable without a search key, got %v", err)
	}
	runs, err := rt.Gateway().Runs(context.Background(), 5)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != news.RunFailed {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
}

func TestNewRuntimeRejectsUnregisteredProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.LLMProvider = "openai"
	if _, err := newRuntime(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error when the default provider has no API key")
	}
}

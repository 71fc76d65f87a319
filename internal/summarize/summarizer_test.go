package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/llm"
	"horse.fit/newsdesk/internal/news"
)

type stubGenerator struct {
	draft Draft
	fails int
	calls int
}

func (g *stubGenerator) Generate(context.Context, []news.Evidence) (Draft, error) {
	g.calls++
	if g.calls <= g.fails {
		return Draft{}, errors.New("upstream 500")
	}
	return g.draft, nil
}

func twoSourceStory() news.Story {
	return news.Story{
		ID: "s1",
		Evidence: []news.Evidence{
			{Title: "Storm hits coast", Text: "A major storm hit the coast on Monday. Thousands lost power.", SourceDomain: "a.example"},
			{Title: "Hurricane makes landfall", Text: "The hurricane made landfall early Monday.", SourceDomain: "b.example"},
		},
	}
}

func TestSummarizeUsesGeneratedDraft(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{draft: Draft{Headline: "  Hurricane\nmakes landfall on coast ", Summary: "Power is out for thousands."}}
	s := New(gen, zerolog.Nop(), Options{Policy: collab.Policy{Timeout: time.Second}})

	got := s.Summarize(context.Background(), twoSourceStory())
	if got.Degraded {
		t.Fatalf("did not expect degraded result")
	}
	if got.Headline != "Hurricane makes landfall on coast" {
		t.Fatalf("unexpected headline %q", got.Headline)
	}
	if got.Summary != "Power is out for thousands." {
		t.Fatalf("unexpected summary %q", got.Summary)
	}
}

func TestSummarizeRetriesOnce(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{draft: Draft{Headline: "Storm update"}, fails: 1}
	s := New(gen, zerolog.Nop(), Options{Policy: collab.Policy{Timeout: time.Second}})
	got := s.Summarize(context.Background(), twoSourceStory())
	if gen.calls != 2 || got.Degraded || got.Headline != "Storm update" {
		t.Fatalf("unexpected result after retry: calls=%d result=%+v", gen.calls, got)
	}
}

func TestSummarizeFallsBackToFirstEvidence(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{fails: 10}
	s := New(gen, zerolog.Nop(), Options{Policy: collab.Policy{Timeout: time.Second}, MaxSummaryRunes: 20})
	got := s.Summarize(context.Background(), twoSourceStory())
	if gen.calls != 2 {
		t.Fatalf("expected two attempts, got %d", gen.calls)
	}
	if !got.Degraded {
		t.Fatalf("expected degraded result")
	}
	if got.Headline != "Storm hits coast" {
		t.Fatalf("unexpected fallback headline %q", got.Headline)
	}
	if !strings.HasSuffix(got.Summary, "…") || len([]rune(got.Summary)) > 20 {
		t.Fatalf("expected truncated fallback summary, got %q", got.Summary)
	}
}

func TestFallbackUsesLeadSentenceWithoutTitle(t *testing.T) {
	t.Parallel()

	s := New(&stubGenerator{}, zerolog.Nop(), Options{})
	got := s.Fallback(news.Story{Evidence: []news.Evidence{{Text: "Markets rallied on Friday. Analysts were surprised."}}})
	if got.Headline != "Markets rallied on Friday." {
		t.Fatalf("unexpected headline %q", got.Headline)
	}

	got = s.Fallback(news.Story{})
	if got.Headline == "" || !got.Degraded {
		t.Fatalf("expected non-empty degraded headline, got %+v", got)
	}
}

func TestEmptyGeneratedHeadlineFallsBack(t *testing.T) {
	t.Parallel()

	s := New(&stubGenerator{draft: Draft{Headline: "   ", Summary: "text"}}, zerolog.Nop(), Options{})
	got := s.Summarize(context.Background(), twoSourceStory())
	if !got.Degraded || got.Headline != "Storm hits coast" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestParseDraft(t *testing.T) {
	t.Parallel()

	draft, err := ParseDraft("```json\n{\"headline\": \"Storm makes landfall\", \"summary\": \"Thousands without power.\"}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Headline != "Storm makes landfall" || draft.Summary != "Thousands without power." {
		t.Fatalf("unexpected draft: %+v", draft)
	}

	draft, err = ParseDraft("Headline: Storm makes landfall\nSummary: Thousands without power.")
	if err != nil || draft.Headline != "Storm makes landfall" || draft.Summary != "Thousands without power." {
		t.Fatalf("unexpected plain-text draft: %+v err=%v", draft, err)
	}

	if _, err := ParseDraft(`{"headline": "", "summary": "x"}`); err == nil {
		t.Fatalf("expected error for empty headline")
	}
}

type captureModel struct {
	prompt string
}

func (m *captureModel) Name() string { return "capture" }
func (m *captureModel) Complete(_ context.Context, req llm.Request) (string, error) {
	m.prompt = req.Prompt
	return `{"headline":"Storm makes landfall","summary":"Two reports agree."}`, nil
}

func TestLLMGeneratorIncludesEverySource(t *testing.T) {
	t.Parallel()

	model := &captureModel{}
	draft, err := NewLLMGenerator(model).Generate(context.Background(), twoSourceStory().Evidence)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Headline != "Storm makes landfall" {
		t.Fatalf("unexpected headline %q", draft.Headline)
	}
	for _, want := range []string{"Report 1 (a.example)", "Report 2 (b.example)", "Hurricane makes landfall"} {
		if !strings.Contains(model.prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, model.prompt)
		}
	}
}

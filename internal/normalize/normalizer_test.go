package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/news"
)

var fetchedAt = time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(zerolog.Nop(), Options{})
}

func TestNormalizeDropsHitWithoutURLOrBody(t *testing.T) {
	t.Parallel()

	_, err := newTestNormalizer().Normalize(context.Background(), news.RawHit{Title: "Orphan"}, news.Query{}, 0, fetchedAt)
	if !errors.Is(err, news.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}

	_, err = newTestNormalizer().Normalize(context.Background(), news.RawHit{URL: "not a url", Content: "   "}, news.Query{}, 0, fetchedAt)
	if !errors.Is(err, news.ErrMalformedInput) {
		t.Fatalf("expected malformed input for unusable url, got %v", err)
	}
}

func TestNormalizeFallsBackToFetchTime(t *testing.T) {
	t.Parallel()

	evidence, err := newTestNormalizer().Normalize(context.Background(), news.RawHit{
		URL:         "https://Example.com/world/summit?utm_source=x#top",
		Title:       "Leaders meet at summit",
		Content:     "Leaders from twenty nations met on Sunday to discuss trade.",
		PublishedAt: "sometime yesterday",
	}, news.Query{Kind: news.QueryTopNews}, 3, fetchedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !evidence.PublishedAt.Equal(fetchedAt) {
		t.Fatalf("expected fetch-time fallback, got %s", evidence.PublishedAt)
	}
	if evidence.URL != "https://example.com/world/summit" || evidence.Key != evidence.URL {
		t.Fatalf("unexpected canonical url/key: %q / %q", evidence.URL, evidence.Key)
	}
	if evidence.SourceDomain != "example.com" || evidence.Order != 3 {
		t.Fatalf("unexpected domain/order: %q / %d", evidence.SourceDomain, evidence.Order)
	}
}

func TestNormalizeStripsBoilerplate(t *testing.T) {
	t.Parallel()

	body := `<div><nav>Home | World | Business | Tech</nav>
<p>The city council approved the new transit budget on Tuesday.</p>
<div class="ad">Buy now</div>
<p>Advertisement</p>
<p>Construction is expected to begin next spring.</p>
<footer>© 2026 Example News</footer></div>`

	evidence, err := newTestNormalizer().Normalize(context.Background(), news.RawHit{
		URL:     "https://example.com/local/transit",
		Title:   "Council approves transit budget",
		Content: body,
	}, news.Query{}, 0, fetchedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "The city council approved the new transit budget on Tuesday.\n\nConstruction is expected to begin next spring."
	if evidence.Text != want {
		t.Fatalf("unexpected text\nwant: %q\ngot:  %q", want, evidence.Text)
	}
}

func TestNormalizeDropsPlainTextChrome(t *testing.T) {
	t.Parallel()

	body := "Skip to content\n\nShare this article\n\nVoters in the state chose a new governor on Tuesday.\n\nWe use cookies to improve your experience."
	evidence, err := newTestNormalizer().Normalize(context.Background(), news.RawHit{
		URL:     "https://example.com/us/governor",
		Content: body,
	}, news.Query{}, 0, fetchedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evidence.Text != "Voters in the state chose a new governor on Tuesday." {
		t.Fatalf("unexpected text: %q", evidence.Text)
	}
	if evidence.Title != "Voters in the state chose a new governor on Tuesday." {
		t.Fatalf("expected title derived from body, got %q", evidence.Title)
	}
}

func TestNormalizeKeepsURLOnlyHitWithDerivedText(t *testing.T) {
	t.Parallel()

	evidence, err := newTestNormalizer().Normalize(context.Background(), news.RawHit{
		URL: "https://example.com/2026/10/fed-holds-rates-steady.html",
	}, news.Query{}, 0, fetchedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evidence.Text == "" || evidence.Title != "fed holds rates steady" {
		t.Fatalf("unexpected derived title/text: %q / %q", evidence.Title, evidence.Text)
	}
}

func TestNormalizeKeepsBodyOnlyHitWithContentKey(t *testing.T) {
	t.Parallel()

	evidence, err := newTestNormalizer().Normalize(context.Background(), news.RawHit{
		Content: "A magnitude 6.1 earthquake struck off the coast early on Monday.",
	}, news.Query{Kind: news.QueryInterest, Topic: " earthquakes "}, 0, fetchedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evidence.URL != "" || !strings.HasPrefix(evidence.Key, "sha256:") {
		t.Fatalf("expected content key, got url=%q key=%q", evidence.URL, evidence.Key)
	}
	if len(evidence.Interests) != 1 || evidence.Interests[0] != "earthquakes" {
		t.Fatalf("unexpected interests: %v", evidence.Interests)
	}
}

func TestNormalizeUsesValidatedPayload(t *testing.T) {
	t.Parallel()

	payload, _ := json.Marshal(map[string]any{
		"url":            "https://example.com/tech/chip",
		"title":          "Chipmaker unveils new processor",
		"content":        "The company said the processor doubles performance.",
		"published_date": "2026-10-18T12:00:00Z",
	})
	evidence, err := newTestNormalizer().Normalize(context.Background(), news.RawHit{
		URL:     "https://example.com/ignored",
		Payload: payload,
	}, news.Query{}, 0, fetchedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evidence.URL != "https://example.com/tech/chip" {
		t.Fatalf("expected payload url to win, got %q", evidence.URL)
	}
	if !evidence.PublishedAt.Equal(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected published time: %s", evidence.PublishedAt)
	}
}

func TestNormalizeFetchesFullTextForShortBodies(t *testing.T) {
	t.Parallel()

	fetches := 0
	n := New(zerolog.Nop(), Options{
		FetchFullText: true,
		Fetch: func(ctx context.Context, pageURL string) (string, error) {
			fetches++
			return "The full article explains the decision in much more detail than the snippet.", nil
		},
	})
	evidence, err := n.Normalize(context.Background(), news.RawHit{
		URL:     "https://example.com/world/decision",
		Title:   "Decision announced",
		Content: "Short snippet.",
	}, news.Query{}, 0, fetchedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetches != 1 || !strings.HasPrefix(evidence.Text, "The full article") {
		t.Fatalf("expected fetched text, fetches=%d text=%q", fetches, evidence.Text)
	}
}

func TestMergeByKeyFoldsInterests(t *testing.T) {
	t.Parallel()

	items := []news.Evidence{
		{Key: "https://example.com/b", Order: 1, Interests: []string{"Climate"}},
		{Key: "https://example.com/a", Order: 0},
		{Key: "https://example.com/b", Order: 2, Interests: []string{"climate", "Energy"}},
	}
	merged, duplicates := MergeByKey(items)
	if duplicates != 1 || len(merged) != 2 {
		t.Fatalf("unexpected merge result: duplicates=%d len=%d", duplicates, len(merged))
	}
	if merged[0].Key != "https://example.com/a" {
		t.Fatalf("expected discovery order, got %q first", merged[0].Key)
	}
	if got := merged[1].Interests; len(got) != 2 || got[0] != "Climate" || got[1] != "Energy" {
		t.Fatalf("unexpected interests: %v", got)
	}
}

func TestCanonicalURLRemovesTracking(t *testing.T) {
	t.Parallel()

	got, host := CanonicalURL("HTTPS://www.Example.com:443//news//item/?b=2&utm_medium=x&a=1&fbclid=z")
	if got != "https://www.example.com/news/item?a=1&b=2" {
		t.Fatalf("unexpected canonical url: %q", got)
	}
	if host != "example.com" {
		t.Fatalf("unexpected host: %q", host)
	}
	if got, _ := CanonicalURL("mailto:desk@example.com"); got != "" {
		t.Fatalf("expected non-http url to be rejected, got %q", got)
	}
}

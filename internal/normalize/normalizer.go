// Package normalize converts raw search hits into Evidence records.
package normalize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/langdetect"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/reader"
	hitschema "horse.fit/newsdesk/schema"
)

const (
	DefaultMaxTextRunes   = 5000
	DefaultMaxTitleRunes  = 200
	defaultShortBodyRunes = 200
	futureSkew            = 24 * time.Hour
)

// FetchFunc retrieves the full article text for a URL.
type FetchFunc func(ctx context.Context, pageURL string) (string, error)

type Options struct {
	MaxTextRunes  int
	MaxTitleRunes int
	// FetchFullText enables a page fetch when the provider body is shorter than ShortBodyRunes.
	FetchFullText  bool
	ShortBodyRunes int
	Fetch          FetchFunc
}

type Normalizer struct {
	logger zerolog.Logger
	opts   Options
}

func New(logger zerolog.Logger, opts Options) *Normalizer {
	if opts.MaxTextRunes <= 0 {
		opts.MaxTextRunes = DefaultMaxTextRunes
	}
	if opts.MaxTitleRunes <= 0 {
		opts.MaxTitleRunes = DefaultMaxTitleRunes
	}
	if opts.ShortBodyRunes <= 0 {
		opts.ShortBodyRunes = defaultShortBodyRunes
	}
	if opts.FetchFullText && opts.Fetch == nil {
		opts.Fetch = func(ctx context.Context, pageURL string) (string, error) {
			return reader.Fetch(ctx, pageURL, reader.FetchOptions{})
		}
	}
	return &Normalizer{logger: logger, opts: opts}
}

// Normalize turns one raw hit into Evidence. Hits with neither a usable URL nor
// usable body text return an error wrapping news.ErrMalformedInput.
// A missing or unparseable publish time falls back to fetchedAt.
func (n *Normalizer) Normalize(ctx context.Context, hit news.RawHit, query news.Query, order int, fetchedAt time.Time) (news.Evidence, error) {
	fields := n.extractFields(hit)

	canonicalURL, host := CanonicalURL(fields.url)
	body := extractBody(fields.rawContent, canonicalURL)
	if short := extractBody(fields.content, canonicalURL); utf8.RuneCountInString(short) > utf8.RuneCountInString(body) {
		body = short
	}

	if canonicalURL != "" && n.opts.FetchFullText && utf8.RuneCountInString(body) < n.opts.ShortBodyRunes {
		if fetched, err := n.opts.Fetch(ctx, canonicalURL); err != nil {
			n.logger.Debug().Err(err).Str("url", canonicalURL).Msg("full-text fetch failed; keeping provider body")
		} else if cleaned := stripBoilerplateLines(fetched); utf8.RuneCountInString(cleaned) > utf8.RuneCountInString(body) {
			body = cleaned
		}
	}

	if canonicalURL == "" && body == "" {
		return news.Evidence{}, fmt.Errorf("%w: hit has no usable url and no usable body", news.ErrMalformedInput)
	}

	title := cleanTitle(fields.title)
	if title == "" {
		title = titleFromBody(body)
	}
	if title == "" && canonicalURL != "" {
		title = titleFromURL(canonicalURL)
	}
	title, _ = reader.TruncateText(title, n.opts.MaxTitleRunes)

	text := body
	if text == "" {
		text = title
	}
	if text == "" {
		return news.Evidence{}, fmt.Errorf("%w: hit %q yields no text", news.ErrMalformedInput, canonicalURL)
	}
	text, _ = reader.TruncateText(text, n.opts.MaxTextRunes)

	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	publishedAt := fetchedAt.UTC()
	if ts, ok := hitschema.ParsePublished(fields.publishedAt); ok && !ts.After(fetchedAt.Add(futureSkew)) {
		publishedAt = ts
	}

	key := canonicalURL
	if key == "" {
		key = contentKey(title, text)
	}

	evidence := news.Evidence{
		Key:          key,
		URL:          canonicalURL,
		Title:        title,
		Text:         text,
		Language:     langdetect.Detect(title + "\n" + text),
		SourceDomain: host,
		PublishedAt:  publishedAt,
		FetchedAt:    fetchedAt.UTC(),
		Query:        query,
		Order:        order,
	}
	if query.Kind == news.QueryInterest && strings.TrimSpace(query.Topic) != "" {
		evidence.Interests = []string{strings.TrimSpace(query.Topic)}
	}
	return evidence, nil
}

type hitFields struct {
	url         string
	title       string
	content     string
	rawContent  string
	publishedAt string
}

// extractFields prefers the schema-validated payload and falls back to the
// loosely-typed hit fields when validation fails.
func (n *Normalizer) extractFields(hit news.RawHit) hitFields {
	lenient := hitFields{
		url:         hit.URL,
		title:       hit.Title,
		content:     hit.Content,
		rawContent:  hit.RawContent,
		publishedAt: hit.PublishedAt,
	}
	if len(hit.Payload) == 0 {
		return lenient
	}

	validated, err := hitschema.ValidateSearchHit(hit.Payload)
	if err != nil {
		n.logger.Warn().
			Err(err).
			Str("url", hit.URL).
			Msg("search hit schema validation failed; falling back to lenient extraction")
		return lenient
	}

	return hitFields{
		url:         validated.URL,
		title:       deref(validated.Title),
		content:     deref(validated.Content),
		rawContent:  deref(validated.RawContent),
		publishedAt: deref(validated.PublishedDate),
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cleanTitle(raw string) string {
	title := strings.Join(strings.Fields(raw), " ")
	if reader.LooksLikeHTML(title) {
		if stripped, err := stripMarkup(title); err == nil {
			title = strings.Join(strings.Fields(stripped), " ")
		}
	}
	return strings.TrimSpace(title)
}

// titleFromBody takes the first sentence of the body as a title-like prefix.
func titleFromBody(body string) string {
	first := body
	if idx := strings.Index(first, "\n"); idx >= 0 {
		first = first[:idx]
	}
	for i, r := range first {
		if (r == '.' || r == '!' || r == '?') && i > 20 {
			next := first[i+utf8.RuneLen(r):]
			if next == "" || unicode.IsSpace([]rune(next)[0]) {
				return strings.TrimSpace(first[:i+utf8.RuneLen(r)])
			}
		}
	}
	return strings.TrimSpace(first)
}

func contentKey(title, text string) string {
	sum := sha256.Sum256([]byte(normalizeText(title) + "\n" + normalizeText(text)))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// normalizeText lower-cases input and collapses whitespace for hashing.
func normalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

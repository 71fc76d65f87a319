package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"horse.fit/newsdesk/internal/reader"
)

// Elements that never carry article content.
const boilerplateSelector = "script, style, noscript, template, svg, iframe, form, button, nav, header, footer, aside, " +
	"[role=navigation], [role=banner], [role=complementary], [aria-hidden=true], " +
	".ad, .ads, .advert, .advertisement, .sponsored, .promo, .newsletter, .subscribe, " +
	".social, .share, .sharing, .related, .breadcrumb, .cookie, [class*=cookie], [id*=cookie]"

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, blockquote, pre, figcaption, td"

const maxBoilerplateLineRunes = 140

var boilerplateLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(advertisement|sponsored( content)?|ad|promoted)$`),
	regexp.MustCompile(`(?i)^(skip to (main )?content|jump to navigation|menu|search|close)$`),
	regexp.MustCompile(`(?i)^(sign up|subscribe|log ?in|register)\b`),
	regexp.MustCompile(`(?i)^(share( this)?( article| story)?|follow us\b.*|read more\b.*|related( articles| stories| coverage)?:?|click here\b.*|watch:?.*|listen to this article.*)$`),
	regexp.MustCompile(`(?i)(we use cookies|accept (all )?cookies|cookie (policy|settings)|privacy policy)`),
	regexp.MustCompile(`(?i)^(©|\(c\)|copyright\b|all rights reserved)`),
	regexp.MustCompile(`(?i)^(image|photo|video)( credit)?:`),
}

var navSeparators = regexp.MustCompile(`\s*[|•·»›]\s*`)

// extractBody returns readable text from a provider body that may be plain text,
// an HTML fragment or a full HTML document.
func extractBody(raw, pageURL string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	if !reader.LooksLikeHTML(raw) {
		return stripBoilerplateLines(reader.CleanText(raw))
	}

	lower := strings.ToLower(raw)
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<body") {
		if text, err := reader.ExtractHTML(raw, pageURL); err == nil {
			return stripBoilerplateLines(text)
		}
	}

	text, err := stripMarkup(raw)
	if err != nil {
		return stripBoilerplateLines(reader.CleanText(raw))
	}
	return stripBoilerplateLines(text)
}

// stripMarkup drops non-content elements and joins block-level text as paragraphs.
func stripMarkup(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}
	doc.Find(boilerplateSelector).Remove()

	paragraphs := make([]string, 0, 16)
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		if sel.Find(blockSelector).Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(sel.Text()), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return reader.CleanText(doc.Text()), nil
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// stripBoilerplateLines removes short lines that match navigation, advertising or legal chrome.
func stripBoilerplateLines(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	kept := paragraphs[:0]
	for _, paragraph := range paragraphs {
		line := strings.TrimSpace(paragraph)
		if line == "" || isBoilerplateLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n\n")
}

func isBoilerplateLine(line string) bool {
	if utf8.RuneCountInString(line) > maxBoilerplateLineRunes {
		return false
	}
	for _, pattern := range boilerplateLinePatterns {
		if pattern.MatchString(line) {
			return true
		}
	}
	return looksLikeMenu(line)
}

// looksLikeMenu flags separator-delimited runs of short labels such as "Home | World | Business | Tech".
func looksLikeMenu(line string) bool {
	parts := navSeparators.Split(line, -1)
	if len(parts) < 4 {
		return false
	}
	for _, part := range parts {
		if len(strings.Fields(part)) > 3 {
			return false
		}
	}
	return true
}

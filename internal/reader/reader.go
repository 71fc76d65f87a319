// Package reader turns article HTML into plain readable text.
package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
)

const (
	DefaultFetchTimeout  = 12 * time.Second
	DefaultBodyByteLimit = 2 * 1024 * 1024

	defaultUserAgent = "newsdesk-reader/1.0"
)

// FetchOptions controls HTTP behavior for full-text fetches.
type FetchOptions struct {
	Timeout       time.Duration
	BodyByteLimit int64
	UserAgent     string
	HTTPClient    *http.Client
}

// Fetch downloads pageURL and extracts its main article text.
func Fetch(ctx context.Context, pageURL string, opts FetchOptions) (string, error) {
	page := strings.TrimSpace(pageURL)
	if page == "" {
		return "", fmt.Errorf("page URL is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	bodyLimit := opts.BodyByteLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyByteLimit
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, page, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyLimit))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "text/plain") {
		return CleanText(string(body)), nil
	}
	return ExtractHTML(string(body), page)
}

// ExtractHTML runs readability over an HTML document and returns cleaned text.
func ExtractHTML(rawHTML, pageURL string) (string, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", fmt.Errorf("html is empty")
	}

	parsedURL := &url.URL{}
	if strings.TrimSpace(pageURL) != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return "", fmt.Errorf("parse page url: %w", err)
		}
		parsedURL = u
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", fmt.Errorf("render readability text: %w", err)
	}

	text := CleanText(rendered.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	if text == "" {
		return "", fmt.Errorf("reader extracted empty content")
	}
	return text, nil
}

// LooksLikeHTML reports whether raw contains markup worth parsing.
func LooksLikeHTML(raw string) bool {
	lower := strings.ToLower(raw)
	for _, marker := range []string{"<html", "<body", "<div", "<p>", "<p ", "<article", "<nav", "<script", "<br"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(line), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.Join(paragraphs, "\n\n")
}

// TruncateText clips text to maxChars runes and appends a single ellipsis rune when truncated.
func TruncateText(raw string, maxChars int) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if maxChars <= 0 {
		return trimmed, false
	}

	runes := []rune(trimmed)
	if len(runes) <= maxChars {
		return trimmed, false
	}
	if maxChars == 1 {
		return "…", true
	}

	clipped := strings.TrimSpace(string(runes[:maxChars-1]))
	if clipped == "" {
		return "…", true
	}
	return clipped + "…", true
}

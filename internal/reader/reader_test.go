package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCleanTextCollapsesWhitespaceAndPreservesParagraphs(t *testing.T) {
	input := "  First   paragraph \n\n Second\tparagraph \r\n\r\nThird line "
	got := CleanText(input)
	want := "First paragraph\n\nSecond paragraph\n\nThird line"
	if got != want {
		t.Fatalf("CleanText mismatch\nwant: %q\ngot:  %q", want, got)
	}
}

func TestTruncateText(t *testing.T) {
	got, truncated := TruncateText("abcdefghijklmnopqrstuvwxyz", 10)
	if !truncated {
		t.Fatalf("expected truncated=true")
	}
	if got != "abcdefghi…" {
		t.Fatalf("unexpected truncated text: %q", got)
	}

	full, wasTruncated := TruncateText("short", 10)
	if wasTruncated || full != "short" {
		t.Fatalf("unexpected short text: %q truncated=%v", full, wasTruncated)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	if !LooksLikeHTML("<div class=\"story\">Body</div>") {
		t.Fatalf("expected markup to be detected")
	}
	if LooksLikeHTML("Plain sentence with a < b comparison.") {
		t.Fatalf("did not expect plain text to be treated as HTML")
	}
}

func TestFetchReturnsPlainTextBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("  Line one  \n\nLine   two "))
	}))
	defer srv.Close()

	got, err := Fetch(context.Background(), srv.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if got != "Line one\n\nLine two" {
		t.Fatalf("unexpected fetched text: %q", got)
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := Fetch(context.Background(), srv.URL, FetchOptions{}); err == nil {
		t.Fatalf("expected non-2xx status to fail")
	}
}

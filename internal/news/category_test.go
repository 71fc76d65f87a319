package news

import (
	"reflect"
	"testing"
	"time"
)

func TestParseCategoryAcceptsAliasesAndPunctuation(t *testing.T) {
	t.Parallel()

	cases := map[string]Category{
		"world":        CategoryWorld,
		" Technology ": CategoryTechnology,
		"\"finance\".": CategoryFinancial,
		"U.S.":         CategoryUS,
		"sport":        CategorySports,
	}
	for raw, want := range cases {
		got, ok := ParseCategory(raw)
		if !ok || got != want {
			t.Fatalf("ParseCategory(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}

	if _, ok := ParseCategory("weather"); ok {
		t.Fatalf("expected unknown label to be rejected")
	}
}

func TestCanonicalCategoriesDedupesAndOrders(t *testing.T) {
	t.Parallel()

	got := CanonicalCategories([]Category{CategoryTechnology, CategoryOther, CategoryFinancial, CategoryTechnology, "Weather"})
	want := []Category{CategoryFinancial, CategoryTechnology, CategoryOther}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected categories: %v", got)
	}

	if got := CanonicalCategories([]Category{CategoryOther}); !reflect.DeepEqual(got, []Category{CategoryOther}) {
		t.Fatalf("expected lone Other to survive, got %v", got)
	}
	if got := CanonicalCategories(nil); len(got) != 0 {
		t.Fatalf("expected empty set, got %v", got)
	}
}

func TestStoryLatestEvidenceAt(t *testing.T) {
	t.Parallel()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(6 * time.Hour)
	story := Story{Evidence: []Evidence{{PublishedAt: older}, {PublishedAt: newer}}}
	if got := story.LatestEvidenceAt(); !got.Equal(newer) {
		t.Fatalf("unexpected latest evidence time: %s", got)
	}
	if !(Story{Interests: []string{"Climate"}}).HasInterest("climate") {
		t.Fatalf("expected case-insensitive interest match")
	}
}

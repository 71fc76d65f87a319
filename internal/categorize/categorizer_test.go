package categorize

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/llm"
	"horse.fit/newsdesk/internal/news"
)

type stubClassifier struct {
	labels []string
	err    error
	fails  int
	calls  int
}

func (s *stubClassifier) Classify(context.Context, string) ([]string, error) {
	s.calls++
	if s.calls <= s.fails {
		return nil, errors.New("model overloaded")
	}
	return s.labels, s.err
}

var testPolicy = collab.Policy{Timeout: time.Second}

func mergerStory() news.Story {
	return news.Story{
		ID: "s1",
		Evidence: []news.Evidence{{
			Title: "Two carmakers agree to merge",
			Text:  "The business deal creates the third largest automaker in the market.",
		}},
	}
}

func TestCategorizeEmptyLabelsFallsBackToOther(t *testing.T) {
	t.Parallel()

	c := New(&stubClassifier{labels: nil}, zerolog.Nop(), Options{Policy: testPolicy, KeywordFallback: true})
	got := c.Categorize(context.Background(), mergerStory())
	if !reflect.DeepEqual(got.Categories, []news.Category{news.CategoryOther}) || !got.Fallback {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestCategorizeKeepsOtherAlongsideSpecificLabels(t *testing.T) {
	t.Parallel()

	c := New(&stubClassifier{labels: []string{"Other", "sports", "Sports"}}, zerolog.Nop(), Options{Policy: testPolicy})
	got := c.Categorize(context.Background(), mergerStory())
	want := []news.Category{news.CategorySports, news.CategoryOther}
	if !reflect.DeepEqual(got.Categories, want) || got.Fallback {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestCategorizeUnknownLabelsFallBackToOther(t *testing.T) {
	t.Parallel()

	c := New(&stubClassifier{labels: []string{"Weather", "Lifestyle"}}, zerolog.Nop(), Options{Policy: testPolicy})
	got := c.Categorize(context.Background(), mergerStory())
	if !reflect.DeepEqual(got.Categories, []news.Category{news.CategoryOther}) {
		t.Fatalf("unexpected categories: %v", got.Categories)
	}
}

func TestCategorizeKeepsMultipleCategories(t *testing.T) {
	t.Parallel()

	c := New(&stubClassifier{labels: []string{"technology", "Financial", "weather"}}, zerolog.Nop(), Options{Policy: testPolicy})
	got := c.Categorize(context.Background(), mergerStory())
	want := []news.Category{news.CategoryFinancial, news.CategoryTechnology}
	if !reflect.DeepEqual(got.Categories, want) || got.Fallback {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestCategorizeRetriesOnceThenFallsBack(t *testing.T) {
	t.Parallel()

	classifier := &stubClassifier{labels: []string{"World"}, fails: 1}
	c := New(classifier, zerolog.Nop(), Options{Policy: testPolicy})
	got := c.Categorize(context.Background(), mergerStory())
	if classifier.calls != 2 || !reflect.DeepEqual(got.Categories, []news.Category{news.CategoryWorld}) {
		t.Fatalf("expected success on retry, calls=%d result=%+v", classifier.calls, got)
	}

	classifier = &stubClassifier{fails: 5}
	c = New(classifier, zerolog.Nop(), Options{Policy: testPolicy})
	got = c.Categorize(context.Background(), mergerStory())
	if classifier.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", classifier.calls)
	}
	if !reflect.DeepEqual(got.Categories, []news.Category{news.CategoryOther}) || !got.Fallback {
		t.Fatalf("unexpected fallback result: %+v", got)
	}
}

func TestCategorizeKeywordFallbackOnClassifierFailure(t *testing.T) {
	t.Parallel()

	c := New(&stubClassifier{fails: 5}, zerolog.Nop(), Options{Policy: testPolicy, KeywordFallback: true})
	got := c.Categorize(context.Background(), mergerStory())
	if !reflect.DeepEqual(got.Categories, []news.Category{news.CategoryFinancial}) || !got.Fallback {
		t.Fatalf("unexpected keyword fallback result: %+v", got)
	}
}

func TestKeywordCategoriesMatchesWholeWords(t *testing.T) {
	t.Parallel()

	story := news.Story{Evidence: []news.Evidence{{Title: "Museum reopens after renovation", Text: "Visitors returned on Friday."}}}
	if got := KeywordCategories(story); got != nil {
		t.Fatalf("did not expect substring matches, got %v", got)
	}

	story = news.Story{Evidence: []news.Evidence{{Title: "New AI app launches", Text: "The startup released it today."}}}
	if got := KeywordCategories(story); !reflect.DeepEqual(got, []news.Category{news.CategoryTechnology}) {
		t.Fatalf("unexpected categories: %v", got)
	}
}

func TestParseLabels(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"```json\n[\"Financial\", \"Technology\"]\n```": {"Financial", "Technology"},
		"world, us":           {"world", "us"},
		"- Sports\n- Other":   {"Sports", "Other"},
		"Financial/Technology": {"Financial", "Technology"},
	}
	for input, want := range cases {
		if got := ParseLabels(input); !reflect.DeepEqual(got, want) {
			t.Fatalf("ParseLabels(%q) = %v, want %v", input, got, want)
		}
	}
}

type fixedModel string

func (m fixedModel) Name() string { return "fixed" }
func (m fixedModel) Complete(context.Context, llm.Request) (string, error) {
	return string(m), nil
}

func TestLLMClassifierParsesModelOutput(t *testing.T) {
	t.Parallel()

	labels, err := NewLLMClassifier(fixedModel(`["Sports"]`)).Classify(context.Background(), "Final score 2-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(labels, []string{"Sports"}) {
		t.Fatalf("unexpected labels: %v", labels)
	}
}

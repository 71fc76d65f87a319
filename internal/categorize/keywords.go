package categorize

import (
	"strings"
	"unicode"

	"horse.fit/newsdesk/internal/news"
)

const keywordPrefixRunes = 100

// Checked in order; the first category with a hit wins.
var categoryKeywords = []struct {
	category news.Category
	words    []string
}{
	{news.CategoryWorld, []string{"world", "global", "international", "europe", "asia", "africa"}},
	{news.CategoryUS, []string{"us", "united states", "america", "washington"}},
	{news.CategorySports, []string{"sport", "sports", "game", "team", "player", "match", "ball", "tournament"}},
	{news.CategoryFinancial, []string{"market", "markets", "stock", "stocks", "economy", "business", "finance", "dollar", "bank"}},
	{news.CategoryTechnology, []string{"tech", "technology", "software", "computer", "digital", "ai", "app"}},
}

// KeywordCategories classifies a story from the seed evidence title and the
// start of its text. It returns nil when nothing matches.
func KeywordCategories(story news.Story) []news.Category {
	if len(story.Evidence) == 0 {
		return nil
	}
	seed := story.Evidence[0]
	text := seed.Text
	if runes := []rune(text); len(runes) > keywordPrefixRunes {
		text = string(runes[:keywordPrefixRunes])
	}
	haystack := strings.ToLower(seed.Title + " " + text)
	tokens := tokenSet(haystack)

	for _, group := range categoryKeywords {
		for _, word := range group.words {
			if strings.Contains(word, " ") {
				if strings.Contains(haystack, word) {
					return []news.Category{group.category}
				}
				continue
			}
			if _, ok := tokens[word]; ok {
				return []news.Category{group.category}
			}
		}
	}
	return nil
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}

package news

import (
	"sort"
	"strings"
)

type Category string

const (
	CategoryWorld      Category = "World"
	CategoryUS         Category = "US"
	CategorySports     Category = "Sports"
	CategoryFinancial  Category = "Financial"
	CategoryTechnology Category = "Technology"
	CategoryOther      Category = "Other"
)

// AllCategories is the fixed enum in display order.
var AllCategories = []Category{
	CategoryWorld,
	CategoryUS,
	CategorySports,
	CategoryFinancial,
	CategoryTechnology,
	CategoryOther,
}

var categoryAliases = map[string]Category{
	"world":         CategoryWorld,
	"international": CategoryWorld,
	"us":            CategoryUS,
	"u.s.":          CategoryUS,
	"usa":           CategoryUS,
	"united states": CategoryUS,
	"sports":        CategorySports,
	"sport":         CategorySports,
	"financial":     CategoryFinancial,
	"finance":       CategoryFinancial,
	"technology":    CategoryTechnology,
	"tech":          CategoryTechnology,
	"other":         CategoryOther,
}

// ParseCategory maps a free-text label onto the enum. Unknown labels report false.
func ParseCategory(raw string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.Trim(key, " \t\"'`.,;:-*")
	if key == "" {
		return "", false
	}
	category, ok := categoryAliases[key]
	return category, ok
}

func (c Category) order() int {
	for i, known := range AllCategories {
		if known == c {
			return i
		}
	}
	return len(AllCategories)
}

// CanonicalCategories removes duplicates and unknown values and sorts into
// enum order. Every known label is kept, Other included.
func CanonicalCategories(in []Category) []Category {
	seen := make(map[Category]struct{}, len(in))
	out := make([]Category, 0, len(in))
	for _, category := range in {
		if category.order() == len(AllCategories) {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].order() < out[j].order()
	})
	return out
}

// HasCategory reports membership using the enum's canonical spelling.
func HasCategory(set []Category, want Category) bool {
	for _, category := range set {
		if category == want {
			return true
		}
	}
	return false
}

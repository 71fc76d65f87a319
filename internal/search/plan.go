// Package search issues the news queries of a collection run.
package search

import (
	"fmt"
	"strings"

	"horse.fit/newsdesk/internal/globaltime"
	"horse.fit/newsdesk/internal/news"
)

const (
	DefaultTopNewsMaxResults  = 10
	DefaultInterestMaxResults = 3
)

// PlannedQuery is a query plus its result cap.
type PlannedQuery struct {
	news.Query
	MaxResults int
}

type PlanOptions struct {
	TopNewsMaxResults  int
	InterestMaxResults int
}

// Plan builds the run's queries: one top-news query, then one per interest in
// file order. Blank and repeated interests are skipped.
func Plan(interests []string, opts PlanOptions) []PlannedQuery {
	if opts.TopNewsMaxResults <= 0 {
		opts.TopNewsMaxResults = DefaultTopNewsMaxResults
	}
	if opts.InterestMaxResults <= 0 {
		opts.InterestMaxResults = DefaultInterestMaxResults
	}
	since := globaltime.DayBefore()

	plan := []PlannedQuery{{
		Query: news.Query{
			Kind: news.QueryTopNews,
			Text: fmt.Sprintf("top news stories since %s", since),
		},
		MaxResults: opts.TopNewsMaxResults,
	}}

	seen := make(map[string]struct{}, len(interests))
	for _, interest := range interests {
		topic := strings.TrimSpace(interest)
		key := strings.ToLower(topic)
		if topic == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		plan = append(plan, PlannedQuery{
			Query: news.Query{
				Kind:  news.QueryInterest,
				Topic: topic,
				Text:  fmt.Sprintf("latest news about %s since %s", topic, since),
				Index: len(plan),
			},
			MaxResults: opts.InterestMaxResults,
		})
	}
	return plan
}

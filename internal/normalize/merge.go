package normalize

import (
	"sort"
	"strings"

	"horse.fit/newsdesk/internal/news"
)

// MergeByKey keeps the first Evidence per Key in discovery order and folds the
// interests of later duplicates into it. It returns the merged list and the
// number of duplicates removed.
func MergeByKey(items []news.Evidence) ([]news.Evidence, int) {
	sorted := append([]news.Evidence(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	index := make(map[string]int, len(sorted))
	merged := make([]news.Evidence, 0, len(sorted))
	duplicates := 0
	for _, item := range sorted {
		if at, ok := index[item.Key]; ok {
			merged[at].Interests = unionInterests(merged[at].Interests, item.Interests)
			duplicates++
			continue
		}
		index[item.Key] = len(merged)
		item.Interests = unionInterests(nil, item.Interests)
		merged = append(merged, item)
	}
	return merged, duplicates
}

// unionInterests appends topics not already present (case-insensitive), preserving first-seen order.
func unionInterests(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, topic := range extra {
		trimmed := strings.TrimSpace(topic)
		if trimmed == "" {
			continue
		}
		found := false
		for _, existing := range out {
			if strings.EqualFold(existing, trimmed) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, trimmed)
		}
	}
	return out
}

// UnionInterests merges interest topics across evidence in order.
func UnionInterests(items []news.Evidence) []string {
	var out []string
	for _, item := range items {
		out = unionInterests(out, item.Interests)
	}
	return out
}

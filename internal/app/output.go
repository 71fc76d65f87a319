package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"horse.fit/newsdesk/internal/news"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func truncateForTable(value string, maxLen int) string {
	trimmed := strings.TrimSpace(value)
	if maxLen <= 0 {
		return trimmed
	}
	if utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}

	runes := []rune(trimmed)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func formatUTCTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func formatUTCTimestampPtr(value *time.Time) string {
	if value == nil || value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func joinCategories(categories []news.Category) string {
	parts := make([]string, len(categories))
	for i, category := range categories {
		parts[i] = string(category)
	}
	return strings.Join(parts, ",")
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}

func writeStorySummaryTable(stories []news.StorySummary) error {
	rows := make([][]string, 0, len(stories))
	for _, story := range stories {
		rows = append(rows, []string{
			story.ID,
			formatUTCTimestamp(story.LatestEvidenceAt),
			joinCategories(story.Categories),
			fmt.Sprintf("%d", story.EvidenceCount),
			truncateForTable(story.Headline, 80),
		})
	}
	return writeTable([]string{"ID", "LATEST", "CATEGORIES", "SOURCES", "HEADLINE"}, rows)
}

func writeRunTable(runs []news.Run) error {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			formatUTCTimestamp(run.StartedAt),
			formatUTCTimestampPtr(run.FinishedAt),
			string(run.Status),
			fmt.Sprintf("%d", run.Counters.Stories),
			fmt.Sprintf("%d/%d", run.Counters.FailedQueries, run.Counters.Queries),
			truncateForTable(run.Error, 60),
		})
	}
	return writeTable([]string{"ID", "STARTED", "FINISHED", "STATUS", "STORIES", "FAILED_QUERIES", "ERROR"}, rows)
}

// printStory renders one story with its evidence, newest-first as stored.
func printStory(story news.Story, related []news.StorySummary) {
	fmt.Printf("%s\n", story.Headline)
	fmt.Printf("id: %s  categories: %s\n", story.ID, joinCategories(story.Categories))
	if len(story.Interests) > 0 {
		fmt.Printf("interests: %s\n", strings.Join(story.Interests, ", "))
	}
	if story.Degraded {
		fmt.Println("summary: fallback (language model unavailable)")
	}
	fmt.Printf("\n%s\n", story.Summary)

	fmt.Printf("\nSources (%d):\n", len(story.Evidence))
	for _, evidence := range story.Evidence {
		fmt.Printf("  - %s\n", truncateForTable(evidence.Title, 100))
		if evidence.URL != "" {
			fmt.Printf("    %s (%s, %s)\n", evidence.URL, evidence.SourceDomain, formatUTCTimestamp(evidence.PublishedAt))
		}
	}

	if len(related) > 0 {
		fmt.Println("\nRelated:")
		for _, summary := range related {
			fmt.Printf("  - %s  %s\n", summary.ID, truncateForTable(summary.Headline, 80))
		}
	}
}

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/newsdesk/internal/cli"
	"horse.fit/newsdesk/internal/interests"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/pipeline"
	"horse.fit/newsdesk/internal/store"
)

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	category := fs.String("category", "", "Filter by category: World, US, Sports, Financial, Technology, Other")
	interest := fs.String("interest", "", "Filter by interest topic")
	limit := fs.Int("limit", 0, "Maximum stories to return (0 for all)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "list does not accept positional arguments")
		return exitUsage
	}
	if *limit < 0 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 0")
		return exitUsage
	}

	filter := store.ListFilter{Interest: strings.TrimSpace(*interest), Limit: *limit}
	if strings.TrimSpace(*category) != "" {
		parsed, ok := news.ParseCategory(*category)
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown category %q\n", *category)
			return exitUsage
		}
		filter.Category = parsed
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return exitUsage
	}

	ctx, cancel, rt, err := connectRuntime(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer cancel()
	defer rt.Close()

	stories := rt.Gateway().List(ctx, filter)
	if outputFormat == outputFormatJSON {
		if err := printJSON(stories); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return exitFailure
		}
		return exitOK
	}
	if len(stories) == 0 {
		fmt.Println("No stories.")
		return exitOK
	}
	if err := writeStorySummaryTable(stories); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func runGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	related := fs.Int("related", store.DefaultRelatedN, "Number of related stories to show")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: newsdesk get [flags] <story-id>")
		return exitUsage
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return exitUsage
	}

	ctx, cancel, rt, err := connectRuntime(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer cancel()
	defer rt.Close()

	gateway := rt.Gateway()
	story, err := gateway.Get(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	var similar []news.StorySummary
	if *related > 0 {
		similar, _ = gateway.Related(ctx, story.ID, *related)
	}

	if outputFormat == outputFormatJSON {
		payload := struct {
			Story   news.Story          `json:"story"`
			Related []news.StorySummary `json:"related"`
		}{Story: story, Related: similar}
		if err := printJSON(payload); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return exitFailure
		}
		return exitOK
	}
	printStory(story, similar)
	return exitOK
}

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	k := fs.Int("k", 5, "Number of stories to return")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: newsdesk search [flags] <query>")
		return exitUsage
	}
	if *k < 1 {
		fmt.Fprintln(os.Stderr, "--k must be >= 1")
		return exitUsage
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return exitUsage
	}

	ctx, cancel, rt, err := connectRuntime(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer cancel()
	defer rt.Close()

	fragments, err := rt.Gateway().SearchContext(ctx, query, *k)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		return exitCodeFor(err)
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(fragments); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return exitFailure
		}
		return exitOK
	}
	rows := make([][]string, 0, len(fragments))
	for _, fragment := range fragments {
		rows = append(rows, []string{
			fmt.Sprintf("%.3f", fragment.Score),
			fragment.StoryID,
			joinCategories(fragment.Categories),
			truncateForTable(fragment.Headline, 80),
		})
	}
	if err := writeTable([]string{"SCORE", "ID", "CATEGORIES", "HEADLINE"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func runAsk(args []string) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 3*time.Minute, "Command timeout")
	storyID := fs.String("story", "", "Answer from this story only")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: newsdesk ask [--story id] <question>")
		return exitUsage
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return exitUsage
	}

	ctx, cancel, rt, err := connectRuntime(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer cancel()
	defer rt.Close()

	answer, err := rt.service.Answer(ctx, pipeline.Question{StoryID: *storyID, Question: question})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to answer: %v\n", err)
		return exitCodeFor(err)
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(answer); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return exitFailure
		}
		return exitOK
	}
	fmt.Println(answer.Answer)
	fmt.Printf("\nSource: %s\n", answer.Source)
	return exitOK
}

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", 20, "Maximum runs to return")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return exitUsage
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return exitUsage
	}

	ctx, cancel, rt, err := connectRuntime(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer cancel()
	defer rt.Close()

	runs, err := rt.Gateway().Runs(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query runs: %v\n", err)
		return exitFailure
	}
	if outputFormat == outputFormatJSON {
		if err := printJSON(runs); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return exitFailure
		}
		return exitOK
	}
	if err := writeRunTable(runs); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func runReset(args []string) int {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", time.Minute, "Command timeout")
	yes := fs.Bool("yes", false, "Confirm dropping every stored generation")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if !*yes {
		fmt.Fprintln(os.Stderr, "reset drops every stored story; pass --yes to confirm")
		return exitUsage
	}

	ctx, cancel, rt, err := connectRuntime(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer cancel()
	defer rt.Close()

	if err := rt.service.Reset(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
		return exitCodeFor(err)
	}
	fmt.Println("Store reset.")
	return exitOK
}

func runInterests(args []string) int {
	fs := flag.NewFlagSet("interests", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "Interests file (defaults to INTERESTS_FILE)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	path := strings.TrimSpace(*file)
	if path == "" {
		cfg, _, err := loadConfig(envLoader)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailure
		}
		path = cfg.InterestsFile
	}

	topics, err := interests.Load(path)
	if errors.Is(err, interests.ErrFileMissing) {
		fmt.Printf("Warning: %s not found; collections cover top news only.\n", path)
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load interests: %v\n", err)
		return exitFailure
	}
	if len(topics) == 0 {
		fmt.Printf("No interests configured in %s; collections cover top news only.\n", path)
		return exitOK
	}
	for _, topic := range topics {
		fmt.Println(topic)
	}
	return exitOK
}

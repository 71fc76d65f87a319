package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/newsdesk/internal/cli"
	"horse.fit/newsdesk/internal/news"
)

func runCollect(args []string) int {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Maximum duration of the run")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "collect does not accept positional arguments")
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

	if err := rt.cfg.RequireSearch(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := rt.service.Collect(ctx)
	if err != nil && run.ID == "" {
		fmt.Fprintf(os.Stderr, "Collection rejected: %v\n", err)
		return exitCodeFor(err)
	}

	if outputFormat == outputFormatJSON {
		if encodeErr := printJSON(run); encodeErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encodeErr)
			return exitFailure
		}
	} else {
		printRunReport(run)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Collection failed: %v\n", err)
		return exitCodeFor(err)
	}
	return exitOK
}

func printRunReport(run news.Run) {
	c := run.Counters
	fmt.Printf("Run %s: %s\n", run.ID, run.Status)
	if run.GenerationID != "" {
		fmt.Printf("  generation:      %s\n", run.GenerationID)
	}
	fmt.Printf("  queries:         %d (%d failed)\n", c.Queries, c.FailedQueries)
	fmt.Printf("  hits:            %d (%d malformed, %d duplicate urls)\n", c.Hits, c.Malformed, c.DuplicateURLs)
	fmt.Printf("  evidence:        %d (%d without embedding)\n", c.Evidence, c.EmbedFailures)
	fmt.Printf("  stories:         %d (%d degraded summaries, %d fallback categories)\n", c.Stories, c.Degraded, c.CategoryFallbacks)
	if run.FinishedAt != nil {
		fmt.Printf("  elapsed:         %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Printf("  error:           %s\n", run.Error)
	}
}

// runSchedule triggers a collection on a fixed interval. A tick that finds
// a run still in flight is skipped.
func runSchedule(args []string) int {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	every := fs.Duration("every", time.Hour, "Interval between collection runs")
	runTimeout := fs.Duration("run-timeout", 30*time.Minute, "Maximum duration of one run")
	immediate := fs.Bool("immediate", true, "Run once at startup before the first tick")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if *every < time.Minute {
		fmt.Fprintln(os.Stderr, "--every must be at least 1m")
		return exitUsage
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	if err := cfg.RequireSearch(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
	rt, err := newRuntime(setupCtx, cfg, logger)
	setupCancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer rt.Close()

	scheduleCollections(ctx, rt, *every, *runTimeout, *immediate)
	return exitOK
}

// scheduleCollections blocks until ctx is done.
func scheduleCollections(ctx context.Context, rt *runtime, every, runTimeout time.Duration, immediate bool) {
	logger := rt.logger
	collectOnce := func() {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		if _, err := rt.service.Collect(runCtx); err != nil {
			if errors.Is(err, news.ErrRunInProgress) {
				logger.Info().Msg("previous collection still running; skipping tick")
				return
			}
			logger.Error().Err(err).Msg("scheduled collection failed")
		}
	}

	logger.Info().Dur("every", every).Msg("collection schedule started")
	if immediate {
		collectOnce()
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("collection schedule stopped")
			return
		case <-ticker.C:
			collectOnce()
		}
	}
}

package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"horse.fit/newsdesk/internal/news"
)

const (
	exitOK           = 0
	exitFailure      = 1
	exitUsage        = 2
	exitRunInProgress = 3
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitUsage
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	case "health":
		return runHealth(args[1:])
	case "collect", "run-once":
		return runCollect(args[1:])
	case "schedule":
		return runSchedule(args[1:])
	case "list", "stories":
		return runList(args[1:])
	case "get", "story":
		return runGet(args[1:])
	case "search":
		return runSearch(args[1:])
	case "ask":
		return runAsk(args[1:])
	case "runs":
		return runRuns(args[1:])
	case "reset":
		return runReset(args[1:])
	case "interests":
		return runInterests(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "newsdesk CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  newsdesk <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify store and lock connectivity")
	fmt.Fprintln(os.Stderr, "  collect    Run one collection and publish a new generation")
	fmt.Fprintln(os.Stderr, "  run-once   Alias for collect")
	fmt.Fprintln(os.Stderr, "  schedule   Run collections on a fixed interval until interrupted")
	fmt.Fprintln(os.Stderr, "  list       List stories in the live generation")
	fmt.Fprintln(os.Stderr, "  get        Show one story with its evidence")
	fmt.Fprintln(os.Stderr, "  search     Find stories similar to a query")
	fmt.Fprintln(os.Stderr, "  ask        Answer a question from one story or from similar stories")
	fmt.Fprintln(os.Stderr, "  runs       Show recent collection runs")
	fmt.Fprintln(os.Stderr, "  reset      Drop every stored generation")
	fmt.Fprintln(os.Stderr, "  interests  Print the configured interest topics")
	fmt.Fprintln(os.Stderr, "  serve      Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"newsdesk <command> -h\" for command-specific flags.")
}

// exitCodeFor maps command errors onto process exit codes.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, news.ErrRunInProgress):
		return exitRunInProgress
	case errors.Is(err, news.ErrMalformedInput):
		return exitUsage
	default:
		return exitFailure
	}
}

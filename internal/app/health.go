package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/newsdesk/internal/cli"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Health check timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	ctx, cancel, rt, err := connectRuntime(*timeout, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return exitFailure
	}
	defer cancel()
	defer rt.Close()

	if err := rt.backend.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return exitFailure
	}

	snapshot := rt.Gateway().Snapshot()
	fmt.Printf("OK (store=%s, lock=%s, generation=%s, stories=%d)\n", rt.cfg.StoreBackend, rt.cfg.RunLock, displayID(snapshot.ID), snapshot.Len())
	if err := rt.cfg.RequireSearch(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	return exitOK
}

func displayID(id string) string {
	if id == "" {
		return "none"
	}
	return id
}

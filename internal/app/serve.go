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
	"horse.fit/newsdesk/internal/httpapi"
	"horse.fit/newsdesk/internal/logging"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 5*time.Minute, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	runTimeout := fs.Duration("run-timeout", 30*time.Minute, "Maximum duration of one collection run")
	collectEvery := fs.Duration("collect-every", 0, "Also run collections on this interval (0 disables)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return exitUsage
	}
	if *collectEvery != 0 && *collectEvery < time.Minute {
		fmt.Fprintln(os.Stderr, "--collect-every must be 0 or at least 1m")
		return exitUsage
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
	rt, err := newRuntime(setupCtx, cfg, logger)
	setupCancel()
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to initialize")
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer rt.Close()

	if *collectEvery > 0 {
		if err := cfg.RequireSearch(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailure
		}
		go scheduleCollections(ctx, rt, *collectEvery, *runTimeout, false)
	}

	srv := httpapi.NewServer(rt.service, rt.backend, logging.Component(logger, "http"), httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		RunTimeout:      *runTimeout,
		AllowedOrigins:  cfg.CORSAllowedOriginsList(),
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return exitFailure
	}

	return exitOK
}

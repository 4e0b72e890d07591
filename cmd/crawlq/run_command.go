package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"crawlq/internal/command"
	"crawlq/internal/config"
	"crawlq/internal/fetch"
	"crawlq/internal/logging"
	"crawlq/internal/queue"
	"crawlq/internal/ratelimit"
	"crawlq/internal/telemetry"
	"crawlq/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		workers     int
		metricsAddr string
		seedURL     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Seed the queue if empty and process commands until it drains",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Telemetry.MetricsAddr = strings.TrimSpace(metricsAddr)
			}
			if seedURL = strings.TrimSpace(seedURL); seedURL == "" {
				seedURL = cfg.Crawl.RootURL
			}

			logger, closeLog, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			lock, err := workflow.AcquireLock(cfg.LockPath())
			if err != nil {
				return err
			}
			defer func() {
				if err := lock.Release(); err != nil {
					logger.Warn("failed to release run lock", logging.Error(err))
				}
			}()

			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			limiter, closeLimiter, err := ratelimit.NewFromConfig(runCtx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeLimiter() }()

			metrics := telemetry.NewMetrics()
			if cfg.Telemetry.MetricsAddr != "" {
				server := telemetry.NewServer(metrics, store, logger)
				if _, err := server.Start(cfg.Telemetry.MetricsAddr); err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = server.Shutdown(shutdownCtx)
				}()
			}

			env := command.Env{
				Fetcher:  newFetcher(cfg, limiter, logger),
				MaxPages: cfg.Crawl.MaxPages,
			}
			runner := workflow.NewRunner(cfg, queue.New(store), env, logger,
				workflow.WithMetrics(metrics),
				workflow.WithWorkers(workers),
			)

			if _, err := runner.Recover(runCtx); err != nil {
				return err
			}
			if _, err := runner.Seed(runCtx, seedURL); err != nil {
				return err
			}
			stats, err := runner.Run(runCtx)
			printRunSummary(cmd, stats)
			return err
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Number of concurrent workers (defaults to workflow.workers)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics, /status and /healthz on this address")
	cmd.Flags().StringVar(&seedURL, "seed", "", "Root URL to seed when the queue is empty (defaults to crawl.root_url)")
	return cmd
}

func newFetcher(cfg *config.Config, limiter *ratelimit.TokenBucket, logger *slog.Logger) *fetch.Client {
	opts := []fetch.Option{
		fetch.WithTimeout(cfg.RequestTimeout()),
		fetch.WithUserAgent(cfg.Crawl.UserAgent),
		fetch.WithRetryMaxAttempts(cfg.Crawl.FetchAttempts),
		fetch.WithRetryBackoff(cfg.RetryBackoff(), 20*cfg.RetryBackoff()),
		fetch.WithLogger(logger),
	}
	// A nil *TokenBucket must not become a non-nil Limiter.
	if limiter != nil {
		opts = append(opts, fetch.WithLimiter(limiter))
	}
	return fetch.NewClient(opts...)
}

func printRunSummary(cmd *cobra.Command, stats workflow.RunStats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d completed, %d failed, %d enqueued, %d results in %s\n",
		stats.RunID, stats.Completed, stats.Failed, stats.Enqueued, stats.Results,
		stats.Elapsed.Round(time.Millisecond))
	if stats.Recovered > 0 {
		fmt.Fprintf(out, "Recovered %d in-flight commands from a previous run\n", stats.Recovered)
	}
	if stats.Failed > 0 {
		fmt.Fprintln(out, "Failed commands stay pending; the next `crawlq run` retries them")
	}
}

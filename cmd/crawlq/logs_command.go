package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crawlq/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow  bool
		lines   int
		raw     bool
		filter  logs.Filter
		waitFor time.Duration
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display the crawlq log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := filter.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			emit := func(batch []string) {
				for _, line := range batch {
					if raw {
						fmt.Fprintln(out, line)
					} else {
						fmt.Fprintln(out, logs.Format(line))
					}
				}
			}

			// Filtering happens after reading, so a filtered view scans the whole
			// file and keeps the last matches.
			opts := logs.TailOptions{Offset: -1, Limit: lines}
			if lines <= 0 || filter != (logs.Filter{}) {
				opts = logs.TailOptions{Offset: 0}
			}
			result, err := logs.Tail(cmd.Context(), cfg.LogPath(), opts)
			if err != nil {
				return fmt.Errorf("tail logs: %w", err)
			}
			initial := filter.Apply(result.Lines)
			if lines > 0 && len(initial) > lines {
				initial = initial[len(initial)-lines:]
			}
			emit(initial)

			if !follow {
				if len(initial) == 0 {
					fmt.Fprintln(out, "No log entries available")
				}
				return nil
			}

			offset := result.Offset
			for {
				next, err := logs.Tail(cmd.Context(), cfg.LogPath(), logs.TailOptions{Offset: offset, Follow: true, Wait: waitFor})
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return fmt.Errorf("tail logs: %w", err)
				}
				emit(filter.Apply(next.Lines))
				offset = next.Offset
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON lines unformatted")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "Only show entries for this run id (prefix match)")
	cmd.Flags().Int64Var(&filter.CommandID, "command", 0, "Only show entries for this queue record")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&waitFor, "poll", time.Second, "How long each follow read waits for new lines")
	_ = cmd.Flags().MarkHidden("poll")
	return cmd
}

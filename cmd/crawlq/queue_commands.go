package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crawlq/internal/config"
	"crawlq/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the command queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueuePruneCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}
				if health.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := [][]string{
					{"Pending", strconv.Itoa(health.Pending)},
					{"In flight", strconv.Itoa(health.InFlight)},
					{"Completed", strconv.Itoa(health.Completed)},
					{"Failing", strconv.Itoa(health.Failing)},
					{"Total", strconv.Itoa(health.Total)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		kind     string
		failing  bool
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue records",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{Kind: strings.TrimSpace(kind), FailingOnly: failing, Limit: limit}
			for _, value := range statuses {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q (expected pending, in_flight or completed)", value)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				records, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]recordView, 0, len(records))
					for _, rec := range records {
						views = append(views, newRecordView(rec))
					}
					return writeJSON(cmd, views)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching records")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Kind", "Status", "Attempts", "Target", "Updated"},
					buildRecordRows(records),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by command kind")
	cmd.Flags().BoolVar(&failing, "failing", false, "Only pending records whose last attempt failed")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one queue record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				rec, err := store.GetByID(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("%w: %d", queue.ErrUnknownIdentity, ids[0])
				}
				view := newRecordView(rec)
				if asJSON {
					return writeJSON(cmd, view)
				}
				fields := [][2]string{
					{"ID", strconv.FormatInt(view.ID, 10)},
					{"Kind", view.Kind},
					{"Status", view.Status},
					{"Target", view.Target},
					{"Attempts", strconv.Itoa(view.Attempts)},
					{"Created", view.CreatedAt},
					{"Updated", view.UpdatedAt},
				}
				if view.CompletedAt != "" {
					fields = append(fields, [2]string{"Completed", view.CompletedAt})
				}
				if view.ClaimedBy != "" {
					fields = append(fields, [2]string{"Claimed by", view.ClaimedBy})
				}
				if view.LastError != "" {
					fields = append(fields, [2]string{"Last error", view.LastError})
				}
				fields = append(fields, [2]string{"Payload", view.Payload})
				fmt.Fprint(cmd.OutOrStdout(), renderFields(fields))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Clear the failure marker so failed commands run again",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				count, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				if count == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed commands to retry")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed commands\n", count)
				return nil
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return stale in-flight commands to pending",
		Long: "Return in-flight commands whose heartbeat is older than workflow.heartbeat_timeout to pending.\n" +
			"With --all every in-flight command is reset; only use it when no `crawlq run` is active.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var (
					count int64
					err   error
				)
				if all {
					count, err = store.ResetInFlight(cmd.Context())
				} else {
					count, err = store.ReclaimStale(cmd.Context(), time.Now().Add(-cfg.HeartbeatTimeout()), "")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d in-flight commands to pending\n", count)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reset every in-flight command regardless of heartbeat")
	return cmd
}

func newQueuePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete completed commands older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				window := olderThan
				if !cmd.Flags().Changed("older-than") {
					window = cfg.RetentionWindow()
				}
				if window < 0 {
					return errors.New("--older-than must not be negative")
				}
				count, err := store.PruneCompleted(cmd.Context(), time.Now().Add(-window))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d completed commands\n", count)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold, e.g. 72h (defaults to retention.completed_days)")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the queue database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}
				fields := [][2]string{
					{"Database", health.DBPath},
					{"Exists", yesNo(health.DatabaseExists)},
					{"Readable", yesNo(health.DatabaseReadable)},
					{"Schema version", strconv.Itoa(health.SchemaVersion)},
					{"Commands table", yesNo(health.TableExists)},
					{"Integrity", yesNo(health.IntegrityCheck)},
					{"Total commands", strconv.Itoa(health.TotalCommands)},
				}
				if len(health.MissingColumns) > 0 {
					fields = append(fields, [2]string{"Missing columns", strings.Join(health.MissingColumns, ", ")})
				}
				if health.Error != "" {
					fields = append(fields, [2]string{"Error", health.Error})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderFields(fields))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid command id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

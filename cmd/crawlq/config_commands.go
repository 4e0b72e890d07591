package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crawlq/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Create a sample configuration file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configInitTarget(args)
			if err != nil {
				return err
			}
			switch _, err := os.Stat(target); {
			case err == nil && !overwrite:
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return fmt.Errorf("check config path: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit crawl.root_url (or export CRAWLQ_ROOT_URL) before running crawlq.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func configInitTarget(args []string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(strings.TrimSpace(args[0]))
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			source := ctx.configPath
			if !ctx.configSeen {
				source += " (not found, defaults used)"
			}
			rateLimit := "disabled"
			if cfg.RateLimit.RedisAddr != "" {
				rateLimit = fmt.Sprintf("%s, %d tokens, %.2g/s", cfg.RateLimit.RedisAddr, cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
			}
			maxPages := "until last page"
			if cfg.Crawl.MaxPages > 0 {
				maxPages = strconv.Itoa(cfg.Crawl.MaxPages)
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderFields([][2]string{
				{"Config", source},
				{"Queue database", cfg.QueuePath()},
				{"Log file", cfg.LogPath()},
				{"Root URL", cfg.Crawl.RootURL},
				{"Workers", strconv.Itoa(cfg.Workflow.Workers)},
				{"Pages per genre", maxPages},
				{"Fetch attempts", strconv.Itoa(cfg.Crawl.FetchAttempts)},
				{"Rate limit", rateLimit},
			}))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

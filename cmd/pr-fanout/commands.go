package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/pr-fanout/internal/batch"
	"github.com/hochfrequenz/pr-fanout/internal/config"
	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/report"
	"github.com/hochfrequenz/pr-fanout/internal/runstore"
)

var (
	runOpts      runOptions
	watchOpts    runOptions
	watchCron    string
	watchNoStart bool
	historyLimit int
	historyBatch string
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Apply a change to every target repository once",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}
	addRunFlags(runCmd.Flags(), &runOpts)
	rootCmd.AddCommand(runCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the batch on a schedule and when the prompt config file changes",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	addRunFlags(watchCmd.Flags(), &watchOpts)
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "cron schedule, e.g. \"0 6 * * 1-5\" or \"@every 6h\"")
	watchCmd.Flags().BoolVar(&watchNoStart, "no-initial-run", false, "wait for the first trigger instead of running at startup")
	rootCmd.AddCommand(watchCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent batches",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of batches to show")
	historyCmd.Flags().StringVar(&historyBatch, "batch", "", "show the per-repository results of one batch")
	rootCmd.AddCommand(historyCmd)
}

// loadConfig reads the config file and environment and sets up logging
func loadConfig() (*config.Config, *slog.Logger, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, domain.Configf("%v", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, nil, domain.Configf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, domain.Configf("%v", err)
	}

	logger, err := newLogger(os.Stderr, firstNonEmpty(logLevel, cfg.Log.Level), firstNonEmpty(logFormat, cfg.Log.Format))
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	runOpts.applyTo(cfg, cmd.Flags())

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	plan, err := planBatch(ctx, cfg, runOpts, logger)
	if err != nil {
		return err
	}
	plan.run(ctx, cmd.OutOrStdout())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	watchOpts.applyTo(cfg, cmd.Flags())

	if watchCron == "" && watchOpts.prompt.ConfigFile == "" {
		return domain.Configf("watch needs --cron or --prompt-config-file")
	}
	if watchCron != "" {
		if _, err := batch.ParseCron(watchCron); err != nil {
			return domain.Configf("invalid --cron %q: %v", watchCron, err)
		}
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	// validate once up front so configuration mistakes fail fast
	plan, err := planBatch(ctx, cfg, watchOpts, logger)
	if err != nil {
		return err
	}
	if plan.bundle.ChangeID == "" {
		return domain.Configf("watch needs a change identity (--change-id, a ticket or change_id in the prompt config) so re-runs update the same pull requests")
	}

	w := &batch.Watch{
		Cron:      watchCron,
		File:      watchOpts.prompt.ConfigFile,
		Immediate: !watchNoStart,
		Logger:    logger,
		Run: func(ctx context.Context, reason string) {
			logger.Info("starting batch", "trigger", reason)
			plan, err := planBatch(ctx, cfg, watchOpts, logger)
			if err != nil {
				logger.Error("batch not started", "trigger", reason, "error", err)
				return
			}
			plan.run(ctx, cmd.OutOrStdout())
		},
	}
	return w.Start(ctx)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if historyBatch != "" {
		results, err := store.GetResults(historyBatch)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("no results recorded for batch %s", historyBatch)
		}
		report.Summary(out, results)
		return nil
	}

	batches, err := store.ListBatches(historyLimit)
	if err != nil {
		return err
	}
	results := make(map[string][]domain.RunResult, len(batches))
	for _, b := range batches {
		rs, err := store.GetResults(b.ID)
		if err != nil {
			return err
		}
		results[b.ID] = rs
	}
	report.History(out, batches, results, time.Now())
	return nil
}

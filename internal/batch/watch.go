package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as
// "@hourly" or "@every 30m"
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Watch re-runs a batch on a cron schedule and whenever File changes.
// A trigger that arrives while a run is in progress is dropped.
type Watch struct {
	Cron string
	File string
	// Immediate runs once before waiting for the first trigger
	Immediate bool
	Run       func(ctx context.Context, reason string)
	Logger    *slog.Logger

	running sync.Mutex
}

// Start blocks until ctx is done and any in-flight run has finished
func (w *Watch) Start(ctx context.Context) error {
	if w.Cron == "" && w.File == "" {
		return fmt.Errorf("watch needs a cron schedule or a file")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "watch")

	if w.Cron != "" {
		sched, err := ParseCron(w.Cron)
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", w.Cron, err)
		}
		c := cron.New(cron.WithParser(cronParser))
		c.Schedule(sched, cron.FuncJob(func() { w.trigger(ctx, "schedule", logger) }))
		c.Start()
		defer func() { <-c.Stop().Done() }()
		logger.Info("watching schedule", "cron", w.Cron)
	}

	if w.File != "" {
		fw, err := NewFileWatcher(w.File, func() { w.trigger(ctx, "file changed", logger) }, logger)
		if err != nil {
			return fmt.Errorf("watching %s: %w", w.File, err)
		}
		go fw.Run(ctx)
		logger.Info("watching file", "path", w.File)
	}

	if w.Immediate {
		w.trigger(ctx, "startup", logger)
	}

	<-ctx.Done()
	// wait for an in-flight run
	w.running.Lock()
	w.running.Unlock()
	return nil
}

func (w *Watch) trigger(ctx context.Context, reason string, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	if !w.running.TryLock() {
		logger.Info("batch still running, skipping trigger", "reason", reason)
		return
	}
	defer w.running.Unlock()
	logger.Info("starting batch", "reason", reason)
	w.Run(ctx, reason)
}

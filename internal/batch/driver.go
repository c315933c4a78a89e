// Package batch fans one change out to many repositories: it resolves the
// target list, runs the workflow for each target with failure isolation and
// re-runs whole batches on a schedule.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
)

// Workflow runs one repository
type Workflow interface {
	Run(ctx context.Context, target domain.RepositoryTarget) domain.RunResult
}

// Driver runs a Workflow over a list of targets
type Driver struct {
	Workflow Workflow
	// Parallel caps concurrent repositories; values below 2 run sequentially
	Parallel int
	// OnResult is called once per finished repository, never concurrently
	OnResult func(domain.RunResult)
	Logger   *slog.Logger
}

// Run processes every target and returns one result per target in input
// order. A failing or panicking repository never stops the others.
func (d *Driver) Run(ctx context.Context, targets []domain.RepositoryTarget) []domain.RunResult {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "batch")

	results := make([]domain.RunResult, len(targets))
	var mu sync.Mutex
	report := func(i int, res domain.RunResult) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = res
		if d.OnResult != nil {
			d.OnResult(res)
		}
	}

	limit := d.Parallel
	if limit < 1 {
		limit = 1
	}
	logger.Info("starting batch", "repos", len(targets), "parallel", limit)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, target := range targets {
		g.Go(func() error {
			logger.Info("processing repository", "index", i+1, "of", len(targets), "repo", target.URL)
			report(i, d.runOne(ctx, target, logger))
			return nil
		})
	}
	g.Wait()

	return results
}

func (d *Driver) runOne(ctx context.Context, target domain.RepositoryTarget, logger *slog.Logger) (res domain.RunResult) {
	started := time.Now()
	if err := ctx.Err(); err != nil {
		return domain.RunResult{
			Repository:   target,
			StageReached: domain.StageAcquiring,
			Outcome:      domain.OutcomeFailed,
			Err:          err,
			StartedAt:    started,
			FinishedAt:   started,
		}
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("workflow panicked", "repo", target.URL, "panic", p, "stack", string(debug.Stack()))
			res = domain.RunResult{
				Repository: target,
				Outcome:    domain.OutcomeFailed,
				Err:        fmt.Errorf("panic: %v", p),
				StartedAt:  started,
				FinishedAt: time.Now(),
			}
		}
	}()

	res = d.Workflow.Run(ctx, target)
	if res.Repository.URL == "" {
		res.Repository = target
	}
	if res.Outcome == "" {
		res.Outcome = domain.OutcomeFailed
	}
	return res
}

// Counts tallies results by outcome
func Counts(results []domain.RunResult) map[domain.Outcome]int {
	counts := make(map[domain.Outcome]int)
	for _, r := range results {
		counts[r.Outcome]++
	}
	return counts
}

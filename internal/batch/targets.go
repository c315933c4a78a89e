package batch

import (
	"context"
	"log/slog"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/repo"
)

// Discoverer lists the repositories of a team
type Discoverer interface {
	ListRepositories(ctx context.Context, team string) ([]string, error)
}

// ResolveTargets combines explicit repository references with the
// repositories discovered for team, normalizes them and drops duplicates.
// An empty result is a ConfigurationError.
func ResolveTargets(ctx context.Context, explicit []string, team string, disc Discoverer, defaultOwner string, logger *slog.Logger) ([]domain.RepositoryTarget, error) {
	refs := append([]string(nil), explicit...)

	if team != "" {
		if disc == nil {
			return nil, domain.Configf("team discovery needs DATADOG_API_KEY and DATADOG_APP_KEY")
		}
		found, err := disc.ListRepositories(ctx, team)
		if err != nil {
			return nil, domain.Configf("discovering repositories for team %s: %v", team, err)
		}
		if logger != nil {
			logger.Info("discovered repositories", "component", "batch", "team", team, "count", len(found))
		}
		refs = append(refs, found...)
	}

	targets, err := repo.NormalizeAll(refs, defaultOwner)
	if err != nil {
		return nil, domain.Configf("%v", err)
	}
	if len(targets) == 0 {
		return nil, domain.Configf("no repositories provided or discovered")
	}
	return targets, nil
}

package agent

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hochfrequenz/pr-fanout/internal/config"
	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/prompts"
)

// Backend names accepted in configuration
const (
	BackendCursor  = "cursor"
	BackendCommand = "command"
	BackendNone    = "none"
)

// FromConfig builds a registry with the backend named for each role.
// "none" or an empty name leaves the role unbound; change and evaluate must
// always be bound.
func FromConfig(cfg config.AgentConfig, loader *prompts.Loader, logOut io.Writer, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(cfg.Timeout(), logger)

	built := map[string]Backend{}
	get := func(name string) (Backend, error) {
		if b, ok := built[name]; ok {
			return b, nil
		}
		var (
			b   Backend
			err error
		)
		switch name {
		case BackendCursor:
			b, err = NewCursor(CursorOptions{
				Mode:   CursorMode(cfg.CursorMode),
				Image:  cfg.CursorImage,
				Model:  cfg.CursorModel,
				CLIBin: cfg.CursorCLIBin,
				APIKey: cfg.CursorAPIKey,
				Env:    cfg.Env,
			}, loader, logOut)
		case BackendCommand:
			b, err = NewCommand(cfg.Command, loader, logOut)
		default:
			err = fmt.Errorf("unknown agent backend %q", name)
		}
		if err != nil {
			return nil, err
		}
		built[name] = b
		return b, nil
	}

	selected := map[domain.Role]string{
		domain.RoleChange:   cfg.Change,
		domain.RoleEvaluate: cfg.Evaluate,
		domain.RoleNaming:   cfg.Naming,
		domain.RoleReview:   cfg.Review,
	}
	for _, role := range domain.Roles {
		name := selected[role]
		if name == "" || name == BackendNone {
			if role == domain.RoleChange || role == domain.RoleEvaluate {
				return nil, fmt.Errorf("%s agent must be configured", role)
			}
			continue
		}
		b, err := get(name)
		if err != nil {
			return nil, fmt.Errorf("%s agent: %w", role, err)
		}
		reg.Bind(role, b)
	}
	return reg, nil
}

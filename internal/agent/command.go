package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hochfrequenz/pr-fanout/internal/prompts"
)

// Command runs an arbitrary local executable as an agent. The prompt is
// written to stdin and the invocation is described through environment
// variables:
//
//	PR_FANOUT_ROLE           change, evaluate, naming or review
//	PR_FANOUT_WORKSPACE      repository path (empty for naming)
//	PR_FANOUT_CONTEXT_ROOTS  read-only roots joined with the OS list separator
//
// Secrets are added to the environment under their own names.
type Command struct {
	argv   []string
	loader *prompts.Loader
	logOut io.Writer
}

// NewCommand returns a backend running argv
func NewCommand(argv []string, loader *prompts.Loader, logOut io.Writer) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("command backend needs a command")
	}
	if loader == nil {
		loader = prompts.NewLoader()
	}
	return &Command{argv: argv, loader: loader, logOut: logOut}, nil
}

// Name implements Backend
func (c *Command) Name() string {
	return "command:" + filepath.Base(c.argv[0])
}

// Run implements Backend
func (c *Command) Run(ctx context.Context, inv Invocation) (string, error) {
	prefix, err := c.loader.BuildWorkspacePrefix(prompts.WorkspaceData{
		RepoDir:     inv.Workspace,
		ContextDirs: inv.ContextRoots,
	})
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Dir = inv.Workspace
	cmd.Stdin = strings.NewReader(prefix + inv.Instruction)
	cmd.Env = append(os.Environ(),
		"PR_FANOUT_ROLE="+string(inv.Role),
		"PR_FANOUT_WORKSPACE="+inv.Workspace,
		"PR_FANOUT_CONTEXT_ROOTS="+strings.Join(inv.ContextRoots, string(os.PathListSeparator)),
	)
	cmd.Env = append(cmd.Env, envList(inv.Secrets)...)
	cmd.WaitDelay = 5 * time.Second

	return runProcess(cmd, nil, c.logOut)
}

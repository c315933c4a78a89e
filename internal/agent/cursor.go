package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/pr-fanout/internal/prompts"
)

// CursorMode selects how cursor-agent is executed
type CursorMode string

const (
	CursorDocker CursorMode = "docker"
	CursorCLI    CursorMode = "cli"
)

// Paths inside the agent container
const (
	containerRoot    = "/workspace"
	containerRepo    = containerRoot + "/repo"
	containerContext = containerRoot + "/context"
)

// CursorOptions configures the cursor backend
type CursorOptions struct {
	Mode          CursorMode
	Image         string
	Model         string
	CLIBin        string
	DockerBin     string
	APIKey        string
	WorkspaceRoot string // overrides the computed --workspace for cli mode
	Env           map[string]string
}

// Cursor runs cursor-agent in a container or from the local binary
type Cursor struct {
	opts   CursorOptions
	loader *prompts.Loader
	logOut io.Writer
}

// NewCursor validates opts and returns a cursor backend
func NewCursor(opts CursorOptions, loader *prompts.Loader, logOut io.Writer) (*Cursor, error) {
	switch opts.Mode {
	case CursorDocker, CursorCLI:
	default:
		return nil, fmt.Errorf("unknown cursor mode %q (want docker or cli)", opts.Mode)
	}
	if opts.Model == "" {
		opts.Model = "auto"
	}
	if opts.CLIBin == "" {
		opts.CLIBin = "cursor-agent"
	}
	if opts.DockerBin == "" {
		opts.DockerBin = "docker"
	}
	if opts.Mode == CursorDocker && opts.Image == "" {
		return nil, fmt.Errorf("cursor docker mode needs an image")
	}
	if loader == nil {
		loader = prompts.NewLoader()
	}
	return &Cursor{opts: opts, loader: loader, logOut: logOut}, nil
}

// Name implements Backend
func (c *Cursor) Name() string {
	return "cursor-" + string(c.opts.Mode)
}

// Run implements Backend
func (c *Cursor) Run(ctx context.Context, inv Invocation) (string, error) {
	hint := c.hintPaths(inv)
	prefix, err := c.loader.BuildWorkspacePrefix(hint)
	if err != nil {
		return "", err
	}
	prompt := prefix + inv.Instruction

	env := c.env(inv)

	var cmd *exec.Cmd
	switch c.opts.Mode {
	case CursorDocker:
		name := "pr-fanout-" + uuid.NewString()[:12]
		cmd = exec.CommandContext(ctx, c.opts.DockerBin, c.dockerArgs(inv, prompt, name, env)...)
		// killing the docker client leaves the container running
		cmd.Cancel = func() error {
			exec.Command(c.opts.DockerBin, "kill", name).Run()
			return cmd.Process.Kill()
		}
		cmd.Env = append(os.Environ(), envList(env)...)
	default:
		cmd = exec.CommandContext(ctx, c.opts.CLIBin, c.cliArgs(inv, prompt)...)
		cmd.Dir = inv.Workspace
		cmd.Env = append(os.Environ(), envList(env)...)
	}
	cmd.WaitDelay = 10 * time.Second

	if !inv.Stream {
		return runProcess(cmd, nil, c.logOut)
	}
	col := &streamCollector{}
	_, err = runProcess(cmd, col.filter, c.logOut)
	return col.text(), err
}

// hintPaths returns the paths the agent sees: container paths in docker mode,
// host paths otherwise.
func (c *Cursor) hintPaths(inv Invocation) prompts.WorkspaceData {
	if c.opts.Mode == CursorCLI {
		return prompts.WorkspaceData{RepoDir: inv.Workspace, ContextDirs: inv.ContextRoots}
	}
	var data prompts.WorkspaceData
	if inv.Workspace != "" {
		data.RepoDir = containerRepo
	}
	for i := range inv.ContextRoots {
		data.ContextDirs = append(data.ContextDirs, fmt.Sprintf("%s/%d", containerContext, i))
	}
	return data
}

func (c *Cursor) env(inv Invocation) map[string]string {
	env := make(map[string]string, len(c.opts.Env)+len(inv.Secrets)+1)
	for k, v := range c.opts.Env {
		env[k] = v
	}
	if c.opts.APIKey != "" {
		env["CURSOR_API_KEY"] = c.opts.APIKey
	}
	for k, v := range inv.Secrets {
		env[k] = v
	}
	return env
}

func (c *Cursor) agentArgs(workspace, prompt string, stream bool) []string {
	args := []string{"--workspace", workspace, "--model", c.opts.Model, "--force"}
	if stream {
		args = append(args, "--output-format", "stream-json", "--stream-partial-output")
	}
	return append(args, "--print", prompt)
}

// dockerArgs builds the docker run arguments. Environment values are not in
// argv: "-e KEY" makes docker copy the value from its own environment.
func (c *Cursor) dockerArgs(inv Invocation, prompt, name string, env map[string]string) []string {
	args := []string{"run", "--rm", "--name", name}

	workdir := containerRoot
	if inv.Workspace != "" {
		mode := "ro"
		if inv.Role.Mutates() {
			mode = "rw"
		}
		args = append(args, "-v", absPath(inv.Workspace)+":"+containerRepo+":"+mode)
		workdir = containerRepo
	}
	for i, root := range inv.ContextRoots {
		args = append(args, "-v", fmt.Sprintf("%s:%s/%d:ro", absPath(root), containerContext, i))
	}
	args = append(args, "-w", workdir)

	for _, k := range sortedKeys(env) {
		args = append(args, "-e", k)
	}

	args = append(args, c.opts.Image, "cursor-agent")
	return append(args, c.agentArgs(containerRoot, prompt, inv.Stream)...)
}

func (c *Cursor) cliArgs(inv Invocation, prompt string) []string {
	root := c.opts.WorkspaceRoot
	if root == "" {
		var paths []string
		if inv.Workspace != "" {
			paths = append(paths, inv.Workspace)
		}
		paths = append(paths, inv.ContextRoots...)
		root = commonPath(paths)
	}
	if root == "" {
		root, _ = os.Getwd()
	}
	return c.agentArgs(root, prompt, inv.Stream)
}

// commonPath returns the deepest directory containing every path
func commonPath(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	common := strings.Split(filepath.Clean(absPath(paths[0])), string(filepath.Separator))
	for _, p := range paths[1:] {
		parts := strings.Split(filepath.Clean(absPath(p)), string(filepath.Separator))
		n := 0
		for n < len(common) && n < len(parts) && common[n] == parts[n] {
			n++
		}
		common = common[:n]
	}
	joined := strings.Join(common, string(filepath.Separator))
	if joined == "" {
		return string(filepath.Separator)
	}
	return joined
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range sortedKeys(env) {
		out = append(out, k+"="+env[k])
	}
	return out
}

package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hochfrequenz/pr-fanout/internal/agent"
	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/ghapi"
	"github.com/hochfrequenz/pr-fanout/internal/gittest"
	"github.com/hochfrequenz/pr-fanout/internal/prompt"
	"github.com/hochfrequenz/pr-fanout/internal/repo"
	"github.com/hochfrequenz/pr-fanout/internal/submit"
	"github.com/hochfrequenz/pr-fanout/internal/vcs"
	"github.com/hochfrequenz/pr-fanout/internal/workspace"
)

// countingGit counts the VCS calls that matter for the scenario
type countingGit struct {
	*vcs.Git
	clones, commits, pushes int
	pushed                  []string
}

func (g *countingGit) Clone(ctx context.Context, url, path, cred string) error {
	g.clones++
	return g.Git.Clone(ctx, url, path, cred)
}

func (g *countingGit) Commit(ctx context.Context, path string, a vcs.Author, msg string) error {
	g.commits++
	return g.Git.Commit(ctx, path, a, msg)
}

func (g *countingGit) Push(ctx context.Context, path, branch, cred string) error {
	g.pushes++
	g.pushed = append(g.pushed, branch)
	return g.Git.Push(ctx, path, branch, cred)
}

type recordingPRs struct {
	creates []ghapi.PullRequestInput
}

func (r *recordingPRs) DefaultBranch(ctx context.Context, owner, name string) (string, error) {
	return "main", nil
}

func (r *recordingPRs) CreateOrUpdatePullRequest(ctx context.Context, in ghapi.PullRequestInput) (*ghapi.PullRequest, error) {
	r.creates = append(r.creates, in)
	return &ghapi.PullRequest{Number: 1, URL: "https://example.test/pull/1", Created: true}, nil
}

func (r *recordingPRs) AddLabels(ctx context.Context, owner, name string, number int, labels []string) error {
	return nil
}

func TestEndToEnd_InlinePromptEphemeral(t *testing.T) {
	ctx := context.Background()
	remote := gittest.NewRemote(t)
	root := t.TempDir()

	bundle, err := (&prompt.Resolver{}).Resolve(ctx, prompt.Options{Inline: "bump lib X to 2.0"})
	if err != nil {
		t.Fatal(err)
	}

	target, err := repo.Normalize(remote, "")
	if err != nil {
		t.Fatal(err)
	}

	git := &countingGit{Git: vcs.NewGit()}
	prs := &recordingPRs{}

	reg := agent.NewRegistry(0, nil)
	change, err := agent.NewCommand([]string{"sh", "-c", `cat >/dev/null; echo "libx==2.0" > "$PR_FANOUT_WORKSPACE/requirements.lock"`}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	reg.Bind(domain.RoleChange, change)

	w := &Workflow{
		Workspaces: workspace.NewManager(root, git, "", nil),
		Agents:     agent.NewRunner(reg, nil, nil, nil),
		Submitter:  submit.New(git, prs, nil),
		Bundle:     bundle,
		Settings: Settings{
			BranchPrefix: "pr-fanout",
			Title:        "Automated change",
			Credential:   "tok",
		},
	}

	res := w.Run(ctx, target)
	if res.Outcome != domain.OutcomeSubmitted {
		t.Fatalf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}

	if git.clones != 1 || git.commits != 1 || git.pushes != 1 {
		t.Errorf("clones=%d commits=%d pushes=%d, want 1 each", git.clones, git.commits, git.pushes)
	}
	if !strings.HasPrefix(git.pushed[0], "pr-fanout/") || len(git.pushed[0]) != len("pr-fanout/")+8 {
		t.Errorf("pushed branch = %q, want pr-fanout/<random>", git.pushed[0])
	}
	if len(prs.creates) != 1 || prs.creates[0].Head != git.pushed[0] {
		t.Errorf("pull request calls = %+v", prs.creates)
	}
	if _, err := os.Stat(res.Workspace); !os.IsNotExist(err) {
		t.Errorf("ephemeral workspace %s should be removed", res.Workspace)
	}
	if got := gittest.Run(t, remote, "show", git.pushed[0]+":requirements.lock"); got != "libx==2.0" {
		t.Errorf("pushed file = %q", got)
	}
}

func TestEndToEnd_NoOpChange(t *testing.T) {
	ctx := context.Background()
	remote := gittest.NewRemote(t)
	target, _ := repo.Normalize(remote, "")

	git := &countingGit{Git: vcs.NewGit()}
	reg := agent.NewRegistry(0, nil)
	noop, _ := agent.NewCommand([]string{"sh", "-c", "cat >/dev/null"}, nil, nil)
	reg.Bind(domain.RoleChange, noop)

	w := &Workflow{
		Workspaces: workspace.NewManager(t.TempDir(), git, "", nil),
		Agents:     agent.NewRunner(reg, nil, nil, nil),
		Submitter:  submit.New(git, &recordingPRs{}, nil),
		Bundle:     domain.PromptBundle{ChangeInstruction: "nothing", ChangeID: "noop"},
		Settings:   Settings{BranchPrefix: "pr-fanout", Credential: "tok"},
	}

	res := w.Run(ctx, target)
	if res.Outcome != domain.OutcomeNoOp {
		t.Fatalf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if git.commits != 0 || git.pushes != 0 {
		t.Errorf("commits=%d pushes=%d, want none", git.commits, git.pushes)
	}
	// deterministic workspace is kept for the next run
	if _, err := os.Stat(filepath.Join(res.Workspace, ".git")); err != nil {
		t.Errorf("deterministic workspace should be kept: %v", err)
	}

	// a second run with the same identity reuses it
	res2 := w.Run(ctx, target)
	if res2.Workspace != res.Workspace || git.clones != 1 {
		t.Errorf("second run: workspace %q (first %q), clones %d", res2.Workspace, res.Workspace, git.clones)
	}
}

package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/dlcdevkit/ddk-release/internal/execx"
)

// WorkingTreeClean reports whether the checkout has no staged, unstaged, or
// untracked changes. This is the hard precondition for the whole run: the
// version sync mutates manifests in place and the eventual release commit
// must contain nothing else.
func WorkingTreeClean(ctx context.Context, runner execx.Runner, projectDir string) (bool, error) {
	result, err := runner.Run(ctx, execx.Spec{
		Dir:  projectDir,
		Name: "git",
		Args: []string{"status", "--porcelain"},
	})
	if err != nil {
		return false, fmt.Errorf("publish: git status: %w", err)
	}
	return strings.TrimSpace(result.Output) == "", nil
}

func (p *Publisher) git(ctx context.Context, step string, args ...string) error {
	return p.runSideEffect(ctx, step, execx.Spec{Dir: p.projectDir, Name: "git", Args: args})
}

// runSideEffect executes a mutating external command, or logs it without
// running when the publisher is in dry-run mode.
func (p *Publisher) runSideEffect(ctx context.Context, step string, spec execx.Spec) error {
	if p.dryRun {
		p.log.Detailf("[dry-run] %s", spec.String())
		return nil
	}
	p.log.Detailf("publish: %s", spec.String())
	result, err := p.exec.Run(ctx, spec)
	if err != nil {
		if output := strings.TrimSpace(result.Output); output != "" {
			p.log.Detailf("%s", output)
		}
		return &GitError{Step: step, Err: err}
	}
	return nil
}

// runQuery executes a read-only external command even in dry-run mode.
func (p *Publisher) runQuery(ctx context.Context, spec execx.Spec) (execx.Result, error) {
	return p.exec.Run(ctx, spec)
}

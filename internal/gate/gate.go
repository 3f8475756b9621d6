// Package gate runs the validation commands that must pass before a release
// proceeds. Gates run strictly in the order configured, which places the
// core library ahead of the packages that bind against it.
package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/dlcdevkit/ddk-release/internal/config"
	"github.com/dlcdevkit/ddk-release/internal/execx"
	"github.com/dlcdevkit/ddk-release/internal/logging"
)

// GateError reports a required gate command that did not pass.
type GateError struct {
	Command  string
	ExitCode int
}

func (e *GateError) Error() string {
	return fmt.Sprintf("gate: %s failed with exit status %d", e.Command, e.ExitCode)
}

// Runner executes gates one at a time, aborting on the first required
// failure.
type Runner struct {
	exec execx.Runner
	log  *logging.Logger
}

// New builds a gate runner.
func New(exec execx.Runner, log *logging.Logger) *Runner {
	return &Runner{exec: exec, log: log}
}

// Run executes the gates in order. A required gate failure returns a
// *GateError; optional gate failures are logged as warnings and skipped.
func (r *Runner) Run(ctx context.Context, gates []config.GateConfig) error {
	for _, entry := range gates {
		spec := execx.Spec{
			Dir:  entry.Dir,
			Name: entry.Command[0],
			Args: entry.Command[1:],
		}
		r.log.Detailf("gate: %s (in %s)", spec.String(), entry.Dir)
		result, err := r.exec.Run(ctx, spec)
		if err == nil {
			continue
		}
		if !entry.Required {
			r.log.Warnf("optional gate %s failed, continuing: %v", spec.String(), err)
			continue
		}
		if output := strings.TrimSpace(result.Output); output != "" {
			r.log.Detailf("%s", output)
		}
		code, ok := execx.ExitStatus(err)
		if !ok {
			return fmt.Errorf("gate: run %s: %w", spec.String(), err)
		}
		return &GateError{Command: spec.String(), ExitCode: code}
	}
	return nil
}

// Package execx runs external commands with an explicit working directory.
// The pipeline never changes the process working directory; every invocation
// carries its own Dir.
package execx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Spec describes one external command invocation.
type Spec struct {
	// Dir is the working directory for the command. Empty means the
	// current process directory.
	Dir string

	// Name is the executable to run, resolved via PATH.
	Name string

	// Args are the command arguments, not including the executable name.
	Args []string

	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
}

// String renders the invocation for logs.
func (s Spec) String() string {
	parts := append([]string{s.Name}, s.Args...)
	return strings.Join(parts, " ")
}

// Result captures the observable outcome of a finished command.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// ExitError reports a command that started but exited non-zero.
type ExitError struct {
	Spec     Spec
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("execx: %s exited with status %d", e.Spec.String(), e.ExitCode)
}

// ExitStatus extracts the exit code from an error returned by a Runner.
// The second return is false when the error does not carry one.
func ExitStatus(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode, true
	}
	return 0, false
}

// Runner executes command specs. Implementations block until the command
// exits; the pipeline never runs two commands concurrently.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// Local runs commands on the host via os/exec.
type Local struct{}

// Run executes the spec and captures combined stdout and stderr. A non-zero
// exit status is returned as an *ExitError alongside the populated Result.
func (Local) Run(ctx context.Context, spec Spec) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(spec.Name) == "" {
		return Result{}, fmt.Errorf("execx: command name is required")
	}
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	start := time.Now()
	out, err := cmd.CombinedOutput()
	result := Result{
		Output:   string(out),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, &ExitError{Spec: spec, ExitCode: result.ExitCode, Output: result.Output}
		}
		return result, fmt.Errorf("execx: start %s: %w", spec.String(), err)
	}
	return result, nil
}

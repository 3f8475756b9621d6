// Package binding drives the external binding generator and the per-target
// compilation commands. Targets whose host requirements are not met are
// skipped with a warning; only required targets can fail the pipeline.
package binding

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/dlcdevkit/ddk-release/internal/config"
	"github.com/dlcdevkit/ddk-release/internal/execx"
	"github.com/dlcdevkit/ddk-release/internal/logging"
)

// GenerationError reports a required target whose generation command failed.
type GenerationError struct {
	Target string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("binding: generate %s: %v", e.Target, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// BuildError reports a required target whose build command failed.
type BuildError struct {
	Target string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("binding: build %s: %v", e.Target, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Builder runs generation and compilation for every applicable target.
type Builder struct {
	exec execx.Runner
	log  *logging.Logger
	env  config.Env
	goos string
}

// Option customizes the builder.
type Option func(*Builder)

// WithGOOS overrides the host operating system probe (tests).
func WithGOOS(goos string) Option {
	return func(b *Builder) {
		if goos != "" {
			b.goos = goos
		}
	}
}

// New builds a binding builder bound to the host environment.
func New(exec execx.Runner, log *logging.Logger, env config.Env, opts ...Option) *Builder {
	builder := &Builder{
		exec: exec,
		log:  log,
		env:  env,
		goos: runtime.GOOS,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder
}

// Run processes the targets in order: probe, generate, patch, build.
func (b *Builder) Run(ctx context.Context, targets []config.TargetConfig) error {
	for _, target := range targets {
		if reason := b.skipReason(target); reason != "" {
			b.log.Warnf("skipping %s target: %s", target.Name, reason)
			continue
		}
		if err := b.runTarget(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) runTarget(ctx context.Context, target config.TargetConfig) error {
	if err := b.runCommand(ctx, target.Generate); err != nil {
		if !target.Required {
			b.log.Warnf("generate %s failed, continuing: %v", target.Name, err)
			return nil
		}
		return &GenerationError{Target: target.Name, Err: err}
	}
	if target.Patch != nil {
		changed, err := ApplyToFile(*target.Patch)
		if err != nil {
			if !target.Required {
				b.log.Warnf("patch %s failed, continuing: %v", target.Name, err)
				return nil
			}
			return &GenerationError{Target: target.Name, Err: err}
		}
		if changed {
			b.log.Detailf("patched generated file %s", target.Patch.Path)
		}
	}
	if target.Build.IsZero() {
		return nil
	}
	if err := b.runCommand(ctx, target.Build); err != nil {
		if !target.Required {
			b.log.Warnf("build %s failed, continuing: %v", target.Name, err)
			return nil
		}
		return &BuildError{Target: target.Name, Err: err}
	}
	return nil
}

func (b *Builder) runCommand(ctx context.Context, spec config.CommandSpec) error {
	if spec.IsZero() {
		return nil
	}
	run := execx.Spec{Dir: spec.Dir, Name: spec.Command[0], Args: spec.Command[1:]}
	b.log.Detailf("binding: %s (in %s)", run.String(), spec.Dir)
	result, err := b.exec.Run(ctx, run)
	if output := strings.TrimSpace(result.Output); output != "" {
		b.log.Detailf("%s", output)
	}
	return err
}

// skipReason evaluates the host capability probes. Empty means applicable.
func (b *Builder) skipReason(target config.TargetConfig) string {
	if target.Mobile && b.env.SkipMobile {
		return "mobile targets disabled by DDK_RELEASE_SKIP_MOBILE"
	}
	switch {
	case target.Probe == config.ProbeAlways:
		return ""
	case target.Probe == config.ProbeDarwin:
		if b.goos != "darwin" {
			return fmt.Sprintf("requires a macOS host, running on %s", b.goos)
		}
	default:
		if name := config.ProbeEnvVar(target.Probe); name != "" && b.env.Lookup(name) == "" {
			return fmt.Sprintf("%s is not set", name)
		}
	}
	return ""
}

// Package pipeline drives a release run through its fixed stage order:
// version sync, gates, binding builds, packaging, publication, and
// propagation verification. Stages run strictly sequentially and the first
// fatal failure aborts the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dlcdevkit/ddk-release/internal/binding"
	"github.com/dlcdevkit/ddk-release/internal/config"
	"github.com/dlcdevkit/ddk-release/internal/execx"
	"github.com/dlcdevkit/ddk-release/internal/gate"
	"github.com/dlcdevkit/ddk-release/internal/logging"
	"github.com/dlcdevkit/ddk-release/internal/manifest"
	"github.com/dlcdevkit/ddk-release/internal/pack"
	"github.com/dlcdevkit/ddk-release/internal/publish"
	"github.com/dlcdevkit/ddk-release/internal/version"
)

// ErrDirtyWorkingTree is returned when the checkout has uncommitted changes
// before the run starts.
var ErrDirtyWorkingTree = errors.New("pipeline: working tree is not clean")

// stage is one named unit of work. Stages execute in slice order; a fatal
// stage failure halts the pipeline immediately, a non-fatal one downgrades
// to a warning.
type stage struct {
	name        string
	description string
	fatal       bool
	run         func(context.Context) error
}

// Outcome summarizes a finished run.
type Outcome struct {
	Record   *publish.ReleaseRecord
	Warnings []string
}

// Pipeline owns the components for one release run. It must never run
// concurrently against the same checkout; manifests and the git tree are
// mutated in place without locking.
type Pipeline struct {
	cfg           *config.Config
	log           *logging.Logger
	exec          execx.Runner
	builder       *binding.Builder
	packager      *pack.Packager
	publisher     *publish.Publisher
	keepArtifacts bool
}

// Option customizes the pipeline.
type Option func(*options)

type options struct {
	dryRun        bool
	keepArtifacts bool
	builderOpts   []binding.Option
	publisherOpts []publish.Option
}

// WithDryRun rehearses the run: gates and builds execute, git and registry
// commands are logged instead of run.
func WithDryRun() Option {
	return func(o *options) {
		o.dryRun = true
	}
}

// WithKeepArtifacts leaves the scratch directory in place after success.
func WithKeepArtifacts() Option {
	return func(o *options) {
		o.keepArtifacts = true
	}
}

// WithBuilderOptions forwards options to the binding builder (tests).
func WithBuilderOptions(opts ...binding.Option) Option {
	return func(o *options) {
		o.builderOpts = append(o.builderOpts, opts...)
	}
}

// WithPublisherOptions forwards options to the publisher (tests).
func WithPublisherOptions(opts ...publish.Option) Option {
	return func(o *options) {
		o.publisherOpts = append(o.publisherOpts, opts...)
	}
}

// New wires a pipeline from the loaded configuration.
func New(cfg *config.Config, log *logging.Logger, exec execx.Runner, opts ...Option) *Pipeline {
	var applied options
	for _, opt := range opts {
		opt(&applied)
	}
	publisherOpts := applied.publisherOpts
	if applied.dryRun {
		publisherOpts = append(publisherOpts, publish.WithDryRun())
	}
	return &Pipeline{
		cfg:           cfg,
		log:           log,
		exec:          exec,
		builder:       binding.New(exec, log, cfg.Env, applied.builderOpts...),
		packager:      pack.New(log, cfg.Release.Component, cfg.ScratchDir()),
		publisher:     publish.New(exec, log, cfg.Release.Publish, cfg.Env, cfg.ProjectDir, publisherOpts...),
		keepArtifacts: applied.keepArtifacts,
	}
}

// Run executes the full release for one version. The returned outcome holds
// the release record and any propagation warnings; a non-nil error means
// the run failed and the process should exit non-zero.
func (p *Pipeline) Run(ctx context.Context, v version.ReleaseVersion) (Outcome, error) {
	outcome := Outcome{}

	clean, err := publish.WorkingTreeClean(ctx, p.exec, p.cfg.ProjectDir)
	if err != nil {
		return outcome, err
	}
	if !clean {
		p.log.Errorf("commit or stash local changes before releasing")
		return outcome, ErrDirtyWorkingTree
	}

	var artifacts []pack.Artifact
	stages := []stage{
		{
			name:        "sync-versions",
			description: fmt.Sprintf("set every manifest to %s", v.String()),
			fatal:       true,
			run: func(ctx context.Context) error {
				return p.syncVersions(v)
			},
		},
		{
			name:        "gates",
			description: "run package test gates in dependency order",
			fatal:       true,
			run: func(ctx context.Context) error {
				return gate.New(p.exec, p.log).Run(ctx, p.cfg.Release.Gates)
			},
		},
		{
			name:        "bindings",
			description: "generate and build binding targets",
			fatal:       true,
			run: func(ctx context.Context) error {
				return p.builder.Run(ctx, p.cfg.Release.Targets)
			},
		},
		{
			name:        "package",
			description: "package build outputs into release artifacts",
			fatal:       true,
			run: func(ctx context.Context) error {
				if err := p.packager.Reset(); err != nil {
					return err
				}
				var err error
				artifacts, err = p.packager.Package(p.cfg.Release.Targets, v)
				return err
			},
		},
		{
			name:        "publish",
			description: "commit, tag, push, release, and publish registries",
			fatal:       true,
			run: func(ctx context.Context) error {
				record, err := p.publisher.Publish(ctx, v, artifacts, p.cfg.Release.Packages)
				outcome.Record = record
				return err
			},
		},
		{
			name:        "verify",
			description: "check registry-visible versions after propagation",
			fatal:       false,
			run: func(ctx context.Context) error {
				outcome.Warnings = p.publisher.Verify(ctx, v, p.cfg.Release.Packages)
				for _, warning := range outcome.Warnings {
					p.log.Warnf("propagation: %s", warning)
				}
				return nil
			},
		},
	}

	for _, s := range stages {
		p.log.Stagef("%s: %s", s.name, s.description)
		if err := s.run(ctx); err != nil {
			if !s.fatal {
				p.log.Warnf("%s: %v", s.name, err)
				continue
			}
			p.reportFailure(s.name, v, outcome.Record, err)
			return outcome, fmt.Errorf("pipeline: stage %s: %w", s.name, err)
		}
	}

	if !p.keepArtifacts {
		if err := p.packager.Remove(); err != nil {
			p.log.Warnf("cleanup: %v", err)
		}
	}
	return outcome, nil
}

func (p *Pipeline) syncVersions(v version.ReleaseVersion) error {
	files := manifest.FromPackages(p.cfg.Release.Packages)
	results, err := manifest.Sync(files, v)
	for _, result := range results {
		if result.Skipped {
			p.log.Warnf("manifest %s missing, skipped (optional)", result.File.Name)
			continue
		}
		p.log.Detailf("manifest %s: %s -> %s", result.File.Name, result.Previous, v.String())
	}
	return err
}

// reportFailure prints recovery guidance. Before the host release exists
// every side effect is local and undoable; afterwards the release is a
// public commitment and only the remaining steps are listed.
func (p *Pipeline) reportFailure(stageName string, v version.ReleaseVersion, record *publish.ReleaseRecord, err error) {
	p.log.Errorf("stage %s failed: %v", stageName, err)
	if record != nil {
		p.log.Checklist("release "+record.Tag+" already exists; finish manually", []string{
			"check which packages published: npm view / cargo search",
			"publish the remaining packages by hand",
			"artifacts kept in " + p.packager.Scratch(),
		})
		return
	}
	p.log.Checklist("recovery checklist", []string{
		"inspect local state: git status",
		"revert the release commit if created: git reset --hard HEAD~1",
		"delete the local tag if created: git tag -d " + v.Tag(),
		"delete the remote tag if pushed: git push " + p.cfg.Release.Publish.Remote + " :refs/tags/" + v.Tag(),
		"check the release host for a partial release: gh release view " + v.Tag(),
		"artifacts kept in " + p.packager.Scratch(),
	})
}

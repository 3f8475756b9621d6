// Package publish performs the externally visible release sequence: commit,
// tag, push, host release with uploaded assets, registry publishes, and a
// best-effort propagation check. Nothing here is rolled back automatically;
// a pushed tag or a published package is not safely revocable by this tool.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dlcdevkit/ddk-release/internal/config"
	"github.com/dlcdevkit/ddk-release/internal/execx"
	"github.com/dlcdevkit/ddk-release/internal/logging"
	"github.com/dlcdevkit/ddk-release/internal/pack"
	"github.com/dlcdevkit/ddk-release/internal/version"
)

// PublishedPackage is one registry publication performed by the run.
type PublishedPackage struct {
	Name     string
	Registry string
	Version  string
}

// ReleaseRecord is the durable public outcome of a release. Once created it
// is never retracted; later verification problems are reported as warnings.
type ReleaseRecord struct {
	Version   version.ReleaseVersion
	Tag       string
	ReleaseID string
	Artifacts []pack.Artifact
	Published []PublishedPackage
}

// Publisher drives git, the release host CLI, and the package registries.
type Publisher struct {
	exec       execx.Runner
	log        *logging.Logger
	cfg        config.PublishConfig
	env        config.Env
	projectDir string
	dryRun     bool
	sleep      func(time.Duration)
	homeDir    func() (string, error)
}

// Option customizes the publisher.
type Option func(*Publisher)

// WithDryRun logs side-effecting commands instead of running them.
func WithDryRun() Option {
	return func(p *Publisher) { p.dryRun = true }
}

// WithSleep replaces the propagation delay (tests).
func WithSleep(sleep func(time.Duration)) Option {
	return func(p *Publisher) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithHomeDir overrides credential file discovery (tests).
func WithHomeDir(home func() (string, error)) Option {
	return func(p *Publisher) {
		if home != nil {
			p.homeDir = home
		}
	}
}

// New builds a publisher rooted at the project checkout.
func New(exec execx.Runner, log *logging.Logger, cfg config.PublishConfig, env config.Env, projectDir string, opts ...Option) *Publisher {
	publisher := &Publisher{
		exec:       exec,
		log:        log,
		cfg:        cfg,
		env:        env,
		projectDir: projectDir,
		sleep:      time.Sleep,
		homeDir:    os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(publisher)
	}
	return publisher
}

// Publish runs the release sequence. The returned record is non-nil once
// the host release exists, even when a later step fails: the caller uses
// that to distinguish recoverable aborts from post-release failures.
func (p *Publisher) Publish(ctx context.Context, v version.ReleaseVersion, artifacts []pack.Artifact, packages []config.PackageConfig) (*ReleaseRecord, error) {
	if err := p.commit(ctx, v); err != nil {
		return nil, err
	}
	if err := p.tag(ctx, v); err != nil {
		return nil, err
	}
	// Branch and tag push are separate operations: a failure between them
	// leaves a locally valid, remotely absent tag, which is a documented
	// recoverable state.
	if err := p.git(ctx, "push branch", "push", p.cfg.Remote, "HEAD"); err != nil {
		return nil, err
	}
	if err := p.git(ctx, "push tag", "push", p.cfg.Remote, v.Tag()); err != nil {
		return nil, err
	}
	if err := p.createRelease(ctx, v, artifacts, packages); err != nil {
		return nil, err
	}
	record := &ReleaseRecord{
		Version:   v,
		Tag:       v.Tag(),
		ReleaseID: v.Tag(),
		Artifacts: artifacts,
	}
	for _, pkg := range packages {
		if !pkg.Publish {
			continue
		}
		if err := p.publishPackage(ctx, pkg); err != nil {
			return record, err
		}
		record.Published = append(record.Published, PublishedPackage{
			Name:     pkg.Name,
			Registry: pkg.Registry,
			Version:  v.String(),
		})
	}
	return record, nil
}

// Verify waits for registry propagation and compares each published version
// against the release version. Mismatches come back as warning messages;
// publication already happened and cannot be retracted, so none of this can
// fail the run.
func (p *Publisher) Verify(ctx context.Context, v version.ReleaseVersion, packages []config.PackageConfig) []string {
	if p.dryRun {
		p.log.Detailf("[dry-run] skipping registry propagation check")
		return nil
	}
	published := make([]config.PackageConfig, 0, len(packages))
	for _, pkg := range packages {
		if pkg.Publish {
			published = append(published, pkg)
		}
	}
	if len(published) == 0 {
		return nil
	}
	p.log.Detailf("publish: waiting %s for registry propagation", p.cfg.PropagationWait.Std())
	p.sleep(p.cfg.PropagationWait.Std())
	var warnings []string
	for _, pkg := range published {
		visible, err := p.registryVersion(ctx, pkg)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: could not query %s registry: %v", pkg.Name, pkg.Registry, err))
			continue
		}
		if visible != v.String() {
			warnings = append(warnings, fmt.Sprintf("%s: registry reports %s, expected %s", pkg.Name, visible, v.String()))
			continue
		}
		p.log.Detailf("publish: %s@%s visible on %s", pkg.Name, visible, pkg.Registry)
	}
	return warnings
}

func (p *Publisher) commit(ctx context.Context, v version.ReleaseVersion) error {
	if err := p.git(ctx, "stage changes", "add", "-A"); err != nil {
		return err
	}
	message := fmt.Sprintf("chore: release %s", v.String())
	return p.git(ctx, "commit", "commit", "-m", message)
}

func (p *Publisher) tag(ctx context.Context, v version.ReleaseVersion) error {
	message := fmt.Sprintf("Release %s", v.String())
	return p.git(ctx, "tag", "tag", "-a", v.Tag(), "-m", message)
}

func (p *Publisher) createRelease(ctx context.Context, v version.ReleaseVersion, artifacts []pack.Artifact, packages []config.PackageConfig) error {
	if err := p.checkReleaseHostAuth(ctx); err != nil {
		return err
	}
	title := strings.ReplaceAll(p.cfg.ReleaseTitle, "{version}", v.String())
	notes := renderReleaseNotes(v, artifacts, packages)
	args := []string{"release", "create", v.Tag(), "--title", title, "--notes", notes}
	for _, artifact := range artifacts {
		label := pack.StripVersionSuffix(filepath.Base(artifact.Path), v)
		args = append(args, fmt.Sprintf("%s#%s", artifact.Path, label))
	}
	return p.runSideEffect(ctx, "create release", execx.Spec{Dir: p.projectDir, Name: "gh", Args: args})
}

func (p *Publisher) checkReleaseHostAuth(ctx context.Context) error {
	if p.dryRun {
		return nil
	}
	if _, err := p.runQuery(ctx, execx.Spec{Dir: p.projectDir, Name: "gh", Args: []string{"auth", "status"}}); err != nil {
		return &AuthError{Service: "github", Guidance: "run `gh auth login` and retry"}
	}
	return nil
}

func (p *Publisher) publishPackage(ctx context.Context, pkg config.PackageConfig) error {
	switch pkg.Registry {
	case config.RegistryNPM:
		if err := p.checkNPMAuth(ctx, pkg); err != nil {
			return err
		}
		spec := execx.Spec{Dir: pkg.Dir, Name: "npm", Args: []string{"publish", "--access", "public"}}
		if err := p.runSideEffect(ctx, "npm publish "+pkg.Name, spec); err != nil {
			return &PublishError{Package: pkg.Name, Err: err}
		}
	case config.RegistryCrates:
		if err := p.checkCargoAuth(pkg); err != nil {
			return err
		}
		spec := execx.Spec{Dir: pkg.Dir, Name: "cargo", Args: []string{"publish"}}
		if err := p.runSideEffect(ctx, "cargo publish "+pkg.Name, spec); err != nil {
			return &PublishError{Package: pkg.Name, Err: err}
		}
	default:
		return &PublishError{Package: pkg.Name, Err: fmt.Errorf("no publisher for registry %q", pkg.Registry)}
	}
	return nil
}

func (p *Publisher) checkNPMAuth(ctx context.Context, pkg config.PackageConfig) error {
	if p.dryRun {
		return nil
	}
	if _, err := p.runQuery(ctx, execx.Spec{Dir: pkg.Dir, Name: "npm", Args: []string{"whoami"}}); err != nil {
		return &AuthError{Service: "npm", Guidance: "run `npm login` and retry"}
	}
	return nil
}

func (p *Publisher) checkCargoAuth(pkg config.PackageConfig) error {
	if p.dryRun {
		return nil
	}
	if p.env.CargoRegistryToken != "" {
		return nil
	}
	home, err := p.homeDir()
	if err == nil {
		for _, name := range []string{"credentials.toml", "credentials"} {
			if _, statErr := os.Stat(filepath.Join(home, ".cargo", name)); statErr == nil {
				return nil
			} else if !errors.Is(statErr, fs.ErrNotExist) {
				return fmt.Errorf("publish: check cargo credentials: %w", statErr)
			}
		}
	}
	return &AuthError{Service: "crates.io", Guidance: "run `cargo login` or set CARGO_REGISTRY_TOKEN"}
}

var cratesSearchRe = regexp.MustCompile(`^\s*[\w-]+\s*=\s*"([^"]+)"`)

// registryVersion queries the registry-visible version of a package.
func (p *Publisher) registryVersion(ctx context.Context, pkg config.PackageConfig) (string, error) {
	switch pkg.Registry {
	case config.RegistryNPM:
		result, err := p.runQuery(ctx, execx.Spec{Dir: p.projectDir, Name: "npm", Args: []string{"view", pkg.Name, "version"}})
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(result.Output), nil
	case config.RegistryCrates:
		result, err := p.runQuery(ctx, execx.Spec{Dir: p.projectDir, Name: "cargo", Args: []string{"search", pkg.Name, "--limit", "1"}})
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(result.Output, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), pkg.Name) {
				continue
			}
			if m := cratesSearchRe.FindStringSubmatch(line); m != nil {
				return m[1], nil
			}
		}
		return "", fmt.Errorf("crate %s not found in search output", pkg.Name)
	default:
		return "", fmt.Errorf("no registry query for %q", pkg.Registry)
	}
}

func renderReleaseNotes(v version.ReleaseVersion, artifacts []pack.Artifact, packages []config.PackageConfig) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("## Release %s\n\n", v.String()))
	b.WriteString("### Packages\n\n")
	for _, pkg := range packages {
		if !pkg.Publish {
			continue
		}
		b.WriteString(fmt.Sprintf("- %s@%s (%s)\n", pkg.Name, v.String(), pkg.Registry))
	}
	if len(artifacts) > 0 {
		b.WriteString("\n### Artifacts\n\n")
		for _, artifact := range artifacts {
			label := pack.StripVersionSuffix(filepath.Base(artifact.Path), v)
			b.WriteString(fmt.Sprintf("- %s (%d bytes)\n", label, artifact.Size))
		}
	}
	return b.String()
}

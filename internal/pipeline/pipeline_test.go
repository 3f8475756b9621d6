package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dlcdevkit/ddk-release/internal/config"
	"github.com/dlcdevkit/ddk-release/internal/execx"
	"github.com/dlcdevkit/ddk-release/internal/gate"
	"github.com/dlcdevkit/ddk-release/internal/logging"
	"github.com/dlcdevkit/ddk-release/internal/publish"
	"github.com/dlcdevkit/ddk-release/internal/version"
)

type scripted struct {
	output string
	code   int
}

type fakeRunner struct {
	calls   []execx.Spec
	scripts map[string]scripted
}

func (f *fakeRunner) Run(_ context.Context, spec execx.Spec) (execx.Result, error) {
	f.calls = append(f.calls, spec)
	script, ok := f.scripts[spec.String()]
	if !ok {
		return execx.Result{}, nil
	}
	result := execx.Result{ExitCode: script.code, Output: script.output}
	if script.code != 0 {
		return result, &execx.ExitError{Spec: spec, ExitCode: script.code, Output: script.output}
	}
	return result, nil
}

func (f *fakeRunner) commandLines() []string {
	lines := make([]string, len(f.calls))
	for i, call := range f.calls {
		lines[i] = call.String()
	}
	return lines
}

const testConfig = `
component: ddk
scratch_dir: dist/release
packages:
  - name: ddk-ffi
    manifest: ddk-ffi/Cargo.toml
    kind: cargo
    registry: crates
    publish: true
  - name: ddk-ts
    manifest: ddk-ts/package.json
    kind: npm
    registry: npm
    publish: true
gates:
  - dir: ddk-ffi
    command: [cargo, test]
    required: true
targets:
  - name: node
    tag: node
    required: true
    generate:
      dir: ddk-ts
      command: [npm, run, build]
    output: ddk-ts/index.node
publish:
  propagation_wait: 1s
`

func seedProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"release.yaml":        testConfig,
		"ddk-ffi/Cargo.toml":  "[package]\nname = \"ddk-ffi\"\nversion = \"1.1.9\"\n",
		"ddk-ts/package.json": "{\n  \"name\": \"ddk-ts\",\n  \"version\": \"1.1.9\"\n}\n",
		"ddk-ts/index.node":   "native-module",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return dir
}

func newTestPipeline(t *testing.T, dir string, runner *fakeRunner, opts ...Option) (*Pipeline, *strings.Builder) {
	t.Helper()
	t.Setenv("CARGO_REGISTRY_TOKEN", "test-token")
	cfg, err := config.Load(dir, "")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	var console strings.Builder
	logger, err := logging.New(dir, logging.WithConsole(&console), logging.WithoutColor())
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	opts = append([]Option{
		WithPublisherOptions(publish.WithSleep(func(time.Duration) {})),
	}, opts...)
	return New(cfg, logger, runner, opts...), &console
}

func mustVersion(t *testing.T, raw string) version.ReleaseVersion {
	t.Helper()
	v, err := version.Parse(raw)
	if err != nil {
		t.Fatalf("parse version: %v", err)
	}
	return v
}

func TestRunHappyPath(t *testing.T) {
	dir := seedProject(t)
	runner := &fakeRunner{scripts: map[string]scripted{
		"npm view ddk-ts version":        {output: "1.2.0\n"},
		"cargo search ddk-ffi --limit 1": {output: "ddk-ffi = \"1.2.0\"\n"},
	}}
	pipeline, _ := newTestPipeline(t, dir, runner)

	outcome, err := pipeline.Run(context.Background(), mustVersion(t, "1.2.0"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcome.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", outcome.Warnings)
	}
	if outcome.Record == nil || outcome.Record.Tag != "v1.2.0" {
		t.Fatalf("unexpected record: %+v", outcome.Record)
	}
	if len(outcome.Record.Artifacts) != 1 {
		t.Fatalf("expected one artifact: %+v", outcome.Record.Artifacts)
	}
	if filepath.Base(outcome.Record.Artifacts[0].Path) != "ddk-node-1.2.0.node" {
		t.Fatalf("artifact name: %s", outcome.Record.Artifacts[0].Path)
	}
	if len(outcome.Record.Published) != 2 {
		t.Fatalf("published packages: %+v", outcome.Record.Published)
	}

	for _, manifestBody := range []string{
		readFile(t, filepath.Join(dir, "ddk-ffi", "Cargo.toml")),
		readFile(t, filepath.Join(dir, "ddk-ts", "package.json")),
	} {
		if !strings.Contains(manifestBody, "1.2.0") || strings.Contains(manifestBody, "1.1.9") {
			t.Fatalf("manifest not synced:\n%s", manifestBody)
		}
	}

	lines := runner.commandLines()
	if lines[0] != "git status --porcelain" {
		t.Fatalf("precondition did not run first: %v", lines)
	}
	if indexOf(lines, "cargo test") > indexOf(lines, "npm run build") {
		t.Fatalf("gates did not run before binding build: %v", lines)
	}
	if indexOf(lines, "git commit -m chore: release 1.2.0") < 0 {
		t.Fatalf("missing release commit: %v", lines)
	}

	// Scratch dir is removed after a fully successful run.
	if _, err := os.Stat(filepath.Join(dir, "dist", "release")); !os.IsNotExist(err) {
		t.Fatalf("scratch dir not cleaned up")
	}
}

func TestRunAbortsOnDirtyWorkingTree(t *testing.T) {
	dir := seedProject(t)
	runner := &fakeRunner{scripts: map[string]scripted{
		"git status --porcelain": {output: " M ddk-ffi/src/lib.rs\n"},
	}}
	pipeline, _ := newTestPipeline(t, dir, runner)

	_, err := pipeline.Run(context.Background(), mustVersion(t, "1.2.0"))
	if !errors.Is(err, ErrDirtyWorkingTree) {
		t.Fatalf("expected ErrDirtyWorkingTree, got %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("pipeline ran past the precondition: %v", runner.commandLines())
	}
	if body := readFile(t, filepath.Join(dir, "ddk-ffi", "Cargo.toml")); !strings.Contains(body, "1.1.9") {
		t.Fatalf("manifest mutated despite dirty tree:\n%s", body)
	}
}

func TestRunFailFastOnRequiredGate(t *testing.T) {
	dir := seedProject(t)
	runner := &fakeRunner{scripts: map[string]scripted{
		"cargo test": {code: 101, output: "test failed"},
	}}
	pipeline, console := newTestPipeline(t, dir, runner)

	_, err := pipeline.Run(context.Background(), mustVersion(t, "1.2.0"))
	var gateErr *gate.GateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("expected *GateError, got %v", err)
	}
	if indexOf(runner.commandLines(), "npm run build") >= 0 {
		t.Fatalf("binding build ran after gate failure: %v", runner.commandLines())
	}
	if !strings.Contains(console.String(), "recovery checklist") {
		t.Fatalf("missing recovery checklist:\n%s", console.String())
	}
	if !strings.Contains(console.String(), "git tag -d v1.2.0") {
		t.Fatalf("checklist does not name the tag:\n%s", console.String())
	}
}

func TestRunSucceedsWithPropagationMismatchWarning(t *testing.T) {
	dir := seedProject(t)
	runner := &fakeRunner{scripts: map[string]scripted{
		"npm view ddk-ts version":        {output: "1.1.9\n"},
		"cargo search ddk-ffi --limit 1": {output: "ddk-ffi = \"1.2.0\"\n"},
	}}
	pipeline, console := newTestPipeline(t, dir, runner)

	outcome, err := pipeline.Run(context.Background(), mustVersion(t, "1.2.0"))
	if err != nil {
		t.Fatalf("Run should succeed despite propagation mismatch: %v", err)
	}
	if len(outcome.Warnings) != 1 {
		t.Fatalf("expected one warning: %v", outcome.Warnings)
	}
	if !strings.Contains(console.String(), "warning: propagation: ddk-ts") {
		t.Fatalf("mismatch warning not printed:\n%s", console.String())
	}
	// Both published packages are named: the mismatch as a warning, the
	// converged one with its registry-visible version.
	if !strings.Contains(console.String(), "ddk-ffi@1.2.0") {
		t.Fatalf("converged package not reported:\n%s", console.String())
	}
	if !strings.Contains(console.String(), "1.1.9") {
		t.Fatalf("registry-visible version missing from warning:\n%s", console.String())
	}
}

func TestRunKeepsScratchOnPublishFailure(t *testing.T) {
	dir := seedProject(t)
	runner := &fakeRunner{scripts: map[string]scripted{
		"git push origin v1.2.0": {code: 1, output: "rejected"},
	}}
	pipeline, _ := newTestPipeline(t, dir, runner)

	_, err := pipeline.Run(context.Background(), mustVersion(t, "1.2.0"))
	if err == nil {
		t.Fatalf("expected failure")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "dist", "release")); statErr != nil {
		t.Fatalf("scratch dir should be kept for postmortem: %v", statErr)
	}
}

func TestRunDryRunSkipsSideEffects(t *testing.T) {
	dir := seedProject(t)
	runner := &fakeRunner{}
	pipeline, _ := newTestPipeline(t, dir, runner, WithDryRun(), WithKeepArtifacts())

	outcome, err := pipeline.Run(context.Background(), mustVersion(t, "1.2.0"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Record == nil {
		t.Fatalf("dry run should report the planned record")
	}
	for _, line := range runner.commandLines() {
		if strings.HasPrefix(line, "git push") || strings.HasPrefix(line, "gh release") ||
			strings.HasPrefix(line, "npm publish") || strings.HasPrefix(line, "cargo publish") {
			t.Fatalf("dry run executed side effect: %s", line)
		}
	}
	// Gates and builds still run in a rehearsal.
	if indexOf(runner.commandLines(), "cargo test") < 0 || indexOf(runner.commandLines(), "npm run build") < 0 {
		t.Fatalf("dry run skipped gates or builds: %v", runner.commandLines())
	}
}

func indexOf(lines []string, target string) int {
	for i, line := range lines {
		if line == target {
			return i
		}
	}
	return -1
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

package gate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dlcdevkit/ddk-release/internal/config"
	"github.com/dlcdevkit/ddk-release/internal/execx"
	"github.com/dlcdevkit/ddk-release/internal/logging"
)

type fakeRunner struct {
	calls []execx.Spec
	fail  map[string]int
}

func (f *fakeRunner) Run(_ context.Context, spec execx.Spec) (execx.Result, error) {
	f.calls = append(f.calls, spec)
	if code, ok := f.fail[spec.String()]; ok {
		return execx.Result{ExitCode: code, Output: "boom"}, &execx.ExitError{Spec: spec, ExitCode: code, Output: "boom"}
	}
	return execx.Result{}, nil
}

func newTestLogger(t *testing.T) (*logging.Logger, *strings.Builder) {
	t.Helper()
	var console strings.Builder
	logger, err := logging.New(t.TempDir(), logging.WithConsole(&console), logging.WithoutColor())
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, &console
}

func TestRunExecutesGatesInOrder(t *testing.T) {
	runner := &fakeRunner{}
	logger, _ := newTestLogger(t)
	gates := []config.GateConfig{
		{Dir: "/src/ddk-ffi", Command: []string{"cargo", "test"}, Required: true},
		{Dir: "/src/ddk-ts", Command: []string{"npm", "test"}, Required: false},
	}
	if err := New(runner, logger).Run(context.Background(), gates); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(runner.calls))
	}
	if runner.calls[0].String() != "cargo test" || runner.calls[0].Dir != "/src/ddk-ffi" {
		t.Fatalf("first gate out of order: %+v", runner.calls[0])
	}
	if runner.calls[1].String() != "npm test" {
		t.Fatalf("second gate out of order: %+v", runner.calls[1])
	}
}

func TestRunAbortsOnRequiredFailure(t *testing.T) {
	runner := &fakeRunner{fail: map[string]int{"cargo test": 101}}
	logger, _ := newTestLogger(t)
	gates := []config.GateConfig{
		{Dir: "/src/ddk-ffi", Command: []string{"cargo", "test"}, Required: true},
		{Dir: "/src/ddk-ts", Command: []string{"npm", "test"}, Required: true},
	}
	err := New(runner, logger).Run(context.Background(), gates)
	var gateErr *GateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("expected *GateError, got %v", err)
	}
	if gateErr.Command != "cargo test" || gateErr.ExitCode != 101 {
		t.Fatalf("unexpected gate error: %+v", gateErr)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("later gate ran after failure: %d calls", len(runner.calls))
	}
}

func TestRunContinuesPastOptionalFailure(t *testing.T) {
	runner := &fakeRunner{fail: map[string]int{"npm test": 1}}
	logger, console := newTestLogger(t)
	gates := []config.GateConfig{
		{Dir: "/src/ddk-ts", Command: []string{"npm", "test"}, Required: false},
		{Dir: "/src/ddk-ffi", Command: []string{"cargo", "test"}, Required: true},
	}
	if err := New(runner, logger).Run(context.Background(), gates); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("pipeline stopped at optional gate: %d calls", len(runner.calls))
	}
	if !strings.Contains(console.String(), "warning: optional gate npm test failed") {
		t.Fatalf("missing warning: %s", console.String())
	}
}

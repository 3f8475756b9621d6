package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console strings.Builder
	logger, err := New(dir, WithConsole(&console), WithoutColor())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Stagef("syncing versions")
	logger.Warnf("npm gate skipped")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, LogDirName, "logs", "release.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"==> syncing versions", "warning: npm gate skipped"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("log file missing %q:\n%s", want, data)
		}
		if !strings.Contains(console.String(), want) {
			t.Fatalf("console missing %q:\n%s", want, console.String())
		}
	}
}

func TestChecklistListsItems(t *testing.T) {
	dir := t.TempDir()
	var console strings.Builder
	logger, err := New(dir, WithConsole(&console), WithoutColor())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()
	logger.Checklist("recovery steps", []string{"check git status", "delete local tag v1.2.0"})
	out := console.String()
	if !strings.Contains(out, "error: recovery steps") {
		t.Fatalf("missing title: %s", out)
	}
	if !strings.Contains(out, "  - delete local tag v1.2.0") {
		t.Fatalf("missing item: %s", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Printf("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close on nil: %v", err)
	}
}

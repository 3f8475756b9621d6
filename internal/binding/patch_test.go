package binding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dlcdevkit/ddk-release/internal/config"
)

var headerRule = config.PatchRule{
	Path:    "ddk_ffiFFI.h",
	Find:    `#include "ddk_ffiFFI.h"`,
	Replace: `#include "ddk_ffi_ffi.h"`,
}

func TestApplyReplacesDefectiveInclude(t *testing.T) {
	input := "#pragma once\n#include \"ddk_ffiFFI.h\"\nint ddk_version(void);\n"
	got := Apply(headerRule, input)
	want := "#pragma once\n#include \"ddk_ffi_ffi.h\"\nint ddk_version(void);\n"
	if got != want {
		t.Fatalf("Apply = %q", got)
	}
}

func TestApplyIsAFixedPoint(t *testing.T) {
	inputs := []string{
		"#include \"ddk_ffiFFI.h\"\n",
		"#include \"ddk_ffi_ffi.h\"\n",
		"no include here\n",
		"",
	}
	for _, input := range inputs {
		once := Apply(headerRule, input)
		twice := Apply(headerRule, once)
		if once != twice {
			t.Fatalf("Apply not idempotent for %q: %q vs %q", input, once, twice)
		}
	}
}

func TestApplyToFilePatchesOnce(t *testing.T) {
	dir := t.TempDir()
	rule := headerRule
	rule.Path = filepath.Join(dir, "ddk_ffiFFI.h")
	if err := os.WriteFile(rule.Path, []byte("#include \"ddk_ffiFFI.h\"\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	changed, err := ApplyToFile(rule)
	if err != nil {
		t.Fatalf("ApplyToFile: %v", err)
	}
	if !changed {
		t.Fatalf("expected change on first application")
	}
	changed, err = ApplyToFile(rule)
	if err != nil {
		t.Fatalf("ApplyToFile second pass: %v", err)
	}
	if changed {
		t.Fatalf("second application modified the file")
	}
	data, err := os.ReadFile(rule.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "#include \"ddk_ffi_ffi.h\"\n" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestApplyToFileMissingTarget(t *testing.T) {
	rule := headerRule
	rule.Path = filepath.Join(t.TempDir(), "missing.h")
	if _, err := ApplyToFile(rule); err == nil {
		t.Fatalf("expected error for missing generated file")
	}
}

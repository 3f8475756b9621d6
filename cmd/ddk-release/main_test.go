package main

import "testing"

func TestRunHelpExitsZero(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"-h"}} {
		if code := run(args); code != 0 {
			t.Fatalf("run(%v) = %d, want 0", args, code)
		}
	}
}

func TestRunRejectsMissingVersion(t *testing.T) {
	if code := run(nil); code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}
}

func TestRunRejectsInvalidVersion(t *testing.T) {
	for _, args := range [][]string{{"1.2"}, {"v1.2.0"}, {"banana"}, {"1.2.0", "extra"}} {
		if code := run(args); code != 1 {
			t.Fatalf("run(%v) = %d, want 1", args, code)
		}
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	if code := run([]string{"--frobnicate", "1.2.0"}); code != 1 {
		t.Fatalf("unknown flag should exit 1")
	}
}

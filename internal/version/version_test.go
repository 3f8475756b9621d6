package version

import (
	"strings"
	"testing"
)

func TestParseAcceptsReleaseGrammar(t *testing.T) {
	cases := []struct {
		input      string
		tag        string
		prerelease string
	}{
		{input: "1.2.0", tag: "v1.2.0"},
		{input: "0.0.1", tag: "v0.0.1"},
		{input: "10.20.30", tag: "v10.20.30"},
		{input: "1.2.0-alpha.1", tag: "v1.2.0-alpha.1", prerelease: "alpha.1"},
		{input: "2.0.0-rc1", tag: "v2.0.0-rc1", prerelease: "rc1"},
	}
	for _, tc := range cases {
		v, err := Parse(tc.input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.input, err)
		}
		if v.String() != tc.input {
			t.Fatalf("String() = %q, want %q", v.String(), tc.input)
		}
		if v.Tag() != tc.tag {
			t.Fatalf("Tag() = %q, want %q", v.Tag(), tc.tag)
		}
		if v.Prerelease() != tc.prerelease {
			t.Fatalf("Prerelease() = %q, want %q", v.Prerelease(), tc.prerelease)
		}
		if v.IsZero() {
			t.Fatalf("IsZero() true for parsed version %q", tc.input)
		}
	}
}

func TestParseRejectsInvalidVersions(t *testing.T) {
	for _, input := range []string{
		"",
		"1.2",
		"1",
		"v1.2.0",
		"1.2.0+build.5",
		"1.2.0.4",
		"one.two.zero",
		"1.2.x",
	} {
		if _, err := Parse(input); err == nil {
			t.Fatalf("Parse(%q): expected error", input)
		}
	}
}

func TestParseErrorNamesInput(t *testing.T) {
	_, err := Parse("1.2")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "1.2") {
		t.Fatalf("error does not name the input: %v", err)
	}
}

func TestZeroValueIsZero(t *testing.T) {
	var v ReleaseVersion
	if !v.IsZero() {
		t.Fatalf("zero value should report IsZero")
	}
}

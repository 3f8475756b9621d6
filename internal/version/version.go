// Package version defines the canonical release version used by every
// pipeline stage. One ReleaseVersion is parsed before the first stage runs
// and is never re-derived from disk afterwards.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ReleaseVersion is an immutable, validated semantic version. The zero value
// is invalid; obtain one through Parse.
type ReleaseVersion struct {
	raw    string
	parsed *semver.Version
}

// Parse validates a version string against the release grammar:
// MAJOR.MINOR.PATCH with an optional prerelease suffix. Partial versions
// ("1.2"), a leading "v", and build metadata are all rejected.
func Parse(input string) (ReleaseVersion, error) {
	parsed, err := semver.StrictNewVersion(input)
	if err != nil {
		return ReleaseVersion{}, fmt.Errorf("version: invalid release version %q: %w", input, err)
	}
	if parsed.Metadata() != "" {
		return ReleaseVersion{}, fmt.Errorf("version: build metadata is not allowed in release version %q", input)
	}
	return ReleaseVersion{raw: input, parsed: parsed}, nil
}

// String returns the version exactly as it was parsed.
func (v ReleaseVersion) String() string {
	return v.raw
}

// Tag returns the git tag name for this version.
func (v ReleaseVersion) Tag() string {
	return "v" + v.raw
}

// IsZero reports whether the version was never parsed.
func (v ReleaseVersion) IsZero() bool {
	return v.parsed == nil
}

// Prerelease returns the prerelease suffix, or "" for a stable release.
func (v ReleaseVersion) Prerelease() string {
	if v.parsed == nil {
		return ""
	}
	return v.parsed.Prerelease()
}

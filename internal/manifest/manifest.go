// Package manifest rewrites the version field of package manifests in place.
// Everything outside the version field is preserved byte for byte, so a diff
// of a synced manifest shows exactly one changed line per file.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/dlcdevkit/ddk-release/internal/config"
	"github.com/dlcdevkit/ddk-release/internal/version"
)

// NotFoundError reports a required manifest missing from disk.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("manifest: %s not found", e.Path)
}

// ErrVersionFieldMissing reports a manifest with no recognizable version field.
var ErrVersionFieldMissing = errors.New("manifest: version field not found")

var (
	tomlVersionRe = regexp.MustCompile(`^(\s*version\s*=\s*")([^"]+)(".*)$`)
	jsonVersionRe = regexp.MustCompile(`^(\s*"version"\s*:\s*")([^"]+)(".*)$`)
	tomlSectionRe = regexp.MustCompile(`^\s*\[(.+)\]\s*$`)
)

// File describes one manifest under coordination.
type File struct {
	Name     string
	Path     string
	Kind     string
	Optional bool
}

// SyncResult records the outcome for one manifest.
type SyncResult struct {
	File     File
	Previous string
	Skipped  bool
}

// Sync rewrites every manifest's version field to the release version.
// Optional manifests missing from disk are skipped; required ones fail with
// *NotFoundError. The rewrite is not transactional: a mid-list failure
// leaves earlier manifests already updated.
func Sync(files []File, v version.ReleaseVersion) ([]SyncResult, error) {
	if v.IsZero() {
		return nil, fmt.Errorf("manifest: release version is required")
	}
	results := make([]SyncResult, 0, len(files))
	for _, file := range files {
		previous, err := setVersion(file, v.String())
		if err != nil {
			var notFound *NotFoundError
			if errors.As(err, &notFound) && file.Optional {
				results = append(results, SyncResult{File: file, Skipped: true})
				continue
			}
			return results, err
		}
		results = append(results, SyncResult{File: file, Previous: previous})
	}
	return results, nil
}

// CurrentVersion reads the version field without modifying the manifest.
func CurrentVersion(file File) (string, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Path: file.Path}
		}
		return "", fmt.Errorf("manifest: read %s: %w", file.Path, err)
	}
	lines := strings.Split(string(data), "\n")
	idx, match := findVersionLine(lines, file.Kind)
	if idx < 0 {
		return "", fmt.Errorf("%w in %s", ErrVersionFieldMissing, file.Path)
	}
	return match[2], nil
}

// FromPackages converts package configs into coordinated manifest files.
func FromPackages(packages []config.PackageConfig) []File {
	files := make([]File, 0, len(packages))
	for _, pkg := range packages {
		files = append(files, File{
			Name:     pkg.Name,
			Path:     pkg.Manifest,
			Kind:     pkg.Kind,
			Optional: pkg.Optional,
		})
	}
	return files
}

func setVersion(file File, newVersion string) (string, error) {
	info, err := os.Stat(file.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Path: file.Path}
		}
		return "", fmt.Errorf("manifest: stat %s: %w", file.Path, err)
	}
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return "", fmt.Errorf("manifest: read %s: %w", file.Path, err)
	}
	lines := strings.Split(string(data), "\n")
	idx, match := findVersionLine(lines, file.Kind)
	if idx < 0 {
		return "", fmt.Errorf("%w in %s", ErrVersionFieldMissing, file.Path)
	}
	previous := match[2]
	lines[idx] = match[1] + newVersion + match[3]
	updated := strings.Join(lines, "\n")
	if err := os.WriteFile(file.Path, []byte(updated), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("manifest: write %s: %w", file.Path, err)
	}
	return previous, nil
}

// findVersionLine locates the version field. For cargo manifests only the
// [package] section is considered, so dependency pins keep their versions.
// For npm manifests the first top-level-looking "version" line wins.
func findVersionLine(lines []string, kind string) (int, []string) {
	switch kind {
	case config.ManifestCargo:
		section := ""
		for i, line := range lines {
			if m := tomlSectionRe.FindStringSubmatch(line); m != nil {
				section = strings.TrimSpace(m[1])
				continue
			}
			if section != "package" {
				continue
			}
			if m := tomlVersionRe.FindStringSubmatch(line); m != nil {
				return i, m
			}
		}
	case config.ManifestNPM:
		for i, line := range lines {
			if m := jsonVersionRe.FindStringSubmatch(line); m != nil {
				return i, m
			}
		}
	}
	return -1, nil
}

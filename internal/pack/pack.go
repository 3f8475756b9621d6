// Package pack turns platform build outputs into deterministically named
// release artifacts inside a scratch directory. Directory outputs become
// flat tar.gz archives; single-file native modules are renamed copies.
package pack

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dlcdevkit/ddk-release/internal/config"
	"github.com/dlcdevkit/ddk-release/internal/logging"
	"github.com/dlcdevkit/ddk-release/internal/version"
)

// Artifact is one packaged build output, immutable once created.
type Artifact struct {
	// Tag is the platform tag baked into the file name.
	Tag string
	// Path is the absolute location inside the scratch directory.
	Path string
	// Label is the display name for release assets: the file name with
	// the version suffix and extension stripped.
	Label string
	// Size is the packaged size in bytes.
	Size int64
}

// PackagingError reports a failure while producing one artifact.
type PackagingError struct {
	Tag string
	Err error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("pack: package %s: %v", e.Tag, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }

// Packager writes artifacts for one component into a scratch directory.
type Packager struct {
	log       *logging.Logger
	component string
	scratch   string
}

// New builds a packager rooted at the scratch directory.
func New(log *logging.Logger, component, scratchDir string) *Packager {
	return &Packager{log: log, component: component, scratch: scratchDir}
}

// Scratch returns the scratch directory path.
func (p *Packager) Scratch() string {
	return p.scratch
}

// Reset recreates the scratch directory empty. Called once per run before
// packaging so stale archives from prior runs never leak into a release.
func (p *Packager) Reset() error {
	if err := os.RemoveAll(p.scratch); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("pack: clear scratch dir: %w", err)
	}
	if err := os.MkdirAll(p.scratch, 0o755); err != nil {
		return fmt.Errorf("pack: create scratch dir: %w", err)
	}
	return nil
}

// Remove deletes the scratch directory. Called after a successful publish;
// on failure the directory is left behind for postmortem inspection.
func (p *Packager) Remove() error {
	if err := os.RemoveAll(p.scratch); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("pack: remove scratch dir: %w", err)
	}
	return nil
}

// Package produces one artifact per target whose build output exists on
// disk. Targets without output are omitted, not failed: the artifact list
// length varies with what the host could build.
func (p *Packager) Package(targets []config.TargetConfig, v version.ReleaseVersion) ([]Artifact, error) {
	artifacts := make([]Artifact, 0, len(targets))
	for _, target := range targets {
		info, err := os.Stat(target.Output)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				p.log.Detailf("pack: no build output for %s, omitting", target.Tag)
				continue
			}
			return artifacts, &PackagingError{Tag: target.Tag, Err: err}
		}
		var artifact Artifact
		if info.IsDir() {
			artifact, err = p.archiveDir(target, v)
		} else {
			artifact, err = p.copyFile(target, v)
		}
		if err != nil {
			return artifacts, &PackagingError{Tag: target.Tag, Err: err}
		}
		p.log.Detailf("pack: %s (%d bytes)", filepath.Base(artifact.Path), artifact.Size)
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// archiveDir stages the output bundle into a temporary aggregation
// directory, archives it, and removes the staging directory. The archive
// layout is always <bundle>/... regardless of where the bundle was built.
func (p *Packager) archiveDir(target config.TargetConfig, v version.ReleaseVersion) (Artifact, error) {
	name := fmt.Sprintf("%s-%s-%s.tar.gz", p.component, target.Tag, v.String())
	dest := filepath.Join(p.scratch, name)
	staging, err := os.MkdirTemp(p.scratch, "stage-")
	if err != nil {
		return Artifact{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	bundle := filepath.Join(staging, filepath.Base(target.Output))
	if err := copyTree(target.Output, bundle); err != nil {
		return Artifact{}, err
	}
	if err := writeTarGz(staging, dest); err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat archive: %w", err)
	}
	return Artifact{
		Tag:   target.Tag,
		Path:  dest,
		Label: fmt.Sprintf("%s-%s", p.component, target.Tag),
		Size:  info.Size(),
	}, nil
}

func (p *Packager) copyFile(target config.TargetConfig, v version.ReleaseVersion) (Artifact, error) {
	ext := filepath.Ext(target.Output)
	name := fmt.Sprintf("%s-%s-%s%s", p.component, target.Tag, v.String(), ext)
	dest := filepath.Join(p.scratch, name)
	if err := copyRegularFile(target.Output, dest); err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat copy: %w", err)
	}
	return Artifact{
		Tag:   target.Tag,
		Path:  dest,
		Label: fmt.Sprintf("%s-%s", p.component, target.Tag),
		Size:  info.Size(),
	}, nil
}

func writeTarGz(root, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		// Framework bundles rely on internal symlinks (Current -> Versions/A);
		// they must survive as links, not as dereferenced copies.
		var link string
		if d.Type()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finish compression: %w", err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read link %s: %w", filepath.Base(path), err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare %s: %w", target, err)
			}
			return os.Symlink(link, target)
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		default:
			return copyRegularFile(path, target)
		}
	})
}

func copyRegularFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", dst, err)
	}
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer srcFile.Close()
	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer dstFile.Close()
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return nil
}

// StripVersionSuffix converts an artifact file name back into its display
// label by cutting at the version suffix (which also removes the extension
// that follows it).
func StripVersionSuffix(filename string, v version.ReleaseVersion) string {
	marker := "-" + v.String()
	if idx := strings.Index(filename, marker); idx >= 0 {
		return filename[:idx]
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

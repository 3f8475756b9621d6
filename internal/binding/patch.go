package binding

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/dlcdevkit/ddk-release/internal/config"
)

// Apply returns the text with the patch rule applied. The transformation is
// a fixed point: when the defective literal is absent (including after a
// previous application) the text comes back unchanged.
func Apply(rule config.PatchRule, text string) string {
	if !strings.Contains(text, rule.Find) {
		return text
	}
	return strings.ReplaceAll(text, rule.Find, rule.Replace)
}

// ApplyToFile patches the generated file in place. A missing file is an
// error: the generator was supposed to have produced it. Returns whether
// the file actually changed.
func ApplyToFile(rule config.PatchRule) (bool, error) {
	if err := rule.Validate(); err != nil {
		return false, fmt.Errorf("binding: %w", err)
	}
	data, err := os.ReadFile(rule.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("binding: patch target %s was not generated", rule.Path)
		}
		return false, fmt.Errorf("binding: read %s: %w", rule.Path, err)
	}
	patched := Apply(rule, string(data))
	if patched == string(data) {
		return false, nil
	}
	info, err := os.Stat(rule.Path)
	if err != nil {
		return false, fmt.Errorf("binding: stat %s: %w", rule.Path, err)
	}
	if err := os.WriteFile(rule.Path, []byte(patched), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("binding: write %s: %w", rule.Path, err)
	}
	return true, nil
}

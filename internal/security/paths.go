// Package security guards the file paths the HTTP API accepts from callers.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a path resolves outside its allowed directory.
var ErrPathEscape = errors.New("path escapes allowed directory")

// canonical returns the absolute, symlink-free form of p. When p does not
// exist yet, the nearest existing ancestor is resolved and the missing tail
// re-attached, so a new file under a symlinked directory is still caught.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	tail := ""
	for dir := abs; ; {
		parent := filepath.Dir(dir)
		tail = filepath.Join(filepath.Base(dir), tail)
		if parent == dir {
			return abs, nil
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			return filepath.Join(resolved, tail), nil
		}
		dir = parent
	}
}

// ValidatePathWithinDirectory returns ErrPathEscape unless filePath, after
// cleaning and symlink resolution, lies inside dir.
func ValidatePathWithinDirectory(filePath, dir string) error {
	root, err := canonical(dir)
	if err != nil {
		return err
	}
	target, err := canonical(filePath)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscape, filePath, dir)
	}
	return nil
}

// ResolveWithin joins a caller-supplied name onto dir and validates the
// result. Absolute names are accepted only when they already lie inside dir.
func ResolveWithin(dir, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty path")
	}
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	if err := ValidatePathWithinDirectory(p, dir); err != nil {
		return "", err
	}
	return filepath.Clean(p), nil
}

// maxFilenameLen bounds names built from caller-supplied labels.
const maxFilenameLen = 128

// SanitizeFilename reduces s to ASCII letters, digits, dot, underscore and
// dash. Runs of other characters become a single underscore and leading or
// trailing dots and underscores are dropped. An empty result becomes
// "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		ok := r == '.' || r == '_' || r == '-' ||
			('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
		if !ok {
			pendingSep = true
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

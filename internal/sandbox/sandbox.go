// Package sandbox confines build outputs to the project tree. Every write and
// removal is resolved against a root directory with symlinks evaluated, so
// a misconfigured destination can never touch files outside the project.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root is a directory that bounds all file operations made through it.
type Root struct {
	dir string // absolute, symlinks resolved
}

// New resolves dir and returns a Root for it. The directory must exist.
func New(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving project root symlinks: %w", err)
	}
	return &Root{dir: real}, nil
}

// Dir returns the resolved root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolve checks that rel stays inside the root once symlinks are followed
// and returns the resolved absolute path. rel may name a path that does not
// exist yet.
func (r *Root) Resolve(rel string) (string, error) {
	candidate := filepath.Clean(filepath.Join(r.dir, rel))

	resolved, err := resolveExistingPath(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	// Trailing separator so "root2" does not pass as inside "root".
	rootPrefix := r.dir + string(filepath.Separator)
	if resolved != r.dir && !strings.HasPrefix(resolved, rootPrefix) {
		return "", fmt.Errorf("path '%s' resolves to '%s' which is outside the project root '%s'", rel, resolved, r.dir)
	}
	return resolved, nil
}

// resolveExistingPath evaluates symlinks for the longest existing prefix of
// path and re-attaches the missing suffix.
func resolveExistingPath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, base := filepath.Dir(path), filepath.Base(path)
	if dir == path {
		return path, nil
	}

	resolvedDir, err := resolveExistingPath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

// WriteFile atomically writes content to rel, creating parent directories.
// Readers never observe a partially written file.
func (r *Root) WriteFile(rel string, content []byte, perm os.FileMode) error {
	resolved, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	if resolved == r.dir {
		return fmt.Errorf("cannot write to the project root itself")
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".sitepipe-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, resolved); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", resolved, err)
	}

	success = true
	return nil
}

// RemoveAll deletes rel and everything beneath it. Removing a path that does
// not exist succeeds. The root itself can never be removed.
func (r *Root) RemoveAll(rel string) error {
	resolved, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	if resolved == r.dir {
		return fmt.Errorf("refusing to remove the project root '%s'", r.dir)
	}
	if err := os.RemoveAll(resolved); err != nil {
		return fmt.Errorf("removing %s: %w", rel, err)
	}
	return nil
}

// MkdirAll creates rel and any missing parents inside the root.
func (r *Root) MkdirAll(rel string, perm os.FileMode) error {
	resolved, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(resolved, perm)
}

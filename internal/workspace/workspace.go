// Package workspace enforces the single on-disk directory every component
// (the chat session's file-write blocks, a sub-agent's workspace_write IPC
// message) is allowed to write into. Every path is canonicalized and checked
// to have the root as a prefix before any read or write; symlinks are
// resolved before the check so a symlink planted inside the root cannot
// point a write outside it. Writes are size-capped per file.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexuscore/agentrt/internal/rterr"
)

// DefaultMaxFileBytes is the per-file write cap.
const DefaultMaxFileBytes = 50 << 10

// Jail resolves paths against a single root directory and rejects any
// target that would land outside it once symlinks are resolved.
type Jail struct {
	root        string
	maxFileSize int64
}

// New creates a Jail rooted at root. root is made absolute at construction
// time; it need not yet exist on disk (a sub-agent workspace may be created
// lazily), but if it exists it must be a directory.
func New(root string, maxFileSize int64) (*Jail, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileBytes
	}
	return &Jail{root: abs, maxFileSize: maxFileSize}, nil
}

// Root returns the jail's canonical root directory.
func (j *Jail) Root() string { return j.root }

// Resolve canonicalizes rel against the jail root and verifies the result
// has the root as a prefix. Existing path components are symlink-resolved
// first; components that do not yet exist (the final segment of a file
// about to be created) are checked textually against the cleaned path
// instead, since they cannot be resolved.
func (j *Jail) Resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", rterr.New(rterr.KindWorkspaceEscape, "empty path")
	}
	if filepath.IsAbs(rel) {
		return "", rterr.New(rterr.KindWorkspaceEscape, "absolute paths are not permitted")
	}
	joined := filepath.Join(j.root, rel)
	cleaned := filepath.Clean(joined)
	if err := j.checkPrefix(cleaned); err != nil {
		return "", err
	}

	resolved, err := j.resolveSymlinks(cleaned)
	if err != nil {
		return "", err
	}
	if err := j.checkPrefix(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// checkPrefix verifies that p, once cleaned, lies within the jail root.
func (j *Jail) checkPrefix(p string) error {
	rel, err := filepath.Rel(j.root, p)
	if err != nil {
		return rterr.Wrap(rterr.KindWorkspaceEscape, "path escapes workspace", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return rterr.New(rterr.KindWorkspaceEscape, "path escapes workspace: "+rel)
	}
	return nil
}

// resolveSymlinks walks up from p until it finds the longest existing
// ancestor, resolves that ancestor's symlinks via filepath.EvalSymlinks, and
// rejoins the non-existent remainder. This lets the jail accept a path whose
// final component(s) do not exist yet (a file about to be created) while
// still catching a symlink planted at any existing ancestor.
func (j *Jail) resolveSymlinks(p string) (string, error) {
	existing := p
	var remainder []string
	for {
		if existing == j.root || existing == filepath.Dir(existing) {
			break
		}
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		remainder = append([]string{filepath.Base(existing)}, remainder...)
		existing = filepath.Dir(existing)
	}
	resolvedExisting, err := filepath.EvalSymlinks(existing)
	if err != nil {
		if os.IsNotExist(err) {
			resolvedExisting = existing
		} else {
			return "", rterr.Wrap(rterr.KindWorkspaceEscape, "resolve symlinks", err)
		}
	}
	full := resolvedExisting
	for _, part := range remainder {
		full = filepath.Join(full, part)
	}
	return filepath.Clean(full), nil
}

// WriteFile resolves rel within the jail, enforces the per-file size cap,
// and writes content atomically (write to a temp file, then rename).
func (j *Jail) WriteFile(rel string, content []byte) (string, error) {
	if int64(len(content)) > j.maxFileSize {
		return "", rterr.New(rterr.KindSizeExceeded, fmt.Sprintf("content %d bytes exceeds cap %d", len(content), j.maxFileSize))
	}
	target, err := j.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return target, nil
}

// ReadFile resolves rel within the jail and reads its content.
func (j *Jail) ReadFile(rel string) ([]byte, error) {
	target, err := j.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

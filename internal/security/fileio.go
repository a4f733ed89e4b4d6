package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// allowedDeliverableExt is the extension whitelist for artifacts a
// CrewRunner may write to the data root (spec §6.3).
var allowedDeliverableExt = map[string]bool{
	".txt":  true,
	".json": true,
	".md":   true,
	".csv":  true,
	".log":  true,
}

// MaxDeliverableBytes bounds any single artifact file's content size.
const MaxDeliverableBytes = 100 * 1024

// MaxDeliverableTotalBytes bounds the total size of a per-file write
// target (spec §6.3 "per-file size <= 10MB" ceiling for the resolved path
// on disk, distinct from the 100KB in-memory content cap above).
const MaxDeliverableTotalBytes = 10 * 1024 * 1024

// ResolveDeliverablePath validates name as a deliverable filename and
// returns its absolute path under root. It rejects path traversal,
// absolute paths, disallowed extensions, and symlinks that would escape
// root — a deliverable name is untrusted input chosen by crew output, not
// by the operator.
func ResolveDeliverablePath(root, name string) (string, error) {
	if name == "" {
		return "", errInvalidArgument("deliverable name must not be empty")
	}
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return "", errInvalidArgument("deliverable name %q is not a safe relative path", name)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedDeliverableExt[ext] {
		return "", errInvalidArgument("deliverable extension %q is not allowed", ext)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve data root: %w", err)
	}
	candidate := filepath.Join(rootAbs, filepath.Clean(name))
	if !strings.HasPrefix(candidate, rootAbs+string(os.PathSeparator)) && candidate != rootAbs {
		return "", errInvalidArgument("deliverable name %q escapes the data root", name)
	}

	if info, err := os.Lstat(candidate); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(candidate)
			if err != nil {
				return "", fmt.Errorf("resolve symlink %s: %w", candidate, err)
			}
			if !strings.HasPrefix(resolved, rootAbs+string(os.PathSeparator)) {
				return "", errInvalidArgument("deliverable %q resolves outside the data root", name)
			}
		}
	}

	return candidate, nil
}

// WriteDeliverable writes content to a deliverable path already validated
// by ResolveDeliverablePath, enforcing the size caps.
func WriteDeliverable(path string, content []byte) error {
	if len(content) > MaxDeliverableBytes {
		return errInvalidArgument("deliverable content exceeds %d bytes", MaxDeliverableBytes)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create deliverable directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write deliverable %s: %w", path, err)
	}
	return nil
}

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Violation indicates a path that escapes the project root.
type Violation struct {
	Path string
}

// Error satisfies the error interface.
func (e *Violation) Error() string {
	return "agent path must be inside the open project folder"
}

// resolvePath resolves a path string into an absolute path inside root.
// Relative paths are joined onto root. Symlinks are resolved before the
// containment check, including symlinks in ancestors of a file that does
// not exist yet, so a write through a linked directory cannot land
// outside the root.
func resolvePath(root, pathStr string) (string, error) {
	pathStr = strings.TrimSpace(pathStr)
	if pathStr == "" {
		return "", fmt.Errorf("empty path")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	if r, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = r
	}

	p := pathStr
	if !filepath.IsAbs(p) {
		p = filepath.Join(rootAbs, p)
	}
	p, err = resolveExisting(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	if !contains(rootAbs, p) {
		return "", &Violation{Path: pathStr}
	}
	return p, nil
}

// resolveExisting resolves symlinks in the deepest existing ancestor of
// path, then rejoins the components that do not exist yet.
func resolveExisting(path string) (string, error) {
	var missing []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

// contains reports whether path is root or lies underneath it.
func contains(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}

// defaultRoot falls back to the working directory when no project root is
// configured.
func defaultRoot(root string) string {
	if root != "" {
		return root
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

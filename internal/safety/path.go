package safety

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxLinkHops bounds symlink resolution, like the kernel's ELOOP limit.
const maxLinkHops = 40

// ErrEscapesRoot is returned when a path, once symlinks are followed,
// lands outside its root.
var ErrEscapesRoot = errors.New("path escapes root")

// CleanRelativePath validates and normalizes a relative path.
// It rejects absolute paths and parent traversal segments.
func CleanRelativePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}

	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == "." {
		return "", fmt.Errorf("path resolves to current directory")
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute paths are not allowed: %q", p)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("parent traversal is not allowed: %q", p)
	}
	return clean, nil
}

// SafeJoinUnder joins a validated relative path under root and verifies
// the final path remains inside root. The check is textual; use
// ResolveUnder when root may already contain symlinks.
func SafeJoinUnder(root, rel string) (string, error) {
	cleanRel, err := CleanRelativePath(rel)
	if err != nil {
		return "", err
	}
	return EnsureUnderRoot(root, filepath.Join(root, cleanRel))
}

// EnsureUnderRoot verifies candidate resolves under root and returns
// an absolute normalized path.
func EnsureUnderRoot(root, candidate string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	candAbs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve candidate: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, candAbs)
	if err != nil {
		return "", fmt.Errorf("compare paths: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, candidate)
	}
	return candAbs, nil
}

// ResolveUnder joins rel under root and follows every existing symlink in
// its parent directories. The returned path is the real location the last
// component would be created at; it fails with ErrEscapesRoot if that
// location is outside the real root. The last component itself is not
// followed.
func ResolveUnder(root, rel string) (string, error) {
	cleanRel, err := CleanRelativePath(rel)
	if err != nil {
		return "", err
	}
	realRoot, err := realPath(root)
	if err != nil {
		return "", err
	}

	dir, base := filepath.Split(cleanRel)
	parent := realRoot
	if dir != "" {
		hops := 0
		parent, err = walk(realRoot, filepath.Clean(dir), &hops)
		if err != nil {
			return "", err
		}
	}
	if _, err := EnsureUnderRoot(realRoot, parent); err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}

// ResolveLinkTarget resolves a relative symlink target as seen from the
// directory linkDir, following existing symlinks one component at a time,
// and verifies the result stays under root.
func ResolveLinkTarget(root, linkDir, target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("empty symlink target")
	}
	if filepath.IsAbs(filepath.FromSlash(target)) {
		return "", fmt.Errorf("absolute symlink target %q", target)
	}
	realRoot, err := realPath(root)
	if err != nil {
		return "", err
	}
	hops := 0
	resolved, err := walk(linkDir, filepath.FromSlash(target), &hops)
	if err != nil {
		return "", err
	}
	return EnsureUnderRoot(realRoot, resolved)
}

func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	return resolved, nil
}

// walk applies rel to the real directory base one component at a time.
// ".." is applied to the resolved path, not to the text, so a symlinked
// component followed by ".." lands where the kernel would put it.
// Components that do not exist yet are appended as-is.
func walk(base, rel string, hops *int) (string, error) {
	cur := base
	for _, comp := range strings.Split(rel, string(filepath.Separator)) {
		switch comp {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}

		next := filepath.Join(cur, comp)
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) {
			cur = next
			continue
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}

		*hops++
		if *hops > maxLinkHops {
			return "", fmt.Errorf("too many levels of symbolic links at %q", next)
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			cur, err = walk(string(filepath.Separator), target, hops)
		} else {
			cur, err = walk(cur, target, hops)
		}
		if err != nil {
			return "", err
		}
	}
	return cur, nil
}

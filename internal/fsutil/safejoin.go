package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// SafeJoin joins untrusted segments onto root and returns a path that is
// root itself or nested under it.
//
// root is made absolute and cleaned lexically (symlinks are not resolved).
// Segments are applied in order; an absolute segment restarts the candidate
// the way a host path join does, so it is treated as a traversal attempt.
//
// With allowRelative set the joined candidate is returned when it stays under
// root, otherwise root is returned. Without it only the candidate's last
// element is kept and joined directly onto root.
func SafeJoin(root string, allowRelative bool, segments ...string) string {
	root = absClean(root)
	if len(segments) == 0 {
		return root
	}

	candidate := root
	for _, segment := range segments {
		if filepath.IsAbs(segment) {
			candidate = segment
			continue
		}
		candidate = filepath.Join(candidate, segment)
	}
	candidate = absClean(candidate)

	if allowRelative {
		if !WithinRoot(root, candidate) {
			return root
		}
		return candidate
	}

	base := filepath.Base(candidate)
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return root
	}
	return filepath.Join(root, base)
}

// WithinRoot reports whether path equals root or lies below it. Both paths
// are compared in cleaned form, on whole path elements.
func WithinRoot(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return true
	}

	prefix := root
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, prefix)
}

func absClean(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		// Abs only fails when the working directory is unknown.
		return filepath.Clean(p)
	}
	return abs
}

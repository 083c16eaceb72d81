package fsutil

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

// SanitizeRelPath normalizes an untrusted member name (archive entry, upload
// name) into a relative host path that cannot leave the directory it is
// joined to. It returns false for anything that is empty, absolute,
// drive-prefixed, contains NUL or climbs above its base.
func SanitizeRelPath(raw string) (string, bool) {
	cleaned, ok := cleanSlashed(raw)
	if !ok {
		return "", false
	}

	for _, segment := range strings.Split(cleaned, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", false
		}
		if strings.ContainsRune(segment, 0) {
			return "", false
		}
	}

	rel := filepath.FromSlash(cleaned)
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", false
	}
	return rel, true
}

// SanitizeLinkTarget validates the target of a symlink that will be created
// at linkRelPath (relative to an extraction root). Only relative targets that
// resolve inside the root are accepted.
func SanitizeLinkTarget(linkRelPath, rawTarget string) (string, error) {
	if strings.ContainsRune(rawTarget, 0) {
		return "", fmt.Errorf("symlink target contains NUL")
	}

	normalized := strings.ReplaceAll(rawTarget, "\\", "/")
	cleaned := path.Clean(normalized)
	switch {
	case cleaned == "." || cleaned == ".." || cleaned == "/":
		return "", fmt.Errorf("unsafe symlink target %q", rawTarget)
	case strings.HasPrefix(cleaned, "/"):
		return "", fmt.Errorf("absolute symlink target %q is not allowed", rawTarget)
	case hasDrivePrefix(cleaned):
		return "", fmt.Errorf("symlink target %q has a drive prefix", rawTarget)
	}

	baseDir := path.Dir(filepath.ToSlash(linkRelPath))
	resolved := path.Clean(path.Join(baseDir, cleaned))
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return "", fmt.Errorf("symlink target %q escapes extraction root", rawTarget)
	}
	return filepath.FromSlash(cleaned), nil
}

func cleanSlashed(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	cleaned := path.Clean(strings.ReplaceAll(trimmed, "\\", "/"))
	switch {
	case cleaned == "." || cleaned == ".." || cleaned == "/":
		return "", false
	case strings.HasPrefix(cleaned, "/"), strings.HasPrefix(cleaned, "../"):
		return "", false
	case hasDrivePrefix(cleaned):
		return "", false
	}
	return cleaned, true
}

func hasDrivePrefix(pathValue string) bool {
	if len(pathValue) < 2 || pathValue[1] != ':' {
		return false
	}
	return unicode.IsLetter(rune(pathValue[0]))
}

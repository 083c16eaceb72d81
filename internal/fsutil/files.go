package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CreateTempDir creates a uniquely named working directory under parent, or
// under the OS temp directory when parent is empty. The caller removes it.
func CreateTempDir(parent string) (string, error) {
	parent = strings.TrimSpace(parent)
	if parent == "" {
		parent = os.TempDir()
	}
	dir, err := os.MkdirTemp(parent, "muty-")
	if err != nil {
		return "", err
	}
	return filepath.Abs(dir)
}

// PrepareDir returns the absolute form of dir, creating it when missing. An
// empty dir yields a new directory from CreateTempDir. created reports whether
// this call made the directory, so the caller knows it may remove it again.
func PrepareDir(dir, tempParent string) (_ string, created bool, _ error) {
	if dir == "" {
		tmp, err := CreateTempDir(tempParent)
		if err != nil {
			return "", false, fmt.Errorf("unable to create working directory: %w", err)
		}
		return tmp, true, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if !info.IsDir() {
			return "", false, fmt.Errorf("destination %q is not a directory", abs)
		}
		return abs, false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", false, err
	}

	// MkdirAll tolerates another process creating dir concurrently.
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", false, err
	}
	return abs, true, nil
}

// Delete removes a file or a whole directory tree. A missing path is an error
// only when ignoreMissing is false.
func Delete(path string, ignoreMissing bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && ignoreMissing {
			return nil
		}
		return err
	}
	return os.RemoveAll(path)
}

func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to path, truncating it unless appendData is set.
func WriteFile(path string, data []byte, appendData bool) error {
	flags := os.O_CREATE | os.O_WRONLY
	if appendData {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Abs expands a leading ~ to the user's home directory and returns the
// absolute form of path. With resolve set symlinks are evaluated too, which
// requires the path to exist.
func Abs(path string, resolve bool) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !resolve {
		return abs, nil
	}
	return filepath.EvalSymlinks(abs)
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Size returns the size in bytes of the file at path. A missing file reports
// 0 unless errIfMissing is set.
func Size(path string, errIfMissing bool) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !errIfMissing {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

var renamePath = os.Rename

const copyBufferSize = 256 * 1024

// Move renames src to dst, replacing a regular file already at dst.
// Cross-device moves fall back to copy+remove.
func Move(src, dst string) error {
	if _, err := os.Lstat(src); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	err := renamePath(src, dst)
	if err == nil || !isCrossDeviceError(err) {
		return err
	}

	if err := removeRegular(dst); err != nil {
		return err
	}
	if err := copyPath(src, dst, false); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// CopyFile copies a single file (or symlink) from src to dst, overwriting dst
// and preserving permission bits and modification time.
func CopyFile(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%q is a directory", src)
	}
	if err := removeRegular(dst); err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return copySymlink(src, dst)
	}
	return copyFile(src, dst, info)
}

// CopyDir copies the tree rooted at src into dst. When existOK is false an
// existing dst is an error; otherwise files are merged into it, overwriting
// same-named files.
func CopyDir(src, dst string, existOK bool) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", src)
	}
	return copyDir(src, dst, info, existOK)
}

func isCrossDeviceError(err error) bool {
	if errors.Is(err, syscall.EXDEV) {
		return true
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return false
}

func removeRegular(path string) error {
	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	case info.IsDir():
		return fmt.Errorf("destination %q is a directory", path)
	}
	return os.Remove(path)
}

func copyPath(src, dst string, existOK bool) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return copySymlink(src, dst)
	case info.IsDir():
		return copyDir(src, dst, info, existOK)
	}
	return copyFile(src, dst, info)
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Symlink(target, dst)
}

func copyDir(src, dst string, rootInfo fs.FileInfo, existOK bool) error {
	created := true
	if err := os.Mkdir(dst, dirPerm(rootInfo.Mode())); err != nil {
		if !existOK || !errors.Is(err, fs.ErrExist) {
			return err
		}
		created = false
	}

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == src {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		entryInfo, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			if err := os.Mkdir(target, dirPerm(entryInfo.Mode())); err != nil && !errors.Is(err, fs.ErrExist) {
				return err
			}
			return nil
		case entryInfo.Mode()&os.ModeSymlink != 0:
			if err := removeRegular(target); err != nil {
				return err
			}
			return copySymlink(path, target)
		case !entryInfo.Mode().IsRegular():
			return fmt.Errorf("unsupported file type %q", path)
		}
		if err := removeRegular(target); err != nil {
			return err
		}
		return copyFile(path, target, entryInfo)
	})
	if err != nil {
		if created {
			_ = os.RemoveAll(dst)
		}
		return err
	}

	// Directory times are set last; writing children bumps them.
	_ = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && !info.ModTime().IsZero() {
			_ = os.Chtimes(filepath.Join(dst, rel), time.Now(), info.ModTime())
		}
		return nil
	})
	return nil
}

func copyFile(src, dst string, info fs.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm(info.Mode()))
	if err != nil {
		return err
	}

	buf := make([]byte, copyBufferSize)
	_, copyErr := io.CopyBuffer(out, in, buf)
	syncErr := out.Sync()
	closeErr := out.Close()
	for _, err := range []error{copyErr, syncErr, closeErr} {
		if err != nil {
			_ = os.Remove(dst)
			return err
		}
	}
	if !info.ModTime().IsZero() {
		_ = os.Chtimes(dst, time.Now(), info.ModTime())
	}
	return nil
}

func filePerm(mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o644
	}
	return perm
}

func dirPerm(mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o755
	}
	return perm
}

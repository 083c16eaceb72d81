// Package upload persists incoming files, typically multipart form parts,
// to disk and optionally unpacks them.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mentat-is/muty-go/internal/archive"
	"github.com/mentat-is/muty-go/internal/fsutil"
	"github.com/mentat-is/muty-go/internal/log"
	"github.com/mentat-is/muty-go/internal/strutil"
)

// DefaultChunkSize is used when Options.ChunkSize is not positive.
const DefaultChunkSize = 256 * 1024

const partSuffix = ".part"

// ErrUnsafeName is returned when a file name does not name anything inside
// the destination directory.
var ErrUnsafeName = errors.New("unsafe file name")

// File is an incoming file: the name the client sent and its content.
type File struct {
	Filename string
	Reader   io.Reader
}

// Close closes the underlying reader when it has a Close method.
func (f File) Close() error {
	if c, ok := f.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FromMultipart opens a multipart form file. The caller closes the result.
func FromMultipart(fh *multipart.FileHeader) (File, error) {
	r, err := fh.Open()
	if err != nil {
		return File{}, fmt.Errorf("open form file %q: %w", fh.Filename, err)
	}
	return File{Filename: fh.Filename, Reader: r}, nil
}

// Options controls ToPath, ToPathMulti and Unzip.
type Options struct {
	// ChunkSize is the copy buffer size.
	ChunkSize int
	// RandomName ignores File.Filename and stores the content under a
	// generated unique name.
	RandomName bool
	// TempDir is the parent of directories created when no destination is
	// given. Empty means the OS temp directory.
	TempDir string

	Logger *zap.Logger
}

func (o Options) chunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return DefaultChunkSize
}

// ToPath writes f into destDir and returns the path of the stored file.
//
// An empty destDir stores into a new temporary directory owned by the caller;
// a missing destDir is created. Only the base name of File.Filename is used,
// so client supplied names cannot leave destDir; an empty name gets a unique
// one. Content is written to a ".part" file first and renamed into place when
// complete. On failure the partial file is removed, together with the
// directory when this call created it.
func ToPath(ctx context.Context, f File, destDir string, opts Options) (_ string, err error) {
	logger := log.OrNop(opts.Logger)

	dest, created, err := fsutil.PrepareDir(destDir, opts.TempDir)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil && created {
			if rmErr := os.RemoveAll(dest); rmErr != nil {
				logger.Warn("Unable to remove upload directory", zap.String("dir", dest), zap.Error(rmErr))
			}
		}
	}()

	name := f.Filename
	if opts.RandomName || name == "" {
		name = strutil.GenerateUnique("", "", true)
	}
	base, ok := baseName(name)
	if !ok {
		return "", fmt.Errorf("store %q: %w", f.Filename, ErrUnsafeName)
	}
	path := fsutil.SafeJoin(dest, false, base)
	if path == dest {
		return "", fmt.Errorf("store %q: %w", f.Filename, ErrUnsafeName)
	}

	logger.Debug("Storing upload", zap.String("name", f.Filename), zap.String("path", path))

	part := path + partSuffix
	if err := writeChunked(ctx, part, f.Reader, opts.chunkSize()); err != nil {
		if rmErr := fsutil.Delete(part, true); rmErr != nil {
			err = multierr.Append(err, rmErr)
		}
		return "", fmt.Errorf("store %s: %w", path, err)
	}
	if err := fsutil.Move(part, path); err != nil {
		return "", multierr.Append(fmt.Errorf("store %s: %w", path, err), fsutil.Delete(part, true))
	}
	return path, nil
}

// ToPathMulti stores every file into destDir and returns the directory and
// the stored paths. When destDir is empty or missing and any file fails, the
// directory is removed again.
func ToPathMulti(ctx context.Context, files []File, destDir string, opts Options) (_ string, _ []string, err error) {
	logger := log.OrNop(opts.Logger)

	dest, created, err := fsutil.PrepareDir(destDir, opts.TempDir)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if err != nil && created {
			if rmErr := os.RemoveAll(dest); rmErr != nil {
				logger.Warn("Unable to remove upload directory", zap.String("dir", dest), zap.Error(rmErr))
			}
		}
	}()

	paths := make([]string, 0, len(files))
	for _, f := range files {
		p, err := ToPath(ctx, f, dest, opts)
		if err != nil {
			return "", nil, err
		}
		paths = append(paths, p)
	}
	return dest, paths, nil
}

// Unzip stores f in a private temporary directory and extracts it into
// destDir with archive.Extract, returning the extraction directory. The
// stored copy is always removed. With an empty destDir the result is a new
// directory owned by the caller.
func Unzip(ctx context.Context, f File, destDir string, opts Options, extract archive.Options) (string, error) {
	logger := log.OrNop(opts.Logger)

	tmp, err := fsutil.CreateTempDir(opts.TempDir)
	if err != nil {
		return "", err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmp); rmErr != nil {
			logger.Warn("Unable to remove upload directory", zap.String("dir", tmp), zap.Error(rmErr))
		}
	}()

	stored := opts
	stored.RandomName = true
	path, err := ToPath(ctx, f, tmp, stored)
	if err != nil {
		return "", err
	}

	if extract.Logger == nil {
		extract.Logger = opts.Logger
	}
	if extract.TempDir == "" {
		extract.TempDir = opts.TempDir
	}
	return archive.Extract(ctx, path, destDir, extract)
}

// baseName keeps the last element of a client file name, whichever
// separator the client used. Names that reduce to nothing are refused.
func baseName(name string) (string, bool) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return "", false
	}
	return base, true
}

func writeChunked(ctx context.Context, path string, r io.Reader, chunkSize int) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return multierr.Append(err, out.Close())
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return multierr.Append(werr, out.Close())
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return multierr.Append(rerr, out.Close())
		}
	}
	return out.Close()
}

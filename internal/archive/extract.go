package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mentat-is/muty-go/internal/fsutil"
	"github.com/mentat-is/muty-go/internal/log"
)

const extractCopyBufferSize = 256 * 1024
const maxSymlinkTargetBytes = 4096

// Options controls Extract and List.
type Options struct {
	// Format forces a backend; FormatAuto sniffs the archive content.
	Format Format
	// TempDir is the parent of the directory created when Extract is called
	// without a destination. Empty means the OS temp directory.
	TempDir string
	// Flatten drops member directories: every file lands directly in the
	// destination under its base name.
	Flatten bool
	// AllowSymlinks permits symlink members whose target stays inside the
	// destination.
	AllowSymlinks bool
	// MaxTotalBytes caps the uncompressed bytes written; zero disables it.
	MaxTotalBytes int64

	Password           string
	MaxDictionaryBytes int64

	Logger *zap.Logger
}

// Extract unpacks archivePath into destDir and returns the absolute
// destination path.
//
// An empty destDir extracts into a new directory under Options.TempDir which
// the caller owns afterwards. A missing destDir is created. When extraction
// fails a destination created by this call is removed again; a directory
// that existed beforehand is left as is, including any members already
// written to it.
func Extract(ctx context.Context, archivePath, destDir string, opts Options) (_ string, err error) {
	logger := log.OrNop(opts.Logger)

	dest, created, err := fsutil.PrepareDir(destDir, opts.TempDir)
	if err != nil {
		return "", err
	}
	defer func() {
		if err == nil || !created {
			return
		}
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			logger.Warn("Unable to remove extraction directory", zap.String("dir", dest), zap.Error(rmErr))
		}
	}()

	format := opts.Format
	if format == FormatAuto {
		if format, err = Detect(archivePath); err != nil {
			return "", err
		}
	}

	members, err := openMembers(format, archivePath, opts)
	if err != nil {
		return "", err
	}
	defer members.Close()

	// Every write goes through root so links already on disk cannot carry a
	// member outside dest.
	root, err := os.OpenRoot(dest)
	if err != nil {
		return "", err
	}
	defer root.Close()

	logger.Debug("Extracting archive",
		zap.String("archive", archivePath),
		zap.String("format", string(format)),
		zap.String("dest", dest),
		zap.Bool("created", created))

	x := &extractor{
		ctx:    ctx,
		dest:   dest,
		root:   root,
		opts:   opts,
		buf:    make([]byte, extractCopyBufferSize),
		logger: logger,
	}
	if err := x.run(members); err != nil {
		return "", fmt.Errorf("extract %s: %w", archivePath, err)
	}
	return dest, nil
}

type extractor struct {
	ctx    context.Context
	dest   string
	root   *os.Root
	opts   Options
	buf    []byte
	total  int64
	logger *zap.Logger
}

func (x *extractor) run(members memberReader) error {
	for {
		if err := x.ctx.Err(); err != nil {
			return err
		}

		member, content, err := members.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name, skip, err := x.target(member)
		if err != nil {
			return err
		}
		if skip {
			continue
		}

		switch {
		case member.isSymlink():
			if !x.opts.AllowSymlinks {
				return fmt.Errorf("archive entry %q: %w", member.Name, ErrSymlinkDisabled)
			}
			if err := x.writeSymlink(content, name); err != nil {
				return fmt.Errorf("extract symlink %q: %w", member.Name, err)
			}
		case member.IsDir:
			if err := x.root.MkdirAll(name, dirMode(member.Mode)); err != nil {
				return err
			}
			x.applyModTime(name, member.ModTime)
		default:
			if err := x.writeFile(member, content, name); err != nil {
				return fmt.Errorf("extract %q: %w", member.Name, err)
			}
		}
		x.logger.Debug("Extracted", zap.String("member", member.Name), zap.String("path", filepath.Join(x.dest, name)))
	}
}

// target maps a member onto its path relative to the destination. skip is
// set for members that produce nothing, which are directories in flatten
// mode.
func (x *extractor) target(member Member) (string, bool, error) {
	rel, ok := fsutil.SanitizeRelPath(member.Name)
	if !ok {
		return "", false, fmt.Errorf("%w: %q", ErrUnsafePath, member.Name)
	}
	if x.opts.Flatten && member.IsDir {
		return "", true, nil
	}

	target := fsutil.SafeJoin(x.dest, !x.opts.Flatten, rel)
	if target == x.dest || !fsutil.WithinRoot(x.dest, target) {
		return "", false, fmt.Errorf("%w: %q", ErrUnsafePath, member.Name)
	}
	name, err := filepath.Rel(x.dest, target)
	if err != nil {
		return "", false, err
	}
	return name, false, nil
}

func (x *extractor) writeFile(member Member, content io.Reader, name string) error {
	if limit := x.opts.MaxTotalBytes; limit > 0 && member.Size > limit-x.total {
		return ErrSizeLimit
	}

	if err := x.mkdirParent(name); err != nil {
		return err
	}
	out, err := x.root.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode(member.Mode))
	if err != nil {
		return err
	}

	copyErr := x.copy(out, content)
	syncErr := out.Sync()
	closeErr := out.Close()
	for _, err := range []error{copyErr, syncErr, closeErr} {
		if err != nil {
			_ = x.root.Remove(name)
			return err
		}
	}

	x.applyModTime(name, member.ModTime)
	return nil
}

func (x *extractor) copy(out io.Writer, content io.Reader) error {
	src := io.Reader(&contextReader{ctx: x.ctx, r: content})
	limit := x.opts.MaxTotalBytes
	if limit > 0 {
		// One byte past the budget is enough to detect an overrun.
		src = io.LimitReader(src, limit-x.total+1)
	}

	n, err := io.CopyBuffer(out, src, x.buf)
	x.total += n
	if err != nil {
		return err
	}
	if limit > 0 && x.total > limit {
		return ErrSizeLimit
	}
	return nil
}

func (x *extractor) writeSymlink(content io.Reader, name string) error {
	value, err := decodeSymlinkTarget(content)
	if err != nil {
		return err
	}

	linkTarget, err := fsutil.SanitizeLinkTarget(name, value)
	if err != nil {
		return err
	}
	// The target was checked lexically, which only holds while no parent of
	// the link is itself a link.
	if err := x.refuseLinkedParents(name); err != nil {
		return err
	}

	if err := x.mkdirParent(name); err != nil {
		return err
	}
	return x.root.Symlink(linkTarget, name)
}

func (x *extractor) refuseLinkedParents(name string) error {
	for dir := filepath.Dir(name); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		info, err := x.root.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: parent %q is a symlink", ErrUnsafePath, filepath.ToSlash(dir))
		}
	}
	return nil
}

func (x *extractor) mkdirParent(name string) error {
	dir := filepath.Dir(name)
	if dir == "." {
		return nil
	}
	return x.root.MkdirAll(dir, 0o755)
}

func (x *extractor) applyModTime(name string, modTime time.Time) {
	if modTime.IsZero() {
		return
	}
	_ = x.root.Chtimes(name, time.Now(), modTime)
}

func decodeSymlinkTarget(reader io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(reader, maxSymlinkTargetBytes+1))
	if err != nil {
		return "", err
	}
	if len(raw) > maxSymlinkTargetBytes {
		return "", fmt.Errorf("symlink target exceeds %d bytes", maxSymlinkTargetBytes)
	}

	value := strings.TrimRight(string(raw), "\x00")
	if value == "" {
		return "", fmt.Errorf("symlink target is empty")
	}
	return value, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func fileMode(mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o644
	}
	return perm
}

func dirMode(mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o755
	}
	return perm
}

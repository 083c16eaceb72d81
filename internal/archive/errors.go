package archive

import (
	"errors"

	"github.com/nwaples/rardecode/v2"
)

var (
	// ErrUnsafePath is returned for a member whose name cannot be confined to
	// the destination directory.
	ErrUnsafePath = errors.New("unsafe path in archive")
	// ErrSymlinkDisabled is returned for symlink members when they are not
	// allowed by Options.
	ErrSymlinkDisabled = errors.New("symlink extraction is disabled")
	// ErrSizeLimit is returned once extracted content exceeds
	// Options.MaxTotalBytes.
	ErrSizeLimit = errors.New("extracted size exceeds limit")
	// ErrUnsupportedFormat is returned when the archive format cannot be
	// determined or has no backend.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// IsPasswordError reports whether err indicates that archive decryption
// credentials are required or incorrect.
func IsPasswordError(err error) bool {
	return errors.Is(err, rardecode.ErrArchiveEncrypted) ||
		errors.Is(err, rardecode.ErrArchivedFileEncrypted) ||
		errors.Is(err, rardecode.ErrBadPassword)
}

package archive

import (
	"fmt"
	"io"
	"io/fs"
	"time"
)

// Member describes one archive entry.
type Member struct {
	Name      string
	IsDir     bool
	Mode      fs.FileMode
	ModTime   time.Time
	Size      int64
	Encrypted bool
}

func (m Member) isSymlink() bool {
	return m.Mode&fs.ModeSymlink != 0
}

// memberReader iterates archive members in archive order. The reader
// returned by Next is valid until the following call to Next or Close; Next
// returns io.EOF once all members were visited.
type memberReader interface {
	Next() (Member, io.Reader, error)
	Close() error
}

func openMembers(format Format, path string, opts Options) (memberReader, error) {
	switch format {
	case FormatZip:
		z, err := openZipMembers(path)
		if err != nil {
			return nil, err
		}
		return z, nil
	case FormatRar:
		r, err := openRarMembers(path, opts.decodeOptions()...)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

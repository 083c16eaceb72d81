package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hidez8891/zip"
)

type zipMembers struct {
	rc      *zip.ReadCloser
	index   int
	current io.ReadCloser
}

func openZipMembers(path string) (*zipMembers, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read archive file (%s): %w", path, err)
	}
	return &zipMembers{rc: rc}, nil
}

func (z *zipMembers) Next() (Member, io.Reader, error) {
	if err := z.closeCurrent(); err != nil {
		return Member{}, nil, err
	}
	if z.index >= len(z.rc.File) {
		return Member{}, nil, io.EOF
	}

	file := z.rc.File[z.index]
	z.index++

	member := zipMember(file)
	if member.IsDir {
		return member, bytes.NewReader(nil), nil
	}

	rc, err := file.Open()
	if err != nil {
		return Member{}, nil, fmt.Errorf("open %q: %w", file.Name, err)
	}
	z.current = rc
	return member, rc, nil
}

func (z *zipMembers) closeCurrent() error {
	if z.current == nil {
		return nil
	}
	err := z.current.Close()
	z.current = nil
	return err
}

func (z *zipMembers) Close() error {
	_ = z.closeCurrent()
	return z.rc.Close()
}

func zipMember(file *zip.File) Member {
	info := file.FileInfo()
	return Member{
		Name:    file.Name,
		IsDir:   info.IsDir(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}
}

package archive

import (
	"io"

	"github.com/nwaples/rardecode/v2"
)

type rarReader interface {
	Next() (*rardecode.FileHeader, error)
	io.Reader
	io.Closer
}

type rarMembers struct {
	r rarReader
}

var openRarReader = func(path string, opts ...rardecode.Option) (rarReader, error) {
	return rardecode.OpenReader(path, opts...)
}

func openRarMembers(path string, opts ...rardecode.Option) (*rarMembers, error) {
	r, err := openRarReader(path, opts...)
	if err != nil {
		return nil, err
	}
	return &rarMembers{r: r}, nil
}

func (m *rarMembers) Next() (Member, io.Reader, error) {
	header, err := m.r.Next()
	if err != nil {
		return Member{}, nil, err
	}
	return rarMember(header), m.r, nil
}

func (m *rarMembers) Close() error {
	return m.r.Close()
}

func rarMember(header *rardecode.FileHeader) Member {
	return Member{
		Name:      header.Name,
		IsDir:     header.IsDir,
		Mode:      header.Mode(),
		ModTime:   header.ModificationTime,
		Size:      header.UnPackedSize,
		Encrypted: header.Encrypted,
	}
}

// decodeOptions converts RAR related settings into rardecode options.
func (o Options) decodeOptions() []rardecode.Option {
	opts := make([]rardecode.Option, 0, 2)
	if o.MaxDictionaryBytes > 0 {
		opts = append(opts, rardecode.MaxDictionarySize(o.MaxDictionaryBytes))
	}
	if o.Password != "" {
		opts = append(opts, rardecode.Password(o.Password))
	}
	return opts
}

package archive

import (
	"context"

	"github.com/hidez8891/zip"
	"github.com/nwaples/rardecode/v2"
)

var listRar = rardecode.List

// List returns the members of an archive without extracting any content.
func List(ctx context.Context, path string, opts Options) ([]Member, error) {
	format := opts.Format
	if format == FormatAuto {
		var err error
		if format, err = Detect(path); err != nil {
			return nil, err
		}
	}

	switch format {
	case FormatZip:
		return listZip(ctx, path)
	case FormatRar:
		files, err := listRar(path, opts.decodeOptions()...)
		if err != nil {
			return nil, err
		}
		out := make([]Member, 0, len(files))
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out = append(out, rarMember(&file.FileHeader))
		}
		return out, nil
	}
	return nil, ErrUnsupportedFormat
}

func listZip(ctx context.Context, path string) ([]Member, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	out := make([]Member, 0, len(rc.File))
	for _, file := range rc.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, zipMember(file))
	}
	return out, nil
}

package archive

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/h2non/filetype"
)

// Format names an archive container.
type Format string

const (
	FormatAuto Format = ""
	FormatZip  Format = "zip"
	FormatRar  Format = "rar"
)

// sniffBytes is what filetype needs to recognize any of its matchers.
const sniffBytes = 262

// zip based containers are extracted as plain zip.
var formatByExtension = map[string]Format{
	"zip":  FormatZip,
	"docx": FormatZip,
	"xlsx": FormatZip,
	"pptx": FormatZip,
	"epub": FormatZip,
	"jar":  FormatZip,
	"apk":  FormatZip,
	"rar":  FormatRar,
}

// ParseFormat maps a user supplied name ("auto", "zip", "rar") to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return FormatAuto, nil
	case "zip":
		return FormatZip, nil
	case "rar":
		return FormatRar, nil
	}
	return FormatAuto, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Detect sniffs the content of path. RAR self-extracting archives, which
// start with an executable stub, are found by scanning for the RAR
// signature.
func Detect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatAuto, err
	}
	defer f.Close()

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return FormatAuto, err
	}

	kind, err := filetype.Match(head[:n])
	if err == nil && kind != filetype.Unknown {
		if format, ok := formatByExtension[kind.Extension]; ok {
			return format, nil
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return FormatAuto, err
	}
	ok, err := scanRarSignature(f)
	if err != nil {
		return FormatAuto, err
	}
	if ok {
		return FormatRar, nil
	}
	return FormatAuto, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

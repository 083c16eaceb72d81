package hashing

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/mentat-is/muty-go/internal/fsutil"
)

// Entry is a single checksum manifest line.
type Entry struct {
	Name   string
	Digest string
}

// Mismatch describes an entry whose file content does not match.
type Mismatch struct {
	Name     string
	Expected string
	Actual   string
}

// VerificationError captures all missing, unsafe and mismatched entries.
type VerificationError struct {
	Missing    []string
	Unsafe     []string
	Mismatches []Mismatch
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf(
		"manifest verification failed: %d missing, %d unsafe, %d mismatched",
		len(e.Missing),
		len(e.Unsafe),
		len(e.Mismatches),
	)
}

var manifestExtensions = map[string]Algorithm{
	".sfv":    CRC32,
	".md5":    MD5,
	".sha1":   SHA1,
	".sha256": SHA256,
	".b2":     BLAKE2b,
}

// ManifestAlgorithm guesses the digest used by a manifest from its
// extension.
func ManifestAlgorithm(path string) (Algorithm, bool) {
	a, ok := manifestExtensions[strings.ToLower(filepath.Ext(path))]
	return a, ok
}

// ParseManifest reads checksum lines. CRC32 manifests use the SFV layout
// ("name CRC", ';' comments), every other algorithm the coreutils one
// ("digest  name", optional '*' before binary names).
func ParseManifest(r io.Reader, a Algorithm) ([]Entry, error) {
	h, err := a.New()
	if err != nil {
		return nil, err
	}
	digestLen := 2 * h.Size()

	scanner := bufio.NewScanner(r)
	entries := make([]Entry, 0, 16)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "#") {
			continue
		}

		var entry Entry
		if a == CRC32 {
			entry, err = parseSFVLine(line)
		} else {
			entry, err = parseSumLine(trimmed, digestLen)
		}
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseSFVLine(line string) (Entry, error) {
	last := len(line) - 1
	for last >= 0 && unicode.IsSpace(rune(line[last])) {
		last--
	}

	crcEnd := last + 1
	for last >= 0 && isHexDigit(line[last]) {
		last--
	}

	crcStart := last + 1
	if crcEnd-crcStart != 8 {
		return Entry{}, errors.New("invalid crc field")
	}
	if last < 0 || !unicode.IsSpace(rune(line[last])) {
		return Entry{}, errors.New("missing separator before crc")
	}

	name := strings.TrimSpace(line[:last+1])
	if name == "" {
		return Entry{}, errors.New("missing filename")
	}
	return Entry{Name: name, Digest: strings.ToLower(line[crcStart:crcEnd])}, nil
}

func parseSumLine(line string, digestLen int) (Entry, error) {
	digest, name, ok := strings.Cut(line, " ")
	if !ok || len(digest) != digestLen {
		return Entry{}, errors.New("invalid digest field")
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return Entry{}, fmt.Errorf("invalid digest %q: %w", digest, err)
	}
	name = strings.TrimPrefix(strings.TrimLeft(name, " "), "*")
	if name == "" {
		return Entry{}, errors.New("missing filename")
	}
	return Entry{Name: name, Digest: strings.ToLower(digest)}, nil
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// Verify checks all entries against files under baseDir. Entry names are
// resolved with fsutil.SafeJoin, names escaping baseDir are reported as
// unsafe and never opened.
func Verify(ctx context.Context, a Algorithm, baseDir string, entries []Entry) error {
	var verr VerificationError

	base := fsutil.SafeJoin(baseDir, true)
	for _, entry := range entries {
		name := filepath.FromSlash(strings.ReplaceAll(entry.Name, `\`, "/"))
		target := fsutil.SafeJoin(base, true, name)
		if target == base {
			verr.Unsafe = append(verr.Unsafe, entry.Name)
			continue
		}

		actual, err := File(ctx, a, target)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				verr.Missing = append(verr.Missing, entry.Name)
				continue
			}
			return fmt.Errorf("verify %q: %w", entry.Name, err)
		}
		if actual != entry.Digest {
			verr.Mismatches = append(verr.Mismatches, Mismatch{
				Name:     entry.Name,
				Expected: entry.Digest,
				Actual:   actual,
			})
		}
	}

	if len(verr.Missing) > 0 || len(verr.Unsafe) > 0 || len(verr.Mismatches) > 0 {
		return &verr
	}
	return nil
}

// VerifyManifest parses the manifest at path and verifies it against the
// directory holding it. It returns the number of verified entries.
func VerifyManifest(ctx context.Context, a Algorithm, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	entries, err := ParseManifest(f, a)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if err := Verify(ctx, a, filepath.Dir(path), entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Package hashing wraps the digests used across muty behind one small API.
package hashing

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm selects a digest.
type Algorithm int

const (
	SHA256 Algorithm = iota
	MD5
	SHA1
	BLAKE2b
	CRC32
)

// FileChunkSize is how much File reads per step.
const FileChunkSize = 1024 * 1000

var algorithmNames = map[Algorithm]string{
	SHA256:  "sha256",
	MD5:     "md5",
	SHA1:    "sha1",
	BLAKE2b: "blake2b",
	CRC32:   "crc32",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm accepts the names printed by Algorithm.String, case
// insensitively.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for alg, n := range algorithmNames {
		if n == name {
			return alg, nil
		}
	}
	return 0, fmt.Errorf("unknown hash algorithm %q", name)
}

// New returns a fresh hash.Hash for a.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case BLAKE2b:
		// Unkeyed New512 never fails.
		return blake2b.New512(nil)
	case CRC32:
		return crc32.NewIEEE(), nil
	}
	return nil, fmt.Errorf("unknown hash algorithm %v", a)
}

// Sum returns the raw digest of data.
func Sum(a Algorithm, data []byte) ([]byte, error) {
	h, err := a.New()
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// Hex returns the lowercase hex digest of data.
func Hex(a Algorithm, data []byte) (string, error) {
	sum, err := Sum(a, data)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// File streams the file at path through a and returns the hex digest.
func File(ctx context.Context, a Algorithm, path string) (string, error) {
	h, err := a.New()
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, FileChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UniqueInt derives a stable int64 from data: the first 8 bytes of its
// SHA-256 digest, little endian.
func UniqueInt(data []byte) int64 {
	sum := sha256.Sum256(data)
	return int64(binary.LittleEndian.Uint64(sum[:8]))
}

const (
	crc24Init = 0xB704CE
	crc24Poly = 0x1864CFB
)

// CRC24 computes the OpenPGP CRC-24 (RFC 4880) of data.
func CRC24(data []byte) uint32 {
	crc := uint32(crc24Init)
	for _, octet := range data {
		crc ^= uint32(octet) << 16
		for i := 0; i < 8; i++ {
			crc <<= 1
			if crc&0x1000000 != 0 {
				crc ^= crc24Poly
			}
		}
	}
	return crc & 0xFFFFFF
}

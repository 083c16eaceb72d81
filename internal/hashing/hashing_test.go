package hashing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestHexKnownVectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		alg  Algorithm
		want string
	}{
		{alg: MD5, want: "900150983cd24fb0d6963f7d28e17f72"},
		{alg: SHA1, want: "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{alg: SHA256, want: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{alg: CRC32, want: "352441c2"},
		{alg: BLAKE2b, want: "ba80a53f981c4d0d6a2797b69f12f6e94c212f14685ac4b74b12bb6fdbffa2d1" +
			"7d87c5392aab792dc252d5de4533cc9518d38aa8dbf1925ab92386edd4009923"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.alg.String(), func(t *testing.T) {
			t.Parallel()

			got, err := Hex(tc.alg, []byte("abc"))
			assert.NilError(t, err)
			assert.Equal(t, got, tc.want)
		})
	}
}

func TestFileMatchesHex(t *testing.T) {
	t.Parallel()

	data := []byte(strings.Repeat("0123456789", FileChunkSize/10+7))
	path := filepath.Join(t.TempDir(), "data.bin")
	assert.NilError(t, os.WriteFile(path, data, 0o644))

	for _, alg := range []Algorithm{MD5, SHA1, SHA256, BLAKE2b, CRC32} {
		want, err := Hex(alg, data)
		assert.NilError(t, err)
		got, err := File(context.Background(), alg, path)
		assert.NilError(t, err)
		assert.Equal(t, got, want, "algorithm %v", alg)
	}
}

func TestFileCanceled(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	assert.NilError(t, os.WriteFile(path, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := File(ctx, SHA256, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseAlgorithm(t *testing.T) {
	t.Parallel()

	for _, alg := range []Algorithm{MD5, SHA1, SHA256, BLAKE2b, CRC32} {
		got, err := ParseAlgorithm(strings.ToUpper(alg.String()))
		assert.NilError(t, err)
		assert.Equal(t, got, alg)
	}

	_, err := ParseAlgorithm("crc64")
	assert.ErrorContains(t, err, "unknown hash algorithm")
}

func TestUniqueIntIsStable(t *testing.T) {
	t.Parallel()

	// sha256("abc") starts with ba 78 16 bf 8f 01 cf ea
	assert.Equal(t, UniqueInt([]byte("abc")), int64(-0x1530fe7040e98746))
	assert.Equal(t, UniqueInt([]byte("abc")), UniqueInt([]byte("abc")))
	assert.Assert(t, UniqueInt([]byte("abc")) != UniqueInt([]byte("abd")))
}

func TestCRC24(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CRC24(nil), uint32(0xB704CE))
	assert.Equal(t, CRC24([]byte("123456789")), uint32(0x21CF02))
}

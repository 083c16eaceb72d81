package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nwaples/rardecode/v2"
	"go.uber.org/zap/zaptest"
)

type fakeArchiveEntry struct {
	header rardecode.FileHeader
	data   []byte
}

type fakeArchiveReader struct {
	entries []fakeArchiveEntry
	index   int
	current *bytes.Reader
	closed  bool
	failAt  int
}

func (r *fakeArchiveReader) Next() (*rardecode.FileHeader, error) {
	if r.failAt > 0 && r.index == r.failAt {
		return nil, errors.New("corrupt header")
	}
	if r.index >= len(r.entries) {
		return nil, io.EOF
	}

	entry := r.entries[r.index]
	r.index++
	r.current = bytes.NewReader(entry.data)

	headerCopy := entry.header
	return &headerCopy, nil
}

func (r *fakeArchiveReader) Read(p []byte) (int, error) {
	if r.current == nil {
		return 0, io.EOF
	}
	return r.current.Read(p)
}

func (r *fakeArchiveReader) Close() error {
	r.closed = true
	return nil
}

func symlinkHeader(name string) rardecode.FileHeader {
	return rardecode.FileHeader{
		Name:       name,
		HostOS:     rardecode.HostOSUnix,
		Attributes: 0xA000 | 0o777,
	}
}

func newTestExtractor(t *testing.T, dest string, opts Options) *extractor {
	t.Helper()
	root, err := os.OpenRoot(dest)
	if err != nil {
		t.Fatalf("open root: %v", err)
	}
	t.Cleanup(func() { _ = root.Close() })
	return &extractor{
		ctx:    context.Background(),
		dest:   dest,
		root:   root,
		opts:   opts,
		buf:    make([]byte, 1024),
		logger: zaptest.NewLogger(t),
	}
}

func TestExtractRarMembersFullPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	modTime := time.Now().Add(-time.Hour).Truncate(time.Second)

	reader := &fakeArchiveReader{
		entries: []fakeArchiveEntry{
			{header: rardecode.FileHeader{Name: "nested", IsDir: true, ModificationTime: modTime}},
			{header: rardecode.FileHeader{Name: "nested\\file.txt", ModificationTime: modTime}, data: []byte("hello")},
		},
	}

	if err := newTestExtractor(t, root, Options{}).run(&rarMembers{r: reader}); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "nested", "file.txt"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("extracted content=%q, want %q", string(data), "hello")
	}

	info, err := os.Stat(filepath.Join(root, "nested", "file.txt"))
	if err != nil {
		t.Fatalf("stat extracted file: %v", err)
	}
	if got := info.ModTime().Truncate(time.Second); !got.Equal(modTime) {
		t.Fatalf("modtime=%v, want %v", got, modTime)
	}
}

func TestExtractRarMembersFlatten(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	reader := &fakeArchiveReader{
		entries: []fakeArchiveEntry{
			{header: rardecode.FileHeader{Name: "nested/file.txt"}, data: []byte("flatten")},
			{header: rardecode.FileHeader{Name: "nested/ignored-dir", IsDir: true}},
		},
	}

	if err := newTestExtractor(t, root, Options{Flatten: true}).run(&rarMembers{r: reader}); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "file.txt"))
	if err != nil {
		t.Fatalf("read flattened file: %v", err)
	}
	if got := string(data); got != "flatten" {
		t.Fatalf("flattened content=%q, want %q", got, "flatten")
	}
	if _, err := os.Stat(filepath.Join(root, "nested")); !os.IsNotExist(err) {
		t.Fatalf("did not expect nested directory in flatten mode, stat err=%v", err)
	}
}

func TestExtractRarMembersRejectsUnsafePath(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"../escape.txt", "/etc/passwd", "C:\\boot.ini", "a/../../x"} {
		root := t.TempDir()
		reader := &fakeArchiveReader{
			entries: []fakeArchiveEntry{
				{header: rardecode.FileHeader{Name: name}, data: []byte("boom")},
			},
		}

		err := newTestExtractor(t, root, Options{}).run(&rarMembers{r: reader})
		if !errors.Is(err, ErrUnsafePath) {
			t.Fatalf("run(%q) err=%v, want ErrUnsafePath", name, err)
		}
		if _, statErr := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt")); !os.IsNotExist(statErr) {
			t.Fatalf("member %q escaped the destination", name)
		}
	}
}

func TestExtractRarMembersSymlinkPolicy(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		reader := &fakeArchiveReader{
			entries: []fakeArchiveEntry{{header: symlinkHeader("link"), data: []byte("target.txt")}},
		}
		err := newTestExtractor(t, root, Options{}).run(&rarMembers{r: reader})
		if !errors.Is(err, ErrSymlinkDisabled) {
			t.Fatalf("run err=%v, want ErrSymlinkDisabled", err)
		}
	})

	t.Run("allowed inside root", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		reader := &fakeArchiveReader{
			entries: []fakeArchiveEntry{
				{header: rardecode.FileHeader{Name: "dir/target.txt"}, data: []byte("x")},
				{header: symlinkHeader("dir/link"), data: []byte("target.txt\x00")},
			},
		}
		if err := newTestExtractor(t, root, Options{AllowSymlinks: true}).run(&rarMembers{r: reader}); err != nil {
			t.Fatalf("run returned error: %v", err)
		}
		got, err := os.Readlink(filepath.Join(root, "dir", "link"))
		if err != nil {
			t.Fatalf("readlink: %v", err)
		}
		if got != "target.txt" {
			t.Fatalf("link target=%q, want %q", got, "target.txt")
		}
	})

	t.Run("allowed but escaping", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		reader := &fakeArchiveReader{
			entries: []fakeArchiveEntry{{header: symlinkHeader("link"), data: []byte("../../etc/passwd")}},
		}
		err := newTestExtractor(t, root, Options{AllowSymlinks: true}).run(&rarMembers{r: reader})
		if err == nil {
			t.Fatal("expected escaping symlink to be rejected")
		}
		if _, statErr := os.Lstat(filepath.Join(root, "link")); !os.IsNotExist(statErr) {
			t.Fatalf("escaping symlink was created, stat err=%v", statErr)
		}
	})
}

func TestExtractRarMembersPropagatesReaderErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	reader := &fakeArchiveReader{
		entries: []fakeArchiveEntry{
			{header: rardecode.FileHeader{Name: "a.txt"}, data: []byte("a")},
			{header: rardecode.FileHeader{Name: "b.txt"}, data: []byte("b")},
		},
		failAt: 1,
	}

	err := newTestExtractor(t, root, Options{}).run(&rarMembers{r: reader})
	if err == nil || err.Error() != "corrupt header" {
		t.Fatalf("run err=%v, want corrupt header", err)
	}
}

func TestExtractRarRollsBackCreatedDestination(t *testing.T) {
	reader := &fakeArchiveReader{
		entries: []fakeArchiveEntry{
			{header: rardecode.FileHeader{Name: "ok.txt"}, data: []byte("ok")},
			{header: rardecode.FileHeader{Name: "../escape.txt"}, data: []byte("boom")},
		},
	}
	original := openRarReader
	openRarReader = func(path string, opts ...rardecode.Option) (rarReader, error) {
		return reader, nil
	}
	t.Cleanup(func() { openRarReader = original })

	dest := filepath.Join(t.TempDir(), "out")
	_, err := Extract(context.Background(), "fixture.rar", dest, Options{Format: FormatRar, Logger: zaptest.NewLogger(t)})
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Extract err=%v, want ErrUnsafePath", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("created destination was not removed, stat err=%v", statErr)
	}
	if !reader.closed {
		t.Fatal("archive reader was not closed")
	}
}

func TestOptionsDecodeOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    Options
		wantLen int
	}{
		{name: "empty settings", opts: Options{}, wantLen: 0},
		{name: "max dictionary only", opts: Options{MaxDictionaryBytes: 1 << 20}, wantLen: 1},
		{name: "password only", opts: Options{Password: "secret"}, wantLen: 1},
		{name: "both settings", opts: Options{MaxDictionaryBytes: 1 << 20, Password: "secret"}, wantLen: 2},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := len(tc.opts.decodeOptions()); got != tc.wantLen {
				t.Fatalf("decodeOptions len=%d, want %d", got, tc.wantLen)
			}
		})
	}
}

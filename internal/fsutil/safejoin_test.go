package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeJoinAllowRelative(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	tests := []struct {
		name     string
		segments []string
		want     string
	}{
		{
			name:     "nested segments",
			segments: []string{"a", "b", "c.txt"},
			want:     filepath.Join(root, "a", "b", "c.txt"),
		},
		{
			name:     "inner dot dot stays inside",
			segments: []string{"a", "..", "b"},
			want:     filepath.Join(root, "b"),
		},
		{
			name:     "escape falls back to root",
			segments: []string{"..", "..", "etc", "passwd"},
			want:     root,
		},
		{
			name:     "escape hidden in one segment",
			segments: []string{"a/../../outside"},
			want:     root,
		},
		{
			name:     "absolute segment outside root",
			segments: []string{"a", "/etc/passwd"},
			want:     root,
		},
		{
			name:     "absolute segment inside root",
			segments: []string{filepath.Join(root, "inside")},
			want:     filepath.Join(root, "inside"),
		},
		{
			name:     "sibling with shared prefix is rejected",
			segments: []string{"..", filepath.Base(root) + "-evil", "x"},
			want:     root,
		},
		{
			name:     "dot resolves to root",
			segments: []string{"."},
			want:     root,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := SafeJoin(root, true, tc.segments...)
			if got != tc.want {
				t.Fatalf("SafeJoin(%q, true, %q)=%q, want %q", root, tc.segments, got, tc.want)
			}
			if !WithinRoot(root, got) {
				t.Fatalf("SafeJoin result %q escaped root %q", got, root)
			}
		})
	}
}

func TestSafeJoinBasenameOnly(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	tests := []struct {
		name     string
		segments []string
		want     string
	}{
		{name: "keeps last segment", segments: []string{"a", "b"}, want: filepath.Join(root, "b")},
		{name: "drops traversal", segments: []string{"../../etc/passwd"}, want: filepath.Join(root, "passwd")},
		{name: "absolute segment", segments: []string{"/var/log/syslog"}, want: filepath.Join(root, "syslog")},
		{name: "escape to filesystem root", segments: []string{"../../../../../../../../.."}, want: root},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := SafeJoin(root, false, tc.segments...)
			if got != tc.want {
				t.Fatalf("SafeJoin(%q, false, %q)=%q, want %q", root, tc.segments, got, tc.want)
			}
		})
	}
}

func TestSafeJoinEmptySegmentsReturnsNormalizedRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	messy := root + string(os.PathSeparator) + "x" + string(os.PathSeparator) + ".."

	for _, allowRelative := range []bool{true, false} {
		if got := SafeJoin(messy, allowRelative); got != root {
			t.Fatalf("SafeJoin(%q, %v)=%q, want %q", messy, allowRelative, got, root)
		}
	}
}

func TestSafeJoinRelativeRootIsMadeAbsolute(t *testing.T) {
	t.Parallel()

	got := SafeJoin("relative/root", true, "file.txt")
	if !filepath.IsAbs(got) {
		t.Fatalf("SafeJoin returned non-absolute path %q", got)
	}

	wantRoot, err := filepath.Abs("relative/root")
	if err != nil {
		t.Fatalf("filepath.Abs failed: %v", err)
	}
	if want := filepath.Join(wantRoot, "file.txt"); got != want {
		t.Fatalf("SafeJoin=%q, want %q", got, want)
	}
}

func TestSafeJoinIsIdempotent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	inputs := [][]string{
		{"a", "b", "c"},
		{"..", "escape"},
		{"x", "..", "y"},
	}

	for _, segments := range inputs {
		for _, allowRelative := range []bool{true, false} {
			first := SafeJoin(root, allowRelative, segments...)
			second := SafeJoin(root, allowRelative, first)
			if first != second {
				t.Fatalf("SafeJoin not idempotent for %q (allowRelative=%v): %q then %q",
					segments, allowRelative, first, second)
			}
		}
	}
}

func TestWithinRoot(t *testing.T) {
	t.Parallel()

	sep := string(os.PathSeparator)
	root := sep + filepath.Join("srv", "data")

	tests := []struct {
		path string
		want bool
	}{
		{path: root, want: true},
		{path: filepath.Join(root, "a"), want: true},
		{path: root + sep, want: true},
		{path: root + "-other", want: false},
		{path: filepath.Dir(root), want: false},
		{path: filepath.Join(root, "..", "x"), want: false},
	}

	for _, tc := range tests {
		if got := WithinRoot(root, tc.path); got != tc.want {
			t.Fatalf("WithinRoot(%q, %q)=%v, want %v", root, tc.path, got, tc.want)
		}
	}

	if !WithinRoot(sep, filepath.Join(sep, "etc")) {
		t.Fatal("expected every absolute path to be within the filesystem root")
	}
}

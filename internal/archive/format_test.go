package archive

import (
	"bytes"
	"errors"
	"testing"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	zipPath := writeZipFixture(t, zipFixtureEntry{name: "a.txt", body: "a"})
	rarPath := writeFixture(t, append(append([]byte{}, rar5Signature...), bytes.Repeat([]byte{0}, 64)...))
	sfxPath := writeFixture(t, append(append([]byte("MZ"), bytes.Repeat([]byte{0x90}, 4096)...), rar4Signature...))
	textPath := writeFixture(t, []byte("hello world"))

	tests := []struct {
		name    string
		path    string
		want    Format
		wantErr error
	}{
		{name: "zip", path: zipPath, want: FormatZip},
		{name: "rar", path: rarPath, want: FormatRar},
		{name: "rar sfx", path: sfxPath, want: FormatRar},
		{name: "unknown", path: textPath, wantErr: ErrUnsupportedFormat},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Detect(tc.path)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Detect err=%v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Detect=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]Format{"": FormatAuto, "auto": FormatAuto, "ZIP": FormatZip, " rar ": FormatRar}
	for input, want := range tests {
		got, err := ParseFormat(input)
		if err != nil {
			t.Fatalf("ParseFormat(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseFormat(%q)=%q, want %q", input, got, want)
		}
	}

	if _, err := ParseFormat("7z"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("ParseFormat(7z) err=%v, want ErrUnsupportedFormat", err)
	}
}

package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nwaples/rardecode/v2"
)

type extractionAttempt struct {
	Password string
	MaxDict  int64
	Flatten  bool
}

func recordingExtract(attempts *[]extractionAttempt, result func(password string) (string, error)) extractFunc {
	return func(_ context.Context, _, _ string, opts Options) (string, error) {
		*attempts = append(*attempts, extractionAttempt{
			Password: opts.Password,
			MaxDict:  opts.MaxDictionaryBytes,
			Flatten:  opts.Flatten,
		})
		return result(opts.Password)
	}
}

func writePasswordFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passwords.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write password file: %v", err)
	}
	return path
}

func TestExtractWithPasswordsUnencrypted(t *testing.T) {
	t.Parallel()

	var attempts []extractionAttempt
	extract := recordingExtract(&attempts, func(string) (string, error) { return "/out", nil })

	dest, err := extractWithPasswords(context.Background(), extract, "/archives/release.rar", "", Options{MaxDictionaryBytes: 1 << 20}, "/unused/passwords.txt")
	if err != nil {
		t.Fatalf("extractWithPasswords returned error: %v", err)
	}
	if dest != "/out" {
		t.Fatalf("dest=%q, want /out", dest)
	}
	if !reflect.DeepEqual(attempts, []extractionAttempt{{MaxDict: 1 << 20}}) {
		t.Fatalf("attempts=%v", attempts)
	}
}

func TestExtractWithPasswordsRetriesPasswordFile(t *testing.T) {
	t.Parallel()

	passwordFile := writePasswordFile(t, "wrong\nsecret\n")

	var attempts []extractionAttempt
	extract := recordingExtract(&attempts, func(password string) (string, error) {
		switch password {
		case "":
			return "", rardecode.ErrArchiveEncrypted
		case "secret":
			return "/out", nil
		default:
			return "", rardecode.ErrBadPassword
		}
	})

	dest, err := extractWithPasswords(context.Background(), extract, "/archives/release.part01.rar", "", Options{MaxDictionaryBytes: 1 << 21, Flatten: true}, passwordFile)
	if err != nil {
		t.Fatalf("extractWithPasswords returned error: %v", err)
	}
	if dest != "/out" {
		t.Fatalf("dest=%q, want /out", dest)
	}

	wantAttempts := []extractionAttempt{
		{Password: "", MaxDict: 1 << 21, Flatten: true},
		{Password: "wrong", MaxDict: 1 << 21, Flatten: true},
		{Password: "secret", MaxDict: 1 << 21, Flatten: true},
	}
	if !reflect.DeepEqual(attempts, wantAttempts) {
		t.Fatalf("attempts=%v, want %v", attempts, wantAttempts)
	}
}

func TestExtractWithPasswordsSkipsGivenPassword(t *testing.T) {
	t.Parallel()

	passwordFile := writePasswordFile(t, "first\nsecond\n")

	var attempts []extractionAttempt
	extract := recordingExtract(&attempts, func(string) (string, error) { return "", rardecode.ErrBadPassword })

	_, err := extractWithPasswords(context.Background(), extract, "/archives/release.rar", "", Options{Password: "first"}, passwordFile)
	var passwordErr *PasswordRequiredError
	if !errors.As(err, &passwordErr) {
		t.Fatalf("error=%v, want *PasswordRequiredError", err)
	}
	if !errors.Is(err, rardecode.ErrBadPassword) {
		t.Fatalf("error=%v, want to wrap ErrBadPassword", err)
	}
	if len(attempts) != 2 || attempts[1].Password != "second" {
		t.Fatalf("attempts=%v, want first then second", attempts)
	}
}

func TestExtractWithPasswordsWithoutPasswordFile(t *testing.T) {
	t.Parallel()

	var attempts []extractionAttempt
	extract := recordingExtract(&attempts, func(string) (string, error) { return "", rardecode.ErrArchiveEncrypted })

	_, err := extractWithPasswords(context.Background(), extract, "/archives/release.rar", "", Options{}, "")
	var passwordErr *PasswordRequiredError
	if !errors.As(err, &passwordErr) {
		t.Fatalf("error=%T, want *PasswordRequiredError", err)
	}
	if !strings.Contains(err.Error(), "requires a password") {
		t.Fatalf("error=%q, want password hint", err)
	}
}

func TestExtractWithPasswordsMissingPasswordFile(t *testing.T) {
	t.Parallel()

	var attempts []extractionAttempt
	extract := recordingExtract(&attempts, func(string) (string, error) { return "", rardecode.ErrArchiveEncrypted })

	_, err := extractWithPasswords(context.Background(), extract, "/archives/release.rar", "", Options{}, filepath.Join(t.TempDir(), "missing.txt"))
	var passwordErr *PasswordRequiredError
	if !errors.As(err, &passwordErr) {
		t.Fatalf("error=%T, want *PasswordRequiredError", err)
	}
	if passwordErr.PasswordFile == "" {
		t.Fatal("expected password file path in error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error=%v, want to wrap os.ErrNotExist", err)
	}
}

func TestExtractWithPasswordsEmptyPasswordFile(t *testing.T) {
	t.Parallel()

	passwordFile := writePasswordFile(t, "\n\r\n")

	var attempts []extractionAttempt
	extract := recordingExtract(&attempts, func(string) (string, error) { return "", rardecode.ErrArchiveEncrypted })

	_, err := extractWithPasswords(context.Background(), extract, "/archives/release.rar", "", Options{}, passwordFile)
	var passwordErr *PasswordRequiredError
	if !errors.As(err, &passwordErr) {
		t.Fatalf("error=%T, want *PasswordRequiredError", err)
	}
	if passwordErr.Unwrap() == nil || !strings.Contains(passwordErr.Unwrap().Error(), "empty") {
		t.Fatalf("unexpected unwrap error: %v", passwordErr.Unwrap())
	}
}

func TestExtractWithPasswordsPassesThroughOtherErrors(t *testing.T) {
	t.Parallel()

	expected := errors.New("corrupt archive")
	var attempts []extractionAttempt
	extract := recordingExtract(&attempts, func(string) (string, error) { return "", expected })

	_, err := extractWithPasswords(context.Background(), extract, "/archives/release.rar", "", Options{}, "/unused")
	if !errors.Is(err, expected) {
		t.Fatalf("error=%v, want %v", err, expected)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempts=%v, want exactly one", attempts)
	}
}

func TestReadPasswordFile(t *testing.T) {
	t.Parallel()

	passwords, err := ReadPasswordFile(writePasswordFile(t, "alpha\r\n\n beta \n"))
	if err != nil {
		t.Fatalf("ReadPasswordFile returned error: %v", err)
	}
	want := []string{"alpha", " beta "}
	if !reflect.DeepEqual(passwords, want) {
		t.Fatalf("passwords=%v, want %v", passwords, want)
	}

	if _, err := ReadPasswordFile(" "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

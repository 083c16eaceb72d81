package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/mentat-is/muty-go/internal/log"
)

// PasswordRequiredError indicates that an archive is encrypted and none of
// the available passwords opened it.
type PasswordRequiredError struct {
	ArchivePath  string
	PasswordFile string
	Cause        error
}

func (e *PasswordRequiredError) Error() string {
	if e.PasswordFile == "" {
		return fmt.Sprintf("archive %q is encrypted and requires a password", e.ArchivePath)
	}
	return fmt.Sprintf("archive %q is encrypted; add password(s) to %q", e.ArchivePath, e.PasswordFile)
}

func (e *PasswordRequiredError) Unwrap() error {
	return e.Cause
}

type extractFunc func(ctx context.Context, archivePath, destDir string, opts Options) (string, error)

// ExtractWithPasswords behaves like Extract, but when the archive turns out
// to be encrypted and Options.Password does not open it, each line of
// passwordFile is tried in turn. The file is read only in that case.
//
// Every failed attempt is rolled back the way Extract does it, so retrying
// into a destination that existed beforehand may leave members of earlier
// attempts behind.
func ExtractWithPasswords(ctx context.Context, archivePath, destDir string, opts Options, passwordFile string) (string, error) {
	return extractWithPasswords(ctx, Extract, archivePath, destDir, opts, passwordFile)
}

func extractWithPasswords(ctx context.Context, extract extractFunc, archivePath, destDir string, opts Options, passwordFile string) (string, error) {
	dest, err := extract(ctx, archivePath, destDir, opts)
	if err == nil || !IsPasswordError(err) {
		return dest, err
	}
	if passwordFile == "" {
		return "", &PasswordRequiredError{ArchivePath: archivePath, Cause: err}
	}

	passwords, loadErr := ReadPasswordFile(passwordFile)
	if loadErr == nil && len(passwords) == 0 {
		loadErr = errors.New("password file is empty")
	}
	if loadErr != nil {
		return "", &PasswordRequiredError{ArchivePath: archivePath, PasswordFile: passwordFile, Cause: loadErr}
	}

	logger := log.OrNop(opts.Logger)
	lastErr := err
	for i, password := range passwords {
		if password == opts.Password {
			continue
		}
		attempt := opts
		attempt.Password = password

		dest, err := extract(ctx, archivePath, destDir, attempt)
		if err == nil {
			logger.Debug("Archive opened with password from file", zap.String("archive", archivePath), zap.Int("line", i+1))
			return dest, nil
		}
		if !IsPasswordError(err) {
			return "", err
		}
		lastErr = err
	}
	return "", &PasswordRequiredError{ArchivePath: archivePath, PasswordFile: passwordFile, Cause: lastErr}
}

// ReadPasswordFile returns the non-empty lines of path. Lines are taken
// verbatim apart from a trailing carriage return.
func ReadPasswordFile(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("password file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	passwords := make([]string, 0, 8)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		passwords = append(passwords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return passwords, nil
}

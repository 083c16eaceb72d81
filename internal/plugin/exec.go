package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mentat-is/muty-go/internal/fsutil"
)

// ExitError reports an external plugin that exited unsuccessfully.
type ExitError struct {
	Path   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("plugin %s exited with code %d", e.Path, e.Code)
	}
	return fmt.Sprintf("plugin %s exited with code %d: %s", e.Path, e.Code, e.Stderr)
}

// Exec returns a Func running the executable at path with extra arguments.
// Args are written to its stdin as one JSON object; a JSON or JSON5 object
// on stdout is the Result, empty output is an empty Result. A positive timeout bounds
// each run.
func Exec(path string, timeout time.Duration, extra ...string) Func {
	return func(ctx context.Context, args Args) (Result, error) {
		if args == nil {
			args = Args{}
		}
		payload, err := json5.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode plugin args: %w", err)
		}

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, path, extra...)
		cmd.Stdin = bytes.NewReader(payload)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("plugin %s: %w", path, ctxErr)
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil, &ExitError{Path: path, Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
			}
			return nil, fmt.Errorf("plugin %s: %w", path, err)
		}

		out := bytes.TrimSpace(stdout.Bytes())
		res := Result{}
		if len(out) == 0 {
			return res, nil
		}
		if err := json5.Unmarshal(out, &res); err != nil {
			return nil, fmt.Errorf("plugin %s: invalid output: %w", path, err)
		}
		return res, nil
	}
}

// LoadDir registers every executable file directly inside dir under its base
// name without extension, and returns the registered names in natural
// order.
func (r *Registry) LoadDir(dir string, timeout time.Duration) ([]string, error) {
	paths, err := fsutil.List(dir, "*", fsutil.ListOptions{FilesOnly: true})
	if err != nil {
		return nil, fmt.Errorf("load plugins from %s: %w", dir, err)
	}

	var (
		names []string
		errs  error
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !isExecutable(path, info) {
			r.logger.Debug("Skipping non executable file", zap.String("path", path))
			continue
		}

		base := filepath.Base(path)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		if err := r.Register(name, "External plugin "+path, Exec(path, timeout)); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		r.logger.Debug("Registered external plugin", zap.String("plugin", name), zap.String("path", path))
		names = append(names, name)
	}
	return names, errs
}

func isExecutable(path string, info os.FileInfo) bool {
	if !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.EqualFold(filepath.Ext(path), ".exe")
	}
	return info.Mode().Perm()&0o111 != 0
}

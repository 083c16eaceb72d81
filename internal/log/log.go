package log

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 4
	defaultMaxBackups = 10
)

// Options selects the sinks of a Logger.
type Options struct {
	// Name is attached to every entry; empty leaves the logger unnamed.
	Name string
	// Quiet disables console output entirely.
	Quiet bool
	// Verbose enables debug entries on the console.
	Verbose bool
	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer

	// File enables a rotating file sink that always records debug entries.
	// Rotated files are kept next to it with a timestamp in their name.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Append keeps the current log file instead of truncating it.
	Append bool
	// Compress gzips rotated files.
	Compress bool
}

// Logger is a configured zap logger that owns its file sinks.
type Logger struct {
	*zap.Logger
	closers []io.Closer
}

// New builds a logger splitting console output by severity: info (and debug
// when verbose) goes to stdout, errors go to stderr.
func New(opts Options) (*Logger, error) {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	ec.TimeKey = zapcore.OmitKey
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(ec)

	lowest := zapcore.InfoLevel
	if opts.Verbose {
		lowest = zapcore.DebugLevel
	}

	cores := make([]zapcore.Core, 0, 3)
	if !opts.Quiet {
		cores = append(cores,
			zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(stdout)),
				zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lowest <= lvl && lvl < zapcore.ErrorLevel
				})),
			zapcore.NewCore(consoleEncoder.Clone(), zapcore.Lock(zapcore.AddSync(stderr)),
				zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lvl >= zapcore.ErrorLevel
				})),
		)
	}

	l := &Logger{}
	if opts.File != "" {
		w, err := newFileSink(opts)
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, w)

		fileEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(zap.DebugLevel)))
	}

	if len(cores) == 0 {
		l.Logger = zap.NewNop()
		return l, nil
	}

	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if opts.Name != "" {
		l.Logger = l.Logger.Named(opts.Name)
	}
	return l, nil
}

func newFileSink(opts Options) (*lumberjack.Logger, error) {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	backups := opts.MaxBackups
	if backups <= 0 {
		backups = defaultMaxBackups
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	if !opts.Append {
		// lumberjack always appends to an existing file.
		if err := os.Truncate(opts.File, 0); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unable to access file log destination (%s): %w", opts.File, err)
		}
	}

	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: backups,
		LocalTime:  true,
		Compress:   opts.Compress,
	}, nil
}

// Close flushes buffered entries and releases file sinks.
func (l *Logger) Close() error {
	if l == nil || l.Logger == nil {
		return nil
	}
	// Syncing console streams fails on terminals; only file sinks matter here.
	_ = l.Logger.Sync()

	var err error
	for _, c := range l.closers {
		err = multierr.Append(err, c.Close())
	}
	l.closers = nil
	return err
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

package main

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mentat-is/muty-go/internal/config"
	"github.com/mentat-is/muty-go/internal/log"
	"github.com/mentat-is/muty-go/internal/plugin"
)

// env is the per invocation state shared by the command actions. It is
// filled by initializeEnv once the command line has been parsed.
type env struct {
	stdout io.Writer
	stderr io.Writer

	cfg     *config.Config
	log     *log.Logger
	plugins *plugin.Registry

	started       time.Time
	restoreGlobal func()
	errHandled    bool
}

type envKey struct{}

func contextWithEnv(ctx context.Context, e *env) context.Context {
	return context.WithValue(ctx, envKey{}, e)
}

func envFromContext(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey{}).(*env); ok {
		return e
	}
	panic("muty: command context has no environment")
}

// logger returns the named component logger, or a no-op logger before
// initialization.
func (e *env) logger(name string) *zap.Logger {
	if e.log == nil {
		return zap.NewNop()
	}
	return e.log.Named(name)
}

func (e *env) uptime() time.Duration {
	return time.Since(e.started)
}

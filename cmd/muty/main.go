package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mentat-is/muty-go/internal/config"
	"github.com/mentat-is/muty-go/internal/plugin"
)

const appName = "muty"

// version may be overridden at build time with:
// -ldflags "-X main.version=<version>"
var version = "0.4.0"

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	return runWithIO(args, os.Stdout, os.Stderr)
}

func runWithIO(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{stdout: stdout, stderr: stderr, started: time.Now()}
	if err := newApp(stdout, stderr).Run(contextWithEnv(ctx, e), args); err != nil {
		// The logger is either not ready yet (argument parsing) or already
		// closed, so report directly.
		if !e.errHandled {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// initializeEnv loads configuration and prepares logging and plugins after
// the command line has been parsed.
func initializeEnv(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		return ctx, nil
	}
	e := envFromContext(ctx)

	var err error
	configFile := cmd.String("config")
	if e.cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if e.log, err = e.cfg.Logging.Prepare(e.stdout, e.stderr, cmd.Bool("debug"), cmd.Bool("quiet")); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	e.restoreGlobal = zap.ReplaceGlobals(e.log.Logger)

	e.log.Debug("Program started", zap.Strings("args", cmd.Args().Slice()), zap.String("ver", version), zap.String("runtime", runtime.Version()))
	if len(configFile) == 0 {
		e.log.Debug("Using defaults (no configuration file)")
	}

	e.plugins = plugin.NewRegistry(e.logger("plugins"))
	if err := plugin.RegisterBuiltins(e.plugins); err != nil {
		return ctx, fmt.Errorf("unable to register plugins: %w", err)
	}
	if dir := e.cfg.Plugins.Dir; dir != "" {
		names, err := e.plugins.LoadDir(dir, e.cfg.Plugins.Timeout)
		if err != nil {
			e.log.Warn("Some plugins could not be loaded", zap.String("dir", dir), zap.Error(err))
		}
		e.log.Debug("External plugins loaded", zap.Strings("plugins", names))
	}
	return ctx, nil
}

func destroyEnv(ctx context.Context, cmd *cli.Command) (err error) {
	e := envFromContext(ctx)
	if e.log == nil {
		return nil
	}

	e.log.Debug("Program ended", zap.Duration("elapsed", e.uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	if e.restoreGlobal != nil {
		e.restoreGlobal()
	}
	if er := e.log.Close(); er != nil {
		err = multierr.Append(err, fmt.Errorf("unable to close log: %w", er))
	}
	e.log = nil
	return err
}

// exitErrHandler runs before the environment is destroyed, so errors from
// subcommands can still be logged.
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	e := envFromContext(ctx)
	if e.log != nil {
		e.log.Error("Program ended with error", zap.Error(err))
		e.errHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:            appName,
		Usage:           "safe path, archive and file utilities",
		Version:         version + " (" + runtime.Version() + ")",
		HideHelpCommand: true,
		Writer:          stdout,
		ErrWriter:       stderr,
		Before:          initializeEnv,
		After:           destroyEnv,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log debug messages to the console"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "no console log output"},
		},
		Commands: []*cli.Command{
			joinCommand(),
			extractCommand(),
			listCommand(),
			findCommand(),
			hashCommand(),
			uploadCommand(),
			pluginsCommand(),
			xmlCommand(),
			timeCommand(),
			dumpConfigCommand(),
		},
	}
}

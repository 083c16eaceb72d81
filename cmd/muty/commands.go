package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	cli "github.com/urfave/cli/v3"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/zap"

	"github.com/mentat-is/muty-go/internal/archive"
	"github.com/mentat-is/muty-go/internal/config"
	"github.com/mentat-is/muty-go/internal/dictutil"
	"github.com/mentat-is/muty-go/internal/fsutil"
	"github.com/mentat-is/muty-go/internal/hashing"
	"github.com/mentat-is/muty-go/internal/plugin"
	"github.com/mentat-is/muty-go/internal/strutil"
	"github.com/mentat-is/muty-go/internal/timeutil"
	"github.com/mentat-is/muty-go/internal/upload"
	"github.com/mentat-is/muty-go/internal/xmlutil"
)

const ntpTimeout = 5 * time.Second

func joinCommand() *cli.Command {
	return &cli.Command{
		Name:         "join",
		Usage:        "Joins untrusted path segments onto ROOT without leaving it",
		ArgsUsage:    "ROOT [SEGMENT...]",
		OnUsageError: usageErrorHandler,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "base-only", Usage: "keep only the last element of the joined path"},
		},
		Action: runJoin,
	}
}

func runJoin(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	root := cmd.Args().First()
	if len(root) == 0 {
		return errors.New("no root has been specified")
	}
	fmt.Fprintln(e.stdout, fsutil.SafeJoin(root, !cmd.Bool("base-only"), cmd.Args().Tail()...))
	return nil
}

func archiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "format", Usage: "archive `TYPE` (auto, zip, rar), overrides configuration"},
		&cli.StringFlag{Name: "password", Usage: "`PASSWORD` for encrypted RAR archives"},
	}
}

// archiveOptions merges configuration with the flags given on the command
// line.
func archiveOptions(e *env, cmd *cli.Command, logger *zap.Logger) (archive.Options, error) {
	conf := e.cfg.Extract
	opts := archive.Options{
		TempDir:            conf.TempDir,
		Flatten:            conf.Flatten,
		AllowSymlinks:      conf.AllowSymlinks,
		MaxTotalBytes:      conf.MaxTotalBytes,
		MaxDictionaryBytes: conf.MaxDictionaryBytes,
		Password:           cmd.String("password"),
		Logger:             logger,
	}

	name := conf.Format
	if cmd.IsSet("format") {
		name = cmd.String("format")
	}
	format, err := archive.ParseFormat(name)
	if err != nil {
		return opts, err
	}
	opts.Format = format

	// Commands without these flags keep the configured values.
	if cmd.IsSet("flatten") {
		opts.Flatten = cmd.Bool("flatten")
	}
	if cmd.IsSet("allow-symlinks") {
		opts.AllowSymlinks = cmd.Bool("allow-symlinks")
	}
	if cmd.IsSet("max-bytes") {
		opts.MaxTotalBytes = cmd.Int64("max-bytes")
	}
	return opts, nil
}

func extractFlags() []cli.Flag {
	return append(archiveFlags(),
		&cli.BoolFlag{Name: "flatten", Usage: "drop member directories, store every file directly in DESTINATION"},
		&cli.BoolFlag{Name: "allow-symlinks", Usage: "restore symlink members that stay inside DESTINATION"},
		&cli.Int64Flag{Name: "max-bytes", Usage: "abort when more than `N` uncompressed bytes are written (0 - no limit)"},
	)
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:         "extract",
		Usage:        "Extracts ZIP or RAR archive, removing a created destination on failure",
		ArgsUsage:    "ARCHIVE [DESTINATION]",
		OnUsageError: usageErrorHandler,
		Flags: append(extractFlags(),
			&cli.StringFlag{Name: "password-file", Usage: "try each line of `FILE` as password when the archive is encrypted"},
			&cli.StringSliceFlag{Name: "clean", Usage: "run cleanup `PLUGIN` on the extracted tree (repeatable)"},
		),
		Action: runExtract,
		CustomHelpTemplate: fmt.Sprintf(`%s
ARCHIVE:
    path to the archive, the format is detected from its content unless --format is given

DESTINATION:
    directory to extract into, created when missing; if absent a new temporary
    directory is created and printed
`, cli.CommandHelpTemplate),
	}
}

func runExtract(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	log := e.logger("extract")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no archive has been specified")
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	clean := cmd.StringSlice("clean")
	for _, name := range clean {
		if name == plugin.SelectAll {
			return errors.New("cleanup plugins must be selected by name")
		}
		if !e.plugins.IsKnown(name) {
			return fmt.Errorf("%w %q", plugin.ErrUnknown, name)
		}
	}

	opts, err := archiveOptions(e, cmd, log)
	if err != nil {
		return err
	}
	dest, err := archive.ExtractWithPasswords(ctx, src, cmd.Args().Get(1), opts, cmd.String("password-file"))
	if err != nil {
		return err
	}
	log.Info("Archive extracted", zap.String("archive", src), zap.String("destination", dest))
	fmt.Fprintln(e.stdout, dest)

	if len(clean) == 0 {
		return nil
	}
	if _, err := e.plugins.RunAll(ctx, clean, plugin.Args{plugin.ArgDir: dest}); err != nil {
		return fmt.Errorf("cleanup of %s: %w", dest, err)
	}
	return nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:         "list",
		Usage:        "Lists archive members without extracting them",
		ArgsUsage:    "ARCHIVE",
		OnUsageError: usageErrorHandler,
		Flags:        archiveFlags(),
		Action:       runList,
	}
}

func runList(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	src := cmd.Args().First()
	if len(src) == 0 {
		return errors.New("no archive has been specified")
	}

	opts, err := archiveOptions(e, cmd, e.logger("list"))
	if err != nil {
		return err
	}
	members, err := archive.List(ctx, src, opts)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, m := range members {
		flags := "-"
		if m.Encrypted {
			flags = "E"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", m.Mode, m.Size, m.ModTime.UTC().Format(time.DateTime), flags, m.Name)
	}
	return tw.Flush()
}

func findCommand() *cli.Command {
	return &cli.Command{
		Name:         "find",
		Usage:        "Lists directory entries matching a mask in natural order",
		ArgsUsage:    "DIRECTORY",
		OnUsageError: usageErrorHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mask", Value: "*", Usage: "`PATTERN` matched against base names"},
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "descend into subdirectories"},
			&cli.BoolFlag{Name: "files-only", Usage: "skip directories"},
			&cli.BoolFlag{Name: "ignore-case", Aliases: []string{"i"}, Usage: "case insensitive mask"},
			&cli.IntFlag{Name: "max-depth", Usage: "limit recursion to `N` levels (0 - unlimited)"},
			&cli.BoolFlag{Name: "archives", Usage: "keep only standalone archives and first volumes of archive sets"},
			&cli.BoolFlag{Name: "quote", Usage: "print paths double quoted and escaped"},
		},
		Action: runFind,
	}
}

func runFind(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	dir := cmd.Args().First()
	if len(dir) == 0 {
		return errors.New("no directory has been specified")
	}

	paths, err := fsutil.List(dir, cmd.String("mask"), fsutil.ListOptions{
		Recursive:       cmd.Bool("recursive"),
		FilesOnly:       cmd.Bool("files-only"),
		CaseInsensitive: cmd.Bool("ignore-case"),
		MaxDepth:        cmd.Int("max-depth"),
	})
	if err != nil {
		return err
	}
	for _, p := range paths {
		if cmd.Bool("archives") {
			if first, _ := archive.IsFirstVolume(filepath.Base(p)); !first {
				continue
			}
		}
		if cmd.Bool("quote") {
			p = strutil.Enclose(strutil.Escape(p, `\`, `"`), `"`)
		}
		fmt.Fprintln(e.stdout, p)
	}
	return nil
}

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:         "hash",
		Usage:        "Prints file digests or verifies checksum manifests",
		ArgsUsage:    "FILE...",
		OnUsageError: usageErrorHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "algorithm", Aliases: []string{"a"}, Value: hashing.SHA256.String(), Usage: "digest `NAME` (md5, sha1, sha256, blake2b, crc32)"},
			&cli.BoolFlag{Name: "check", Usage: "treat FILEs as manifests (SFV or *sum output) and verify the files they list"},
		},
		Action: runHash,
	}
}

func runHash(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	if cmd.NArg() == 0 {
		return errors.New("no files have been specified")
	}
	alg, err := hashing.ParseAlgorithm(cmd.String("algorithm"))
	if err != nil {
		return err
	}
	if cmd.Bool("check") {
		return checkManifests(ctx, e, cmd, alg)
	}
	for _, path := range cmd.Args().Slice() {
		digest, err := hashing.File(ctx, alg, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s  %s\n", digest, path)
	}
	return nil
}

func checkManifests(ctx context.Context, e *env, cmd *cli.Command, alg hashing.Algorithm) error {
	log := e.logger("hash")
	for _, path := range cmd.Args().Slice() {
		if !cmd.IsSet("algorithm") {
			guessed, ok := hashing.ManifestAlgorithm(path)
			if !ok {
				return fmt.Errorf("unable to tell manifest type of %s, use --algorithm", path)
			}
			alg = guessed
		}
		n, err := hashing.VerifyManifest(ctx, alg, path)
		if err != nil {
			var verr *hashing.VerificationError
			if errors.As(err, &verr) {
				for _, name := range verr.Missing {
					log.Warn("File is missing", zap.String("manifest", path), zap.String("file", name))
				}
				for _, name := range verr.Unsafe {
					log.Warn("File is outside of manifest directory", zap.String("manifest", path), zap.String("file", name))
				}
				for _, m := range verr.Mismatches {
					log.Warn("Checksum mismatch", zap.String("manifest", path), zap.String("file", m.Name), zap.String("expected", m.Expected), zap.String("actual", m.Actual))
				}
			}
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(e.stdout, "%s: %d OK\n", path, n)
	}
	return nil
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:         "upload",
		Usage:        "Stores files into a directory the way incoming uploads are stored",
		ArgsUsage:    "FILE...",
		OnUsageError: usageErrorHandler,
		Flags: append(extractFlags(),
			&cli.StringFlag{Name: "dest", Usage: "destination `DIRECTORY`, a new temporary directory when absent"},
			&cli.BoolFlag{Name: "random-name", Usage: "store under generated unique names"},
			&cli.BoolFlag{Name: "unzip", Usage: "extract the single uploaded archive into the destination"},
		),
		Action: runUpload,
	}
}

func runUpload(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	log := e.logger("upload")
	if cmd.NArg() == 0 {
		return errors.New("no files have been specified")
	}

	opts := upload.Options{
		ChunkSize:  e.cfg.Upload.ChunkSize,
		RandomName: cmd.Bool("random-name"),
		TempDir:    e.cfg.Upload.TempDir,
		Logger:     log,
	}

	files := make([]upload.File, 0, cmd.NArg())
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, path := range cmd.Args().Slice() {
		r, err := os.Open(path)
		if err != nil {
			return err
		}
		files = append(files, upload.File{Filename: filepath.Base(path), Reader: r})
	}

	if cmd.Bool("unzip") {
		if len(files) != 1 {
			return errors.New("--unzip takes exactly one file")
		}
		extract, err := archiveOptions(e, cmd, e.logger("extract"))
		if err != nil {
			return err
		}
		dest, err := upload.Unzip(ctx, files[0], cmd.String("dest"), opts, extract)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, dest)
		return nil
	}

	dir, paths, err := upload.ToPathMulti(ctx, files, cmd.String("dest"), opts)
	if err != nil {
		return err
	}
	log.Info("Files stored", zap.String("directory", dir), zap.Int("count", len(paths)))
	for _, p := range paths {
		fmt.Fprintln(e.stdout, p)
	}
	return nil
}

func pluginsCommand() *cli.Command {
	return &cli.Command{
		Name:  "plugins",
		Usage: "Lists and runs plugins",
		Commands: []*cli.Command{
			{
				Name:         "list",
				Usage:        "Lists registered plugins in execution order",
				OnUsageError: usageErrorHandler,
				Action:       runPluginsList,
			},
			{
				Name:         "run",
				Usage:        "Runs plugins in order and prints their results (JSON)",
				ArgsUsage:    "PLUGIN...",
				OnUsageError: usageErrorHandler,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "`DIRECTORY` argument for cleanup plugins"},
					&cli.StringFlag{Name: "path", Usage: "`FILE` argument for per file plugins"},
					&cli.StringFlag{Name: "algorithm", Usage: "digest `NAME` for the hash plugin"},
					&cli.BoolFlag{Name: "dry-run", Usage: "report what would be removed without removing it"},
				},
				Action: runPluginsRun,
			},
		},
	}
}

func runPluginsList(ctx context.Context, _ *cli.Command) error {
	e := envFromContext(ctx)
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, doc := range e.plugins.Docs() {
		fmt.Fprintf(tw, "%s\t%s\n", doc.Name, strutil.MakeShorter(doc.Help, 72, strutil.DefaultEllipsis))
	}
	return tw.Flush()
}

func runPluginsRun(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	if cmd.NArg() == 0 {
		return errors.New("no plugins have been specified")
	}

	args := plugin.Args{plugin.ArgDryRun: cmd.Bool("dry-run")}
	dictutil.AddIfValid(cmd.String("dir"), args, plugin.ArgDir, false)
	dictutil.AddIfValid(cmd.String("path"), args, plugin.ArgPath, false)
	dictutil.AddIfValid(cmd.String("algorithm"), args, plugin.ArgAlgorithm, false)

	results, err := e.plugins.RunAll(ctx, cmd.Args().Slice(), args)
	if werr := writeJSON(e.stdout, results); werr != nil {
		return werr
	}
	return err
}

func xmlCommand() *cli.Command {
	return &cli.Command{
		Name:         "xml2json",
		Usage:        "Converts XML document to JSON",
		ArgsUsage:    "SOURCE [DESTINATION]",
		OnUsageError: usageErrorHandler,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "flatten", Usage: "produce a single level object with dotted keys"},
			&cli.BoolFlag{Name: "clear", Usage: "drop empty values"},
			&cli.IntFlag{Name: "indent", Value: 2, Usage: "indent output by `N` spaces (0 - compact)"},
		},
		Action: runXML,
	}
}

func runXML(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}

	data, err := fsutil.ReadFile(src)
	if err != nil {
		return err
	}
	doc, err := xmlutil.ToDict(strutil.RemoveBOM(string(data)))
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	if cmd.Bool("clear") {
		doc = dictutil.Clear(doc, dictutil.ClearOptions{})
	}
	if cmd.Bool("flatten") {
		doc = dictutil.Flatten(doc, "", ".", true)
	}

	if dst := cmd.Args().Get(1); len(dst) > 0 {
		if err := dictutil.ToJSONFile(dst, doc, cmd.Int("indent")); err != nil {
			return err
		}
		e.logger("xml").Info("Document converted", zap.String("source", src), zap.String("destination", dst))
		return nil
	}
	return writeJSON(e.stdout, doc)
}

func timeCommand() *cli.Command {
	return &cli.Command{
		Name:  "time",
		Usage: "Converts timestamps and durations",
		Commands: []*cli.Command{
			{
				Name:         "now",
				Usage:        "Prints the current time in milliseconds since the Unix epoch",
				OnUsageError: usageErrorHandler,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "ntp", Usage: "ask the configured NTP server instead of the system clock"},
				},
				Action: runTimeNow,
			},
			{
				Name:         "parse",
				Usage:        "Prints nanoseconds since the Unix epoch for a human readable timestamp",
				ArgsUsage:    "TIMESTAMP",
				OnUsageError: usageErrorHandler,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "day-first", Usage: "read ambiguous dates as day/month"},
				},
				Action: runTimeParse,
			},
			{
				Name:         "path",
				Usage:        "Prints nanoseconds since the Unix epoch found in a file name",
				ArgsUsage:    "PATH",
				OnUsageError: usageErrorHandler,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "separator", Value: "_", Usage: "field `SEPARATOR` in the base name"},
					&cli.IntFlag{Name: "index", Usage: "`N`th field holds the timestamp"},
					&cli.BoolFlag{Name: "fallback", Usage: "use the current time when no timestamp is found"},
				},
				Action: runTimePath,
			},
			{
				Name:         "duration",
				Usage:        "Converts between milliseconds and definitions like 10s, 5m, 1M",
				ArgsUsage:    "VALUE",
				OnUsageError: usageErrorHandler,
				Action:       runTimeDuration,
			},
		},
	}
}

func runTimeNow(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	ms := timeutil.NowMillis()
	if cmd.Bool("ntp") {
		var err error
		if ms, err = timeutil.NowNTPMillis(e.cfg.Time.NTPServer, ntpTimeout); err != nil {
			return err
		}
	}
	fmt.Fprintf(e.stdout, "%d\t%s\n", ms, timeutil.UnixMillisToTime(ms, nil).Format(time.RFC3339Nano))
	return nil
}

func runTimeParse(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	if cmd.NArg() == 0 {
		return errors.New("no timestamp has been specified")
	}
	ns, err := timeutil.StringToEpochNanos(strings.Join(cmd.Args().Slice(), " "), timeutil.ParseOptions{DayFirst: cmd.Bool("day-first")})
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, ns)
	return nil
}

func runTimePath(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	path := cmd.Args().First()
	if len(path) == 0 {
		return errors.New("no path has been specified")
	}
	ns, fallback, err := timeutil.EpochNanosFromPath(path, timeutil.PathOptions{
		Separator:     cmd.String("separator"),
		Index:         cmd.Int("index"),
		FallbackToNow: cmd.Bool("fallback"),
	})
	if err != nil {
		return err
	}
	if fallback {
		e.logger("time").Warn("No timestamp in path, using current time", zap.String("path", path))
	}
	fmt.Fprintln(e.stdout, ns)
	return nil
}

func runTimeDuration(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	value := cmd.Args().First()
	if len(value) == 0 {
		return errors.New("no value has been specified")
	}
	if ms, err := strconv.ParseFloat(value, 64); err == nil {
		def, err := timeutil.DefinitionFromMillis(ms)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, def)
		return nil
	}
	ms, err := timeutil.DefinitionToMillis(value)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, strconv.FormatFloat(ms, 'f', -1, 64))
	return nil
}

func dumpConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "dumpconfig",
		Usage: "Dumps either default or actual configuration (YAML)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
		},
		OnUsageError: usageErrorHandler,
		Action:       outputConfiguration,
		ArgsUsage:    "DESTINATION",
		CustomHelpTemplate: fmt.Sprintf(`%s

DESTINATION:
    file name to write configuration to, if absent - STDOUT

Produces file with actual "active" configuration values which is composition of
default values and values specified in configuration file. To see default
configuration embedded into the program use --default flag.
`, cli.CommandHelpTemplate),
	}
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	log := e.logger("config")
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	fname := cmd.Args().Get(0)

	var (
		err   error
		data  []byte
		state string
	)

	out := e.stdout
	if len(fname) > 0 {
		f, err := os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer f.Close()
		out = f
	}

	if cmd.Bool("default") {
		state = "default"
		data, err = config.Prepare()
	} else {
		state = "actual"
		data, err = config.Dump(e.cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	if len(fname) == 0 {
		fname = "STDOUT"
	}
	log.Debug("Outputing configuration", zap.String("state", state), zap.String("file", fname))

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json5.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode json: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

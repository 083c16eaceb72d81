package plugin

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/mentat-is/muty-go/internal/fsutil"
	"github.com/mentat-is/muty-go/internal/hashing"
	"github.com/mentat-is/muty-go/internal/timeutil"
)

// Argument keys understood by the built-in plugins.
const (
	ArgDir       = "dir"
	ArgPath      = "path"
	ArgDryRun    = "dry_run"
	ArgAlgorithm = "algorithm"
)

var osxJunk = []string{".DS_Store", "__MACOSX", "._.DS_Store"}
var windowsJunk = []string{"Thumbs.db", "desktop.ini", "ehthumbs.db"}

// RegisterBuiltins adds the plugins shipped with muty: cleanup passes over an
// extracted tree ("dir") and per file helpers ("path").
func RegisterBuiltins(r *Registry) error {
	return multierr.Combine(
		r.Register("osx_junk", "Remove .DS_Store files and __MACOSX folders below dir.", removeNamed(osxJunk)),
		r.Register("windows_junk", "Remove Thumbs.db and desktop.ini files below dir.", removeNamed(windowsJunk)),
		r.Register("empty_folders", "Remove empty directories below dir, keeping dir itself.", pruneEmpty),
		r.Register("hash", "Digest the file at path with algorithm (sha256 by default).", hashFile),
		r.Register("verify", "Check the checksum manifest at path, or every .sfv/.md5/.sha1/.sha256/.b2 manifest in dir.", verifyManifests),
		r.Register("timestamp", "Read an epoch timestamp from the first _ separated field of path.", pathTimestamp),
	)
}

func removeNamed(names []string) Func {
	return func(ctx context.Context, args Args) (Result, error) {
		root, err := stringArg(args, ArgDir)
		if err != nil {
			return nil, err
		}
		dryRun := boolArg(args, ArgDryRun)

		matches := make([]string, 0, 8)
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if path == root {
				return nil
			}
			for _, name := range names {
				if strings.EqualFold(d.Name(), name) {
					matches = append(matches, path)
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		if !dryRun {
			for _, match := range matches {
				if err := os.RemoveAll(match); err != nil {
					return nil, err
				}
			}
		}
		return Result{"removed": matches, ArgDryRun: dryRun}, nil
	}
}

func pruneEmpty(ctx context.Context, args Args) (Result, error) {
	root, err := stringArg(args, ArgDir)
	if err != nil {
		return nil, err
	}
	p := pruner{ctx: ctx, dryRun: boolArg(args, ArgDryRun)}
	if _, err := p.prune(root, true); err != nil {
		return nil, err
	}
	sort.Strings(p.removed)
	return Result{"removed": p.removed, ArgDryRun: p.dryRun}, nil
}

type pruner struct {
	ctx     context.Context
	dryRun  bool
	removed []string
}

func (p *pruner) prune(path string, isRoot bool) (bool, error) {
	if err := p.ctx.Err(); err != nil {
		return false, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}

	empty := true
	for _, entry := range entries {
		if !entry.IsDir() {
			empty = false
			continue
		}
		childEmpty, err := p.prune(filepath.Join(path, entry.Name()), false)
		if err != nil {
			return false, err
		}
		if !childEmpty {
			empty = false
		}
	}

	if isRoot || !empty {
		return empty, nil
	}

	p.removed = append(p.removed, path)
	if p.dryRun {
		return true, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	return true, nil
}

func hashFile(ctx context.Context, args Args) (Result, error) {
	path, err := stringArg(args, ArgPath)
	if err != nil {
		return nil, err
	}
	alg, _, err := algorithmArg(args, hashing.SHA256)
	if err != nil {
		return nil, err
	}
	digest, err := hashing.File(ctx, alg, path)
	if err != nil {
		return nil, err
	}
	return Result{ArgPath: path, ArgAlgorithm: alg.String(), "digest": digest}, nil
}

func verifyManifests(ctx context.Context, args Args) (Result, error) {
	manifests := make([]string, 0, 4)
	if path, ok := args[ArgPath].(string); ok && path != "" {
		manifests = append(manifests, path)
	} else {
		root, err := stringArg(args, ArgDir)
		if err != nil {
			return nil, err
		}
		files, err := fsutil.List(root, "*", fsutil.ListOptions{FilesOnly: true})
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if _, ok := hashing.ManifestAlgorithm(f); ok {
				manifests = append(manifests, f)
			}
		}
	}

	verified := 0
	for _, m := range manifests {
		alg, explicit, err := algorithmArg(args, hashing.SHA256)
		if err != nil {
			return nil, err
		}
		if !explicit {
			var ok bool
			if alg, ok = hashing.ManifestAlgorithm(m); !ok {
				return nil, fmt.Errorf("%s: unknown manifest type, set %q", m, ArgAlgorithm)
			}
		}
		n, err := hashing.VerifyManifest(ctx, alg, m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		verified += n
	}
	return Result{"manifests": manifests, "verified": verified}, nil
}

func pathTimestamp(_ context.Context, args Args) (Result, error) {
	path, err := stringArg(args, ArgPath)
	if err != nil {
		return nil, err
	}
	ns, fallback, err := timeutil.EpochNanosFromPath(path, timeutil.PathOptions{FallbackToNow: true})
	if err != nil {
		return nil, err
	}
	return Result{ArgPath: path, "epoch_nanos": ns, "fallback": fallback}, nil
}

func stringArg(args Args, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing string argument %q", key)
	}
	return v, nil
}

// algorithmArg returns def unless args name an algorithm.
func algorithmArg(args Args, def hashing.Algorithm) (hashing.Algorithm, bool, error) {
	name, ok := args[ArgAlgorithm].(string)
	if !ok || name == "" {
		return def, false, nil
	}
	alg, err := hashing.ParseAlgorithm(name)
	return alg, true, err
}

func boolArg(args Args, key string) bool {
	v, _ := args[key].(bool)
	return v
}

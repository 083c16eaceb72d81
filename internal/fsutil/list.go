package fsutil

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// ListOptions controls List.
type ListOptions struct {
	Recursive       bool
	FilesOnly       bool
	CaseInsensitive bool
	// MaxDepth limits recursion; a negative or zero value means unbounded.
	MaxDepth int
}

// List returns the entries under root whose base name matches mask
// (filepath.Match syntax, empty means "*"), in natural order. root itself is
// never returned.
func List(root, mask string, opts ListOptions) ([]string, error) {
	if mask == "" {
		mask = "*"
	}
	if opts.CaseInsensitive {
		mask = strings.ToLower(mask)
	}
	if _, err := filepath.Match(mask, ""); err != nil {
		return nil, err
	}

	maxDepth := -1
	switch {
	case !opts.Recursive:
		maxDepth = 0
	case opts.MaxDepth > 0:
		maxDepth = opts.MaxDepth - 1
	}

	paths := make([]string, 0, 16)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}

		depth, err := relativeDepth(root, path)
		if err != nil {
			return err
		}
		if maxDepth >= 0 && depth > maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if opts.FilesOnly && d.IsDir() {
			return nil
		}

		name := d.Name()
		if opts.CaseInsensitive {
			name = strings.ToLower(name)
		}
		// The pattern was validated above.
		if ok, _ := filepath.Match(mask, name); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(paths, func(i, j int) bool {
		return natural.Less(paths[i], paths[j])
	})
	return paths, nil
}

func relativeDepth(root, path string) (int, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0, err
	}
	if rel == "." {
		return 0, nil
	}
	segments := strings.Split(rel, string(filepath.Separator))
	return len(segments) - 1, nil
}

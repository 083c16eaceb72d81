// Package plugin runs named units of work: built-in functions registered in
// code and external executables that speak JSON over stdin and stdout.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mentat-is/muty-go/internal/log"
)

// Args is the input handed to a plugin.
type Args map[string]any

// Result is what a plugin reports back.
type Result map[string]any

// Func is the plugin contract.
type Func func(ctx context.Context, args Args) (Result, error)

// ErrUnknown is returned for names not present in the registry.
var ErrUnknown = errors.New("unknown plugin")

// Selection tokens understood by RunAll besides plugin names.
const (
	SelectAll  = "all"
	SelectNone = "none"
)

type definition struct {
	Name string
	Help string
	Run  Func
}

// Doc describes a plugin for usage/help rendering.
type Doc struct {
	Name string
	Help string
}

// Registry holds plugins in registration order. It is safe for concurrent
// use.
type Registry struct {
	mu          sync.RWMutex
	definitions []definition
	logger      *zap.Logger
}

// NewRegistry returns an empty registry logging through logger (may be nil).
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: log.OrNop(logger)}
}

// Register adds fn under name. Names must be unique and must not collide
// with the selection tokens.
func (r *Registry) Register(name, help string, fn Func) error {
	if name == "" || isVirtual(name) {
		return fmt.Errorf("invalid plugin name %q", name)
	}
	if fn == nil {
		return fmt.Errorf("plugin %q: nil function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.ContainsFunc(r.definitions, func(d definition) bool { return d.Name == name }) {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.definitions = append(r.definitions, definition{Name: name, Help: help, Run: fn})
	return nil
}

// Lookup returns the plugin registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, def := range r.definitions {
		if def.Name == name {
			return def.Run, true
		}
	}
	return nil, false
}

// Docs returns the registered plugins in execution order.
func (r *Registry) Docs() []Doc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Doc, 0, len(r.definitions))
	for _, def := range r.definitions {
		out = append(out, Doc{Name: def.Name, Help: def.Help})
	}
	return out
}

// IsKnown reports whether name is a registered plugin or a selection token.
func (r *Registry) IsKnown(name string) bool {
	if isVirtual(name) {
		return true
	}
	_, ok := r.Lookup(name)
	return ok
}

// Run executes a single plugin.
func (r *Registry) Run(ctx context.Context, name string, args Args) (Result, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	r.logger.Debug("Running plugin", zap.String("plugin", name))
	return fn(ctx, args)
}

// RunAll executes the selected plugins in order and returns their results by
// name. A failing plugin does not stop the others; all errors are combined.
// "all" alone selects every plugin in registration order, "none" selects
// nothing, and duplicates run once.
func (r *Registry) RunAll(ctx context.Context, selection []string, args Args) (map[string]Result, error) {
	names := r.resolveNames(selection)
	results := make(map[string]Result, len(names))

	var errs error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, multierr.Append(errs, err)
		}
		res, err := r.Run(ctx, name, args)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		results[name] = res
	}
	return results, errs
}

func isVirtual(name string) bool {
	return name == SelectNone || name == SelectAll
}

func (r *Registry) resolveNames(selection []string) []string {
	if len(selection) == 0 {
		return nil
	}
	if len(selection) == 1 && selection[0] == SelectNone {
		return nil
	}
	if len(selection) == 1 && selection[0] == SelectAll {
		docs := r.Docs()
		out := make([]string, 0, len(docs))
		for _, d := range docs {
			out = append(out, d.Name)
		}
		return out
	}

	out := make([]string, 0, len(selection))
	for _, name := range selection {
		if isVirtual(name) {
			continue
		}
		if slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

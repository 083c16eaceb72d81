// Package dictutil holds helpers for the loosely typed maps produced by
// decoding JSON, YAML or XML documents.
package dictutil

import (
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// SplitSlice cuts s into consecutive pieces of at most n elements. With
// n <= 0, or when s is shorter than n, a copy of s is the only piece. Pieces
// never share memory with s or with each other.
func SplitSlice[T any](s []T, n int) [][]T {
	if n <= 0 || len(s) < n {
		return [][]T{slices.Clone(s)}
	}
	out := make([][]T, 0, (len(s)+n-1)/n)
	for i := 0; i < len(s); i += n {
		out = append(out, slices.Clone(s[i:min(i+n, len(s))]))
	}
	return out
}

// ChunkListMap spreads a map of lists over up to n maps. Every list is cut
// into pieces of n elements and piece i lands in map i%n; maps left empty
// are dropped. Values are copied, m is not modified.
func ChunkListMap[T any](m map[string][]T, n int) []map[string][]T {
	if n < 1 {
		n = 1
	}
	results := make([]map[string][]T, n)
	for i := range results {
		results[i] = map[string][]T{}
	}

	for k, v := range m {
		for i, piece := range SplitSlice(v, n) {
			if len(piece) == 0 {
				continue
			}
			dst := results[i%n]
			dst[k] = append(dst[k], piece...)
		}
	}

	return slices.DeleteFunc(results, func(r map[string][]T) bool { return len(r) == 0 })
}

// AddIfValid stores value under key when it carries information: a non blank
// string, a non empty map, slice or array, true, or a positive number. With
// force set the value is stored regardless, including nil.
func AddIfValid(value any, dst map[string]any, key string, force bool) {
	if force || isValid(value) {
		dst[key] = value
	}
}

// CheckAndAdd looks key up in src (falling back to def) and adds the result
// to dst under altKey, or under key when altKey is empty.
func CheckAndAdd(src map[string]any, key string, def any, dst map[string]any, force bool, altKey string) {
	if src == nil {
		return
	}
	value, ok := src[key]
	if !ok {
		value = def
	}
	if altKey == "" {
		altKey = key
	}
	AddIfValid(value, dst, altKey, force)
}

func isValid(value any) bool {
	if value == nil {
		return false
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) != ""
	case reflect.Map, reflect.Slice, reflect.Array:
		return v.Len() > 0
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() > 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() > 0
	case reflect.Float32, reflect.Float64:
		return v.Float() > 0
	}
	return false
}

// ClearOptions selects which "empty" values Clear keeps.
type ClearOptions struct {
	KeepNumbers bool // zero and negative numbers
	KeepBool    bool // false
	KeepStrings bool // blank strings
	KeepLists   bool // empty lists
	KeepNil     bool // nil
}

// Clear returns a copy of d without empty values. Nested maps, including
// maps inside lists, are cleared with default options and are always kept,
// even when they end up empty.
func Clear(d map[string]any, opts ClearOptions) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if v == nil {
			if opts.KeepNil {
				out[k] = nil
			}
			continue
		}

		switch tv := v.(type) {
		case map[string]any:
			out[k] = Clear(tv, ClearOptions{})
		case []any:
			cleared := make([]any, 0, len(tv))
			for _, item := range tv {
				if m, ok := item.(map[string]any); ok {
					cleared = append(cleared, Clear(m, ClearOptions{}))
					continue
				}
				cleared = append(cleared, item)
			}
			if len(cleared) > 0 || opts.KeepLists {
				out[k] = cleared
			}
		case string:
			if strings.TrimSpace(tv) != "" || opts.KeepStrings {
				out[k] = tv
			}
		case bool:
			if tv || opts.KeepBool {
				out[k] = tv
			}
		default:
			switch reflect.ValueOf(v).Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
				reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
				reflect.Float32, reflect.Float64:
				if isValid(v) || opts.KeepNumbers {
					out[k] = v
				}
			default:
				out[k] = v
			}
		}
	}
	return out
}

// RemoveKeys returns a copy of d without keys.
func RemoveKeys(d map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if !slices.Contains(keys, k) {
			out[k] = v
		}
	}
	return out
}

// Flatten turns nested maps (and lists, when expandLists is set) into a
// single level map whose keys are the element paths joined with sep and
// prefixed with prefix.
func Flatten(v any, prefix, sep string, expandLists bool) map[string]any {
	out := map[string]any{}
	var walk func(v any, p string)
	walk = func(v any, p string) {
		switch tv := v.(type) {
		case map[string]any:
			for k, child := range tv {
				walk(child, p+k+sep)
			}
			return
		case []any:
			if expandLists {
				for i, child := range tv {
					walk(child, p+strconv.Itoa(i)+sep)
				}
				return
			}
		}
		out[strings.TrimSuffix(p, sep)] = v
	}
	walk(v, prefix)
	return out
}

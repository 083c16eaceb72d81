// Package timeutil converts between wall clock times, epoch integers and the
// short duration definitions ("10s", "1w") used in configuration.
package timeutil

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/beevik/ntp"
)

// DefaultNTPServer is queried by NowNTPMillis when no server is given.
const DefaultNTPServer = "pool.ntp.org"

// chromeEpochOffset is the distance in microseconds between 1601-01-01 and
// the Unix epoch.
const chromeEpochOffset = 11644473600 * 1000 * 1000

type unit struct {
	suffix string
	millis float64
}

// Largest first: DefinitionFromMillis picks the first unit that fits.
var units = []unit{
	{"y", 31536000000},
	{"M", 2628000000},
	{"w", 604800000},
	{"d", 86400000},
	{"h", 3600000},
	{"m", 60000},
	{"s", 1000},
	{"ms", 1},
}

// DefinitionFromMillis renders ms using the largest unit not exceeding it,
// truncated to an integer: 90000 becomes "1m".
func DefinitionFromMillis(ms float64) (string, error) {
	if ms < 0 || math.IsNaN(ms) {
		return "", fmt.Errorf("invalid duration %v ms: must not be negative", ms)
	}
	for _, u := range units {
		if ms >= u.millis {
			return strconv.FormatInt(int64(ms/u.millis), 10) + u.suffix, nil
		}
	}
	return "0ms", nil
}

// DefinitionToMillis parses "<number><unit>" where unit is one of ms, s, m,
// h, d, w, M or y. Units are case sensitive: "m" is minutes, "M" is months.
func DefinitionToMillis(def string) (float64, error) {
	def = strings.TrimSpace(def)
	num, millis, ok := splitDefinition(def)
	if !ok {
		return 0, fmt.Errorf("invalid time definition %q", def)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time definition %q", def)
	}
	return v * millis, nil
}

func splitDefinition(def string) (string, float64, bool) {
	if num, ok := strings.CutSuffix(def, "ms"); ok {
		return num, 1, true
	}
	for _, u := range units {
		if num, ok := strings.CutSuffix(def, u.suffix); ok {
			return num, u.millis, true
		}
	}
	return "", 0, false
}

var now = time.Now

// NowMillis returns the system clock in milliseconds since the Unix epoch.
func NowMillis() int64 { return now().UnixMilli() }

// NowNanos returns the system clock in nanoseconds since the Unix epoch.
func NowNanos() int64 { return now().UnixNano() }

var ntpQuery = ntp.QueryWithOptions

// NowNTPMillis asks server (DefaultNTPServer when empty) for the current
// time and returns it in milliseconds since the Unix epoch.
func NowNTPMillis(server string, timeout time.Duration) (int64, error) {
	if server == "" {
		server = DefaultNTPServer
	}
	resp, err := ntpQuery(server, ntp.QueryOptions{Version: 3, Timeout: timeout})
	if err != nil {
		return 0, fmt.Errorf("ntp query %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("ntp response from %s: %w", server, err)
	}
	return now().Add(resp.ClockOffset).UnixMilli(), nil
}

// TimeToUnixMillis returns t in milliseconds since the Unix epoch.
func TimeToUnixMillis(t time.Time) int64 { return t.UnixMilli() }

// UnixMillisToTime converts ms since the Unix epoch to a time in loc (UTC
// when nil).
func UnixMillisToTime(ms int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc)
}

// NanosToMillis truncates nanoseconds to milliseconds, rounding toward
// negative infinity.
func NanosToMillis(ns int64) int64 {
	ms := ns / int64(time.Millisecond)
	if ns%int64(time.Millisecond) < 0 {
		ms--
	}
	return ms
}

// FloatToEpochNanos converts fractional seconds since the Unix epoch to
// nanoseconds.
func FloatToEpochNanos(sec float64) int64 {
	whole, frac := math.Modf(sec)
	return int64(whole)*int64(time.Second) + int64(math.Round(frac*1e9))
}

// TimeToEpochNanos returns t in nanoseconds since the Unix epoch.
func TimeToEpochNanos(t time.Time) int64 { return t.UnixNano() }

// ChromeEpochToNanos converts a Chrome/WebKit timestamp (microseconds since
// 1601-01-01 UTC) to nanoseconds since the Unix epoch.
func ChromeEpochToNanos(micros int64) int64 {
	return (micros - chromeEpochOffset) * int64(time.Microsecond)
}

// ParseOptions controls StringToEpochNanos.
type ParseOptions struct {
	// Location is used for strings without a zone; UTC when nil.
	Location *time.Location
	// DayFirst reads ambiguous dates like 02/03/2024 as 2 March.
	DayFirst bool
}

// StringToEpochNanos parses a human readable timestamp in any of the layouts
// understood by dateparse and returns nanoseconds since the Unix epoch.
func StringToEpochNanos(s string, opts ParseOptions) (int64, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	t, err := dateparse.ParseIn(strings.TrimSpace(s), loc, dateparse.PreferMonthFirst(!opts.DayFirst))
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UnixNano(), nil
}

// PathOptions controls EpochNanosFromPath.
type PathOptions struct {
	ParseOptions
	// Separator splits the base name; "_" when empty.
	Separator string
	// Index selects the field holding the timestamp.
	Index int
	// FallbackToNow returns the current time instead of a parse error.
	FallbackToNow bool
}

// ErrInvalidIndex is returned when PathOptions.Index is out of range.
var ErrInvalidIndex = errors.New("timestamp index out of range")

// EpochNanosFromPath extracts a timestamp from a field of the base name of
// path. Integer fields above 1000 are read as nanoseconds (>= 1e17),
// microseconds (>= 1e14), milliseconds (>= 1e11) or else seconds; anything
// else goes through StringToEpochNanos. The boolean reports whether the
// result is the FallbackToNow value.
func EpochNanosFromPath(path string, opts PathOptions) (int64, bool, error) {
	sep := opts.Separator
	if sep == "" {
		sep = "_"
	}
	parts := strings.Split(filepath.Base(path), sep)
	if opts.Index < 0 || opts.Index >= len(parts) {
		return 0, false, fmt.Errorf("%w: %d of %d fields in %q", ErrInvalidIndex, opts.Index, len(parts), filepath.Base(path))
	}
	field := parts[opts.Index]

	if n, ok := scaleNumeric(field); ok {
		return n, false, nil
	}

	ns, err := StringToEpochNanos(field, opts.ParseOptions)
	if err != nil {
		if opts.FallbackToNow {
			return NowNanos(), true, nil
		}
		return 0, false, err
	}
	return ns, false, nil
}

func scaleNumeric(field string) (int64, bool) {
	if field == "" || strings.TrimLeft(field, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case n >= 1e17:
		return n, true
	case n >= 1e14:
		return n * int64(time.Microsecond), true
	case n >= 1e11:
		return n * int64(time.Millisecond), true
	case n > 1_000 && n <= math.MaxInt64/int64(time.Second):
		return n * int64(time.Second), true
	}
	return 0, false
}

// Package strutil has small string helpers shared by the muty tools.
package strutil

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultEllipsis is appended by MakeShorter when it cuts a string.
const DefaultEllipsis = "..."

// MakeShorter cuts s to at most maxLen runes, ending it with ellipsis when
// anything was removed.
func MakeShorter(s string, maxLen int, ellipsis string) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	keep := max(maxLen-len([]rune(ellipsis)), 0)
	return string(r[:keep]) + ellipsis
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// ReplaceNonAlpha replaces every run of characters that are not letters,
// digits or underscores with repl.
func ReplaceNonAlpha(s, repl string) string {
	return nonWord.ReplaceAllLiteralString(s, repl)
}

const bom = "\ufeff"

// RemoveBOM strips leading byte order marks from s. Text decoded from UTF-8
// or UTF-16 in either byte order carries the mark as U+FEFF.
func RemoveBOM(s string) string {
	return strings.TrimLeft(s, bom)
}

// GenerateUnique returns a random UUIDv4, or with useUUID unset the current
// time in nanoseconds plus some random jitter, between pre and post.
func GenerateUnique(pre, post string, useUUID bool) string {
	var id string
	if useUUID {
		id = uuid.NewString()
	} else {
		id = strconv.FormatInt(time.Now().UnixNano()+rand.Int64N(64000)+rand.Int64N(64000)+2, 10)
	}
	return pre + id + post
}

// Escape prefixes every occurrence of each of chars in s with a backslash.
func Escape(s string, chars ...string) string {
	for _, c := range chars {
		if c == "" {
			continue
		}
		s = strings.ReplaceAll(s, c, `\`+c)
	}
	return s
}

// Enclose wraps s in enclosure on both sides.
func Enclose(s, enclosure string) string {
	return enclosure + s + enclosure
}

package archive

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var partVolumeRe = regexp.MustCompile(`(?i)^(.*)\.part([0-9]+)\.rar$`)

// IsFirstVolume reports whether filename is a standalone archive or the
// first volume of a set, returning the name without volume suffixes.
// Later volumes are opened through the first one, so callers that scan a
// directory only need to extract the names accepted here.
func IsFirstVolume(filename string) (bool, string) {
	lower := strings.ToLower(filename)

	if strings.HasSuffix(lower, ".001") {
		return true, filename[:len(filename)-len(".001")]
	}

	if match := partVolumeRe.FindStringSubmatch(filename); match != nil {
		partNum, err := strconv.Atoi(match[2])
		if err != nil || partNum != 1 {
			return false, ""
		}
		return true, match[1]
	}

	switch filepath.Ext(lower) {
	case ".rar", ".zip":
		return true, filename[:len(filename)-len(filepath.Ext(filename))]
	}
	return false, ""
}

package dictutil

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// FromJSONFile reads a JSON or JSON5 document holding an object. A leading
// UTF-8 or UTF-16 byte order mark is honored.
func FromJSONFile(path string) (map[string]any, error) {
	var out map[string]any
	if err := ReadJSONFile(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadJSONFile decodes the JSON5 document at path into v.
func ReadJSONFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", path, err)
	}
	if err := json5.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unable to decode %s: %w", path, err)
	}
	return nil
}

// ToJSONFile writes v as plain JSON indented by indent spaces, so the output
// reads back with FromJSONFile as well as any strict JSON parser. A
// non-positive indent produces compact output.
func ToJSONFile(path string, v any, indent int) error {
	var (
		data []byte
		err  error
	)
	if indent > 0 {
		data, err = json5.MarshalIndent(v, "", strings.Repeat(" ", indent))
	} else {
		data, err = json5.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("unable to encode json: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

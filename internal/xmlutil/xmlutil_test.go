package xmlutil

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <title type="text">Events</title>
  <entry id="1">
    <dc:creator>alice</dc:creator>
    <link href="https://example.org/1"/>
  </entry>
  <entry id="2">
    <dc:creator>bob</dc:creator>
    <empty></empty>
  </entry>
</feed>`

func TestToDict(t *testing.T) {
	t.Parallel()

	got, err := ToDict(feed)
	assert.NilError(t, err)

	assert.DeepEqual(t, got, map[string]any{
		"feed": map[string]any{
			"@xmlns":    "http://www.w3.org/2005/Atom",
			"@xmlns:dc": "http://purl.org/dc/elements/1.1/",
			"title":     map[string]any{"@type": "text", "#text": "Events"},
			"entry": []any{
				map[string]any{
					"@id":        "1",
					"dc:creator": "alice",
					"link":       map[string]any{"@href": "https://example.org/1"},
				},
				map[string]any{
					"@id":        "2",
					"dc:creator": "bob",
					"empty":      nil,
				},
			},
		},
	})
}

func TestToDictPlainAndEmpty(t *testing.T) {
	t.Parallel()

	got, err := ToDict("<a>  hello  </a>")
	assert.NilError(t, err)
	assert.DeepEqual(t, got, map[string]any{"a": "hello"})

	got, err = ToDict("<a/>")
	assert.NilError(t, err)
	assert.DeepEqual(t, got, map[string]any{"a": nil})

	got, err = ToDict("<a>x<b>1</b>y<b>2</b><b>3</b></a>")
	assert.NilError(t, err)
	assert.DeepEqual(t, got, map[string]any{"a": map[string]any{
		"#text": "xy",
		"b":     []any{"1", "2", "3"},
	}})
}

func TestToDictErrors(t *testing.T) {
	t.Parallel()

	_, err := ToDict("<a><b></a>")
	assert.ErrorContains(t, err, "unable to parse xml")

	_, err = ToDict("")
	assert.ErrorContains(t, err, "no root element")
}

func TestStripNamespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"{http://www.w3.org/2005/Atom}entry", "entry"},
		{"dc:creator", "creator"},
		{"plain", "plain"},
		{"{broken", "{broken"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Check(t, is.Equal(StripNamespace(tc.in), tc.want), "in=%q", tc.in)
	}
}

func TestChildLookups(t *testing.T) {
	t.Parallel()

	root, err := Parse(feed)
	assert.NilError(t, err)

	entry, err := ChildNode(root, "entry")
	assert.NilError(t, err)
	assert.Equal(t, entry.SelectAttrValue("id", ""), "1")

	// local name matches across the dc: prefix
	text, err := ChildNodeText(root, "creator")
	assert.NilError(t, err)
	assert.Equal(t, text, "alice")

	href, err := ChildAttrib(root, "link", "href")
	assert.NilError(t, err)
	assert.Equal(t, href, "https://example.org/1")

	_, err = ChildNode(root, "missing")
	assert.Assert(t, errors.Is(err, ErrNotFound))

	_, err = ChildNodeText(root, "empty")
	assert.Assert(t, errors.Is(err, ErrNotFound))

	_, err = ChildAttrib(root, "link", "rel")
	assert.Assert(t, errors.Is(err, ErrNotFound))

	// the element itself is not a candidate
	_, err = ChildNode(root, "feed")
	assert.Assert(t, errors.Is(err, ErrNotFound))
}

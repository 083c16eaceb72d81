// Package xmlutil turns XML documents into generic maps and looks up
// descendants by local name, ignoring namespace prefixes.
package xmlutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// ErrNotFound is returned when a looked up element or attribute is missing.
var ErrNotFound = errors.New("not found")

const (
	attrPrefix = "@"
	textKey    = "#text"
)

// Parse reads s and returns its root element.
func Parse(s string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		return nil, fmt.Errorf("unable to parse xml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("unable to parse xml: no root element")
	}
	return root, nil
}

// ToDict converts s the way xmltodict does: the result has a single key, the
// root tag. Attributes become "@name" keys, text next to attributes or
// children becomes "#text", repeated children collapse into a list and an
// element without attributes, children or text becomes nil. Tags and
// attribute names keep their namespace prefix.
func ToDict(s string) (map[string]any, error) {
	root, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return map[string]any{root.FullTag(): elementValue(root)}, nil
}

func elementValue(e *etree.Element) any {
	out := map[string]any{}
	for _, a := range e.Attr {
		out[attrPrefix+a.FullKey()] = a.Value
	}

	var text strings.Builder
	for _, tok := range e.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			text.WriteString(t.Data)
		case *etree.Element:
			addChild(out, t.FullTag(), elementValue(t))
		}
	}

	data := strings.TrimSpace(text.String())
	if len(out) == 0 {
		if data == "" {
			return nil
		}
		return data
	}
	if data != "" {
		out[textKey] = data
	}
	return out
}

func addChild(out map[string]any, key string, v any) {
	prev, ok := out[key]
	if !ok {
		out[key] = v
		return
	}
	if list, ok := prev.([]any); ok {
		out[key] = append(list, v)
		return
	}
	out[key] = []any{prev, v}
}

// StripNamespace returns the local part of an element name given either as
// "{uri}local" or "prefix:local".
func StripNamespace(s string) string {
	if strings.HasPrefix(s, "{") {
		if i := strings.IndexByte(s, '}'); i >= 0 {
			return s[i+1:]
		}
		return s
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ChildNode returns the first descendant of e, in document order, whose
// local name is tag.
func ChildNode(e *etree.Element, tag string) (*etree.Element, error) {
	if found := findLocal(e, tag); found != nil {
		return found, nil
	}
	return nil, fmt.Errorf("element %q: %w", tag, ErrNotFound)
}

func findLocal(e *etree.Element, tag string) *etree.Element {
	for _, child := range e.ChildElements() {
		if child.Tag == tag {
			return child
		}
		if found := findLocal(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// ChildNodeText returns the leading text of the first descendant named tag.
func ChildNodeText(e *etree.Element, tag string) (string, error) {
	child, err := ChildNode(e, tag)
	if err != nil {
		return "", err
	}
	text := child.Text()
	if text == "" {
		return "", fmt.Errorf("text of element %q: %w", tag, ErrNotFound)
	}
	return text, nil
}

// ChildAttrib returns attribute a of the first descendant named tag.
func ChildAttrib(e *etree.Element, tag, a string) (string, error) {
	child, err := ChildNode(e, tag)
	if err != nil {
		return "", err
	}
	attr := child.SelectAttr(a)
	if attr == nil {
		return "", fmt.Errorf("attribute %q of element %q: %w", a, tag, ErrNotFound)
	}
	return attr.Value, nil
}

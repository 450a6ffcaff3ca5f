package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind discriminates the Content union.
type Kind string

const (
	KindPlainText   Kind = "text"
	KindLocaleMap   Kind = "locales"
	KindSectionList Kind = "sections"
)

// ErrUnsupportedShape is returned when a serialized body is neither a string,
// an object of strings, nor an array of sections.
var ErrUnsupportedShape = errors.New("content: unsupported shape")

// partSeparator joins locale variants and section bodies in the canonical form.
const partSeparator = "\n\n"

// Section is one named block of a SectionList body.
type Section struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Body  string `json:"body" yaml:"body"`
}

// Part is a labelled slice of the canonical form, used for per-section lint
// breakdowns. Name is empty for plain text.
type Part struct {
	Name string
	Body string
}

// Content is a tagged union over the supported body shapes. The zero value is
// an empty plain-text body.
type Content struct {
	kind     Kind
	text     string
	locales  map[string]string
	sections []Section
}

// PlainText wraps a single string body.
func PlainText(text string) Content {
	return Content{kind: KindPlainText, text: text}
}

// LocaleMap wraps a locale-keyed body. The map is copied.
func LocaleMap(locales map[string]string) Content {
	copied := make(map[string]string, len(locales))
	for locale, body := range locales {
		copied[locale] = body
	}
	return Content{kind: KindLocaleMap, locales: copied}
}

// SectionList wraps an ordered list of sections. The slice is copied.
func SectionList(sections ...Section) Content {
	copied := make([]Section, len(sections))
	copy(copied, sections)
	return Content{kind: KindSectionList, sections: copied}
}

// Kind reports the shape of the body.
func (c Content) Kind() Kind {
	if c.kind == "" {
		return KindPlainText
	}
	return c.kind
}

// Text returns the plain-text body. It is empty for other shapes.
func (c Content) Text() string {
	return c.text
}

// Locales returns a copy of the locale map, or nil for other shapes.
func (c Content) Locales() map[string]string {
	if c.kind != KindLocaleMap {
		return nil
	}
	out := make(map[string]string, len(c.locales))
	for k, v := range c.locales {
		out[k] = v
	}
	return out
}

// Sections returns a copy of the section list, or nil for other shapes.
func (c Content) Sections() []Section {
	if c.kind != KindSectionList {
		return nil
	}
	out := make([]Section, len(c.sections))
	copy(out, c.sections)
	return out
}

// Parts splits the body into labelled parts in a deterministic order: locale
// keys sorted lexically, sections in declared order.
func (c Content) Parts() []Part {
	switch c.Kind() {
	case KindLocaleMap:
		keys := make([]string, 0, len(c.locales))
		for k := range c.locales {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]Part, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, Part{Name: k, Body: c.locales[k]})
		}
		return parts
	case KindSectionList:
		parts := make([]Part, 0, len(c.sections))
		for i, s := range c.sections {
			name := strings.TrimSpace(s.ID)
			if name == "" {
				name = fmt.Sprintf("section-%d", i+1)
			}
			parts = append(parts, Part{Name: name, Body: s.Body})
		}
		return parts
	default:
		return []Part{{Body: c.text}}
	}
}

// Normalize returns the canonical string form of the body.
func (c Content) Normalize() string {
	if c.Kind() == KindPlainText {
		return c.text
	}
	parts := c.Parts()
	bodies := make([]string, 0, len(parts))
	for _, p := range parts {
		bodies = append(bodies, p.Body)
	}
	return strings.Join(bodies, partSeparator)
}

// IsEmpty reports whether the canonical form holds only whitespace.
func (c Content) IsEmpty() bool {
	return strings.TrimSpace(c.Normalize()) == ""
}

// Equal reports whether c and other have the same shape and bodies.
func (c Content) Equal(other Content) bool {
	if c.Kind() != other.Kind() {
		return false
	}
	switch c.Kind() {
	case KindLocaleMap:
		return maps.Equal(c.locales, other.locales)
	case KindSectionList:
		return slices.Equal(c.sections, other.sections)
	default:
		return c.text == other.text
	}
}

// Map applies fn to every textual body and returns a body of the same shape.
func (c Content) Map(fn func(string) (string, error)) (Content, error) {
	switch c.Kind() {
	case KindLocaleMap:
		out := make(map[string]string, len(c.locales))
		for k, v := range c.locales {
			mapped, err := fn(v)
			if err != nil {
				return Content{}, fmt.Errorf("content: locale %q: %w", k, err)
			}
			out[k] = mapped
		}
		return Content{kind: KindLocaleMap, locales: out}, nil
	case KindSectionList:
		out := make([]Section, len(c.sections))
		for i, s := range c.sections {
			mapped, err := fn(s.Body)
			if err != nil {
				return Content{}, fmt.Errorf("content: section %q: %w", s.ID, err)
			}
			s.Body = mapped
			out[i] = s
		}
		return Content{kind: KindSectionList, sections: out}, nil
	default:
		mapped, err := fn(c.text)
		if err != nil {
			return Content{}, err
		}
		return PlainText(mapped), nil
	}
}

// Value returns the JSON-shaped value of the body (string, map or slice).
func (c Content) Value() any {
	switch c.Kind() {
	case KindLocaleMap:
		return c.Locales()
	case KindSectionList:
		return c.Sections()
	default:
		return c.text
	}
}

// MarshalJSON encodes the body in its natural JSON shape.
func (c Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value())
}

// UnmarshalJSON decodes a string, an object of strings or an array of sections.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = PlainText("")
		return nil
	}
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("content: decode text: %w", err)
		}
		*c = PlainText(text)
	case '{':
		var locales map[string]string
		if err := json.Unmarshal(trimmed, &locales); err != nil {
			return fmt.Errorf("content: decode locales: %w", err)
		}
		*c = LocaleMap(locales)
	case '[':
		var sections []Section
		if err := json.Unmarshal(trimmed, &sections); err != nil {
			return fmt.Errorf("content: decode sections: %w", err)
		}
		*c = SectionList(sections...)
	default:
		return ErrUnsupportedShape
	}
	return nil
}

// MarshalYAML encodes the body in its natural YAML shape.
func (c Content) MarshalYAML() (any, error) {
	return c.Value(), nil
}

// UnmarshalYAML decodes a scalar, a mapping of strings or a sequence of sections.
func (c *Content) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			*c = PlainText("")
			return nil
		}
		*c = PlainText(node.Value)
	case yaml.MappingNode:
		var locales map[string]string
		if err := node.Decode(&locales); err != nil {
			return fmt.Errorf("content: decode locales: %w", err)
		}
		*c = LocaleMap(locales)
	case yaml.SequenceNode:
		var sections []Section
		if err := node.Decode(&sections); err != nil {
			return fmt.Errorf("content: decode sections: %w", err)
		}
		*c = SectionList(sections...)
	default:
		return ErrUnsupportedShape
	}
	return nil
}

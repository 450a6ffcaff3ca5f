package assembly

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-docforge/pkg/lint"
	"github.com/goliatone/go-docforge/pkg/rules"
)

// ErrNoVariants is returned when a configuration declares no variants.
var ErrNoVariants = errors.New("assembly: no variants declared")

// Section is a conditionally included block of a variant.
type Section struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	Content   string    `json:"content" yaml:"content"`
	IncludeIf rules.Set `json:"includeIf,omitempty" yaml:"includeIf,omitempty"`
	ExcludeIf rules.Set `json:"excludeIf,omitempty" yaml:"excludeIf,omitempty"`
}

// Variant is one alternative body of a template.
type Variant struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name,omitempty" yaml:"name,omitempty"`
	Conditions rules.Set `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Content    string    `json:"content,omitempty" yaml:"content,omitempty"`
	Sections   []Section `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// RenderedSection is a section after substitution.
type RenderedSection struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// Document is the assembled output.
type Document struct {
	VariantID string            `json:"variantId"`
	Sections  []RenderedSection `json:"sections"`
	Content   string            `json:"content"`
}

// Formatter turns the value bound to key into document text.
type Formatter func(key string, value any) (string, error)

// PlainFormatter renders values with their natural string form.
func PlainFormatter(_ string, value any) (string, error) {
	return rules.Stringify(value), nil
}

var (
	htmlPolicyOnce sync.Once
	htmlPolicy     *bluemonday.Policy
)

// HTMLFormatter strips markup from answers before they are placed into an
// HTML document.
func HTMLFormatter(_ string, value any) (string, error) {
	htmlPolicyOnce.Do(func() {
		htmlPolicy = bluemonday.StrictPolicy()
	})
	return htmlPolicy.Sanitize(rules.Stringify(value)), nil
}

// Option configures Assemble and Substitute.
type Option func(*config)

type config struct {
	formatter Formatter
}

// WithFormatter overrides how answer values are rendered.
func WithFormatter(f Formatter) Option {
	return func(cfg *config) {
		if f != nil {
			cfg.formatter = f
		}
	}
}

func newConfig(options []Option) config {
	cfg := config{formatter: PlainFormatter}
	for _, opt := range options {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// SelectVariant returns the first variant whose conditions match data. When
// none match it falls back to defaultID, then to the first declared variant.
// ok is false only when variants is empty.
func SelectVariant(variants []Variant, defaultID string, data map[string]any) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	for _, v := range variants {
		if rules.EvaluateAll(v.Conditions, data) {
			return v, true
		}
	}
	if defaultID != "" {
		for _, v := range variants {
			if v.ID == defaultID {
				return v, true
			}
		}
	}
	return variants[0], true
}

// IncludedSections filters the variant's sections. ExcludeIf wins over
// IncludeIf; a section with neither is kept.
func IncludedSections(variant Variant, data map[string]any) []Section {
	out := make([]Section, 0, len(variant.Sections))
	for _, s := range variant.Sections {
		if len(s.ExcludeIf) > 0 && rules.EvaluateAll(s.ExcludeIf, data) {
			continue
		}
		if len(s.IncludeIf) > 0 && !rules.EvaluateAll(s.IncludeIf, data) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Assemble substitutes data into the variant root content and every section.
// Content is the root text followed by the rendered sections, separated by
// blank lines.
func Assemble(variant Variant, sections []Section, data map[string]any, options ...Option) (Document, error) {
	cfg := newConfig(options)

	root, err := substitute(variant.Content, data, cfg.formatter)
	if err != nil {
		return Document{}, fmt.Errorf("assembly: variant %q: %w", variant.ID, err)
	}

	doc := Document{VariantID: variant.ID, Sections: make([]RenderedSection, 0, len(sections))}
	parts := make([]string, 0, len(sections)+1)
	if strings.TrimSpace(root) != "" {
		parts = append(parts, root)
	}
	for _, s := range sections {
		rendered, err := substitute(s.Content, data, cfg.formatter)
		if err != nil {
			return Document{}, fmt.Errorf("assembly: section %q: %w", s.ID, err)
		}
		doc.Sections = append(doc.Sections, RenderedSection{ID: s.ID, Title: s.Title, Content: rendered})
		parts = append(parts, rendered)
	}
	doc.Content = strings.Join(parts, "\n\n")
	return doc, nil
}

// Substitute replaces every single-word `{{key}}` token in text with the
// formatted value of data[key], or "" when the key is absent. Helper and block
// tokens are left in place.
func Substitute(text string, data map[string]any, options ...Option) (string, error) {
	cfg := newConfig(options)
	return substitute(text, data, cfg.formatter)
}

func substitute(text string, data map[string]any, format Formatter) (string, error) {
	tokens := lint.ExtractTokens(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, tok := range tokens {
		key, ok := substitutionKey(tok.Inner)
		if !ok {
			continue
		}
		value, _ := rules.Lookup(data, key)
		rendered, err := format(key, value)
		if err != nil {
			return "", fmt.Errorf("format %q: %w", key, err)
		}
		b.WriteString(text[last:tok.Offset])
		b.WriteString(rendered)
		last = tok.Offset + len(tok.Raw)
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

func substitutionKey(inner string) (string, bool) {
	if inner == "" || strings.ContainsAny(inner, " \t\n") {
		return "", false
	}
	switch inner[0] {
	case '#', '/', '!':
		return "", false
	}
	if inner == "else" || inner == "this" || inner == "." {
		return "", false
	}
	return inner, true
}

package lint

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-docforge/pkg/content"
)

// DefaultMaxContentBytes is the size above which the smoke test warns.
const DefaultMaxContentBytes = 100 * 1024

// SmokeOption configures SmokeTest.
type SmokeOption func(*smokeConfig)

type smokeConfig struct {
	maxBytes int
}

// WithMaxContentBytes overrides the size warning threshold. Non-positive
// values keep the default.
func WithMaxContentBytes(n int) SmokeOption {
	return func(cfg *smokeConfig) {
		if n > 0 {
			cfg.maxBytes = n
		}
	}
}

// SmokeResult is the verdict for a single body. Success is false only for
// empty content or unbalanced braces; everything else is a warning.
type SmokeResult struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings"`
}

// SmokeTest runs the structural checks against body. declared lists the
// template's required and optional variable names.
func SmokeTest(body content.Content, declared []string, options ...SmokeOption) SmokeResult {
	cfg := smokeConfig{maxBytes: DefaultMaxContentBytes}
	for _, opt := range options {
		if opt != nil {
			opt(&cfg)
		}
	}

	text := body.Normalize()
	if strings.TrimSpace(text) == "" {
		return SmokeResult{Success: false, Error: "content is empty", Warnings: []string{}}
	}

	opens := strings.Count(text, "{{")
	closes := strings.Count(text, "}}")
	if opens != closes {
		return SmokeResult{
			Success:  false,
			Error:    fmt.Sprintf("unbalanced template braces: %d opening, %d closing (mismatch of %d)", opens, closes, abs(opens-closes)),
			Warnings: []string{},
		}
	}

	warnings := []string{}
	if HasPlaceholders(text) {
		warnings = append(warnings, "content contains unresolved placeholder markers")
	}

	known := nameSet(declared)
	for _, name := range ExtractVariables(text) {
		if !known.has(name) {
			warnings = append(warnings, fmt.Sprintf("variable %q is used but not declared", name))
		}
	}

	if size := len(text); size > cfg.maxBytes {
		warnings = append(warnings, fmt.Sprintf("content is %d bytes, above the %d byte threshold", size, cfg.maxBytes))
	}

	return SmokeResult{Success: true, Warnings: warnings}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

type names map[string]struct{}

func nameSet(values ...[]string) names {
	set := make(names)
	for _, list := range values {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v != "" {
				set[v] = struct{}{}
			}
		}
	}
	return set
}

// has matches the full dotted name first, then its root segment so that a
// declared "party" covers "party.name".
func (n names) has(name string) bool {
	if _, ok := n[name]; ok {
		return true
	}
	if root, _, found := strings.Cut(name, "."); found {
		_, ok := n[root]
		return ok
	}
	return false
}

package lint

import (
	"sort"

	"github.com/goliatone/go-docforge/pkg/content"
)

// Result is the outcome of linting one body. OK holds when no unknown
// variables and no placeholder markers were found.
type Result struct {
	VarsUsed        []string        `json:"varsUsed"`
	UnknownVars     []string        `json:"unknownVars"`
	HasPlaceholders bool            `json:"hasPlaceholders"`
	Sections        []SectionResult `json:"sections,omitempty"`
	OK              bool            `json:"ok"`
}

// SectionResult is the per-part breakdown for locale or section bodies.
type SectionResult struct {
	Name            string   `json:"name"`
	VarsUsed        []string `json:"varsUsed"`
	UnknownVars     []string `json:"unknownVars"`
	HasPlaceholders bool     `json:"hasPlaceholders"`
}

// Lint extracts the variables body uses and reports those that are neither
// declared nor present in sample.
func Lint(body content.Content, declared []string, sample map[string]any) Result {
	known := nameSet(declared, sampleKeys(sample))
	text := body.Normalize()

	used := ExtractVariables(text)
	result := Result{
		VarsUsed:        nonNil(used),
		UnknownVars:     unknown(used, known),
		HasPlaceholders: HasPlaceholders(text),
	}

	if body.Kind() != content.KindPlainText {
		for _, part := range body.Parts() {
			partVars := ExtractVariables(part.Body)
			result.Sections = append(result.Sections, SectionResult{
				Name:            part.Name,
				VarsUsed:        nonNil(partVars),
				UnknownVars:     unknown(partVars, known),
				HasPlaceholders: HasPlaceholders(part.Body),
			})
		}
	}

	result.OK = len(result.UnknownVars) == 0 && !result.HasPlaceholders
	return result
}

func unknown(used []string, known names) []string {
	out := []string{}
	for _, name := range used {
		if !known.has(name) {
			out = append(out, name)
		}
	}
	return out
}

func sampleKeys(sample map[string]any) []string {
	keys := make([]string, 0, len(sample))
	for k := range sample {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

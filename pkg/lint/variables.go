package lint

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*$`)

// knownHelpers are the conditional, loop, comparison and boolean helpers a
// multi-word token may open with.
var knownHelpers = map[string]struct{}{
	"if":     {},
	"unless": {},
	"each":   {},
	"with":   {},
	"else":   {},
	"eq":     {},
	"ne":     {},
	"lt":     {},
	"gt":     {},
	"lte":    {},
	"gte":    {},
	"and":    {},
	"or":     {},
	"not":    {},
	"lookup": {},
}

// reservedWords never name a variable.
var reservedWords = map[string]struct{}{
	"this": {},
	".":    {},
	"else": {},
}

// IsHelper reports whether name is on the helper allow-list.
func IsHelper(name string) bool {
	_, ok := knownHelpers[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ExtractVariables returns the ordered, duplicate-free variable names that
// text references.
func ExtractVariables(text string) []string {
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	add := func(name string) {
		if _, reserved := reservedWords[name]; reserved {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, tok := range ExtractTokens(text) {
		inner := tok.Inner
		if inner == "" || isBlockMarker(inner) {
			continue
		}
		words := strings.Fields(inner)
		if len(words) == 1 {
			add(words[0])
			continue
		}
		if IsHelper(words[0]) {
			continue
		}
		for _, w := range words {
			if wordPattern.MatchString(w) {
				add(w)
			}
		}
	}
	return out
}

func isBlockMarker(inner string) bool {
	switch inner[0] {
	case '#', '/', '!':
		return true
	default:
		return false
	}
}

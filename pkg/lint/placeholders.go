package lint

import "regexp"

const markerAlternation = `(?:TO-?DO|FIX-?ME|XXX|TBD)`

var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[\s*` + markerAlternation + `[^\]]*\]`),
	regexp.MustCompile(`(?i)\b` + markerAlternation + `\s*:`),
	regexp.MustCompile(`(?i)\{\{\s*` + markerAlternation + `\s*\}\}`),
	regexp.MustCompile(`(?i)__` + markerAlternation + `__`),
}

// HasPlaceholders reports whether text still carries an authoring marker such
// as "[TODO]", "FIXME:" or "{{TODO}}".
func HasPlaceholders(text string) bool {
	for _, p := range placeholderPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

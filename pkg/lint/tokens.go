package lint

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// Token is one `{{...}}` occurrence in a body.
type Token struct {
	Raw    string
	Inner  string
	Offset int
}

// ExtractTokens returns every brace token in text in order of appearance.
// Inner is whitespace-trimmed.
func ExtractTokens(text string) []Token {
	matches := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	tokens := make([]Token, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, Token{
			Raw:    text[m[0]:m[1]],
			Inner:  strings.TrimSpace(text[m[2]:m[3]]),
			Offset: m[0],
		})
	}
	return tokens
}

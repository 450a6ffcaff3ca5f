// Package lint performs static checks on template bodies: it extracts the
// variables a body references, detects leftover authoring markers, and runs a
// structural smoke test that decides whether a body is publishable at all.
//
// Extraction is lexical, not a template parser. Every scan goes through
// ExtractTokens so a real parser can replace the regular expression later
// without touching callers. Ambiguous tokens are reported rather than dropped:
// a multi-word token whose first word is not a known helper contributes every
// identifier-like word it contains.
package lint

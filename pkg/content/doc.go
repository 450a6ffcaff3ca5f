// Package content models the raw body of a document template. A body is one
// of three shapes: a single plain-text string, a locale-keyed map of strings,
// or an ordered list of sections. Every analysis in the module works on the
// canonical string produced by Normalize so callers never branch on shape.
package content

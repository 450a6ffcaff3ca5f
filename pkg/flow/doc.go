// Package flow drives guided document assembly. A TemplateConfig declares
// ordered steps of fields plus the variants a finished interview can produce.
// A Session accumulates answers and re-derives, on every read, which steps
// and fields are visible, which are required, how far along the user is, and
// finally which document the answers produce.
//
// Visibility and requirement are independent: requiredIf never forces a field
// to be shown, and a hidden field is never validated or counted.
package flow

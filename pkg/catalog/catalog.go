// Package catalog defines template records, their declared variables and the
// immutable verification reports written for every verification attempt.
package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-docforge/pkg/content"
)

// Status is the verification state of a template.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusVerified Status = "VERIFIED"
	StatusBlocked  Status = "BLOCKED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusVerified, StatusBlocked:
		return true
	default:
		return false
	}
}

// Variable describes a declared template input.
type Variable struct {
	Name  string `json:"name" yaml:"name"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Template is a document body subject to verification before buyers may be
// served it.
type Template struct {
	ID                string          `json:"id" yaml:"id"`
	Title             string          `json:"title" yaml:"title"`
	Category          string          `json:"category,omitempty" yaml:"category,omitempty"`
	Content           content.Content `json:"content" yaml:"content"`
	RequiredVariables []Variable      `json:"requiredVariables,omitempty" yaml:"requiredVariables,omitempty"`
	OptionalVariables []Variable      `json:"optionalVariables,omitempty" yaml:"optionalVariables,omitempty"`
	Published         bool            `json:"published,omitempty" yaml:"published,omitempty"`

	Status               Status     `json:"status" yaml:"status"`
	LastVerifiedAt       *time.Time `json:"lastVerifiedAt,omitempty" yaml:"lastVerifiedAt,omitempty"`
	VersionHash          string     `json:"versionHash,omitempty" yaml:"versionHash,omitempty"`
	VerificationRequired bool       `json:"verificationRequired" yaml:"verificationRequired"`

	VariablesCache    []string   `json:"variablesCache,omitempty" yaml:"variablesCache,omitempty"`
	VariablesCachedAt *time.Time `json:"variablesCachedAt,omitempty" yaml:"variablesCachedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// New creates a DRAFT template. Fresh templates always need verification.
func New(id, title string, body content.Content, now time.Time) Template {
	now = Truncate(now)
	return Template{
		ID:                   id,
		Title:                title,
		Content:              body,
		Status:               StatusDraft,
		VerificationRequired: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Truncate drops sub-microsecond precision so timestamps compare the same
// after a round trip through the database.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// DeclaredNames lists required then optional variable names.
func (t Template) DeclaredNames() []string {
	out := make([]string, 0, len(t.RequiredVariables)+len(t.OptionalVariables))
	for _, v := range t.RequiredVariables {
		out = append(out, v.Name)
	}
	for _, v := range t.OptionalVariables {
		out = append(out, v.Name)
	}
	return out
}

// RequiredNames lists the required variable names.
func (t Template) RequiredNames() []string {
	out := make([]string, 0, len(t.RequiredVariables))
	for _, v := range t.RequiredVariables {
		out = append(out, v.Name)
	}
	return out
}

// IsProductionEligible holds iff the template is VERIFIED, not flagged for
// verification, verified no earlier than its last update, and carries a
// version hash. The status alone is never trusted.
func IsProductionEligible(t Template) bool {
	return t.Status == StatusVerified &&
		!t.VerificationRequired &&
		t.LastVerifiedAt != nil &&
		!t.LastVerifiedAt.Before(t.UpdatedAt) &&
		t.VersionHash != ""
}

// WithContent returns t carrying body, stamped with now and flagged for
// verification. Edits always go through here so eligibility is cleared in
// the same write as the content change.
func (t Template) WithContent(body content.Content, now time.Time) Template {
	t.Content = body
	t.UpdatedAt = Truncate(now)
	t.VerificationRequired = true
	return t
}

// VerificationReport is the immutable record of one verification attempt.
type VerificationReport struct {
	ID              uuid.UUID `json:"id"`
	TemplateID      string    `json:"templateId"`
	Success         bool      `json:"success"`
	Status          Status    `json:"status"`
	UnknownVars     []string  `json:"unknownVars"`
	HasPlaceholders bool      `json:"hasPlaceholders"`
	MissingRequired []string  `json:"missingRequired"`
	VersionHash     string    `json:"versionHash"`
	Blockers        []string  `json:"blockers"`
	Warnings        []string  `json:"warnings"`
	Forced          bool      `json:"forced"`
	CreatedAt       time.Time `json:"createdAt"`
}

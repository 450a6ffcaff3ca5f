// Package store defines the record store the verification pipeline persists
// to. Every mutating call is a single atomic update keyed by template id.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/content"
	"github.com/goliatone/go-docforge/pkg/flow"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a template changed after the caller read it.
var ErrConflict = errors.New("store: conflict")

// ListFilter narrows ListTemplates.
type ListFilter struct {
	PublishedOnly bool
	IDs           []string
}

// VerificationState is the set of template fields a verification attempt
// writes together with its report.
type VerificationState struct {
	Status            catalog.Status
	VersionHash       string
	LastVerifiedAt    *time.Time
	ClearRequired     bool
	VariablesCache    []string
	VariablesCachedAt *time.Time
	// ExpectedUpdatedAt is the updatedAt the attempt was computed from. When
	// set, the commit fails with ErrConflict if the template was edited since.
	ExpectedUpdatedAt time.Time
}

// Store is the persistence contract.
type Store interface {
	GetTemplate(ctx context.Context, id string) (catalog.Template, error)
	ListTemplates(ctx context.Context, filter ListFilter) ([]catalog.Template, error)
	SaveTemplate(ctx context.Context, tpl catalog.Template) error
	// UpdateContent replaces the body, stamps updatedAt and sets
	// verificationRequired in one write.
	UpdateContent(ctx context.Context, id string, body content.Content, now time.Time) (catalog.Template, error)
	// CommitVerification appends report and applies state atomically. A
	// blocked attempt only carries the status. Nothing is written when the
	// template no longer matches state.ExpectedUpdatedAt.
	CommitVerification(ctx context.Context, report catalog.VerificationReport, state VerificationState) error
	UpdateVariableCache(ctx context.Context, id string, vars []string, at time.Time) error
	FlagForReverification(ctx context.Context, id, reason string) error
	ListReports(ctx context.Context, templateID string) ([]catalog.VerificationReport, error)

	GetConfig(ctx context.Context, templateID string) (flow.TemplateConfig, error)
	SaveConfig(ctx context.Context, cfg flow.TemplateConfig) error
}

// Apply copies the verification state onto tpl.
func (s VerificationState) Apply(tpl catalog.Template) catalog.Template {
	tpl.Status = s.Status
	if s.Status != catalog.StatusVerified {
		return tpl
	}
	tpl.VersionHash = s.VersionHash
	tpl.LastVerifiedAt = s.LastVerifiedAt
	if s.ClearRequired {
		tpl.VerificationRequired = false
	}
	if s.VariablesCachedAt != nil {
		tpl.VariablesCache = append([]string(nil), s.VariablesCache...)
		tpl.VariablesCachedAt = s.VariablesCachedAt
	}
	return tpl
}

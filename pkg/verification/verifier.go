package verification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/lint"
	"github.com/goliatone/go-docforge/pkg/logging"
	"github.com/goliatone/go-docforge/pkg/store"
)

var (
	// ErrStructural marks attempts blocked by a broken body. Force never
	// overrides it.
	ErrStructural = errors.New("verification: structural failure")
	// ErrBlocked marks attempts blocked by content quality issues.
	ErrBlocked = errors.New("verification: blocked")
)

// Options tune a verification attempt.
type Options struct {
	// Force publishes despite content quality blockers.
	Force bool
	// DryRun computes the outcome without persisting anything.
	DryRun bool
}

// Outcome is the result of Verify. Blocked attempts are outcomes, not errors.
type Outcome struct {
	Status     catalog.Status             `json:"status"`
	Blockers   []string                   `json:"blockers"`
	Warnings   []string                   `json:"warnings"`
	Report     catalog.VerificationReport `json:"report"`
	Eligible   bool                       `json:"eligible"`
	Structural bool                       `json:"structural,omitempty"`
	DryRun     bool                       `json:"dryRun,omitempty"`
}

// Err converts a blocked outcome into ErrStructural or ErrBlocked.
func (o Outcome) Err() error {
	switch {
	case o.Status != catalog.StatusBlocked:
		return nil
	case o.Structural:
		return fmt.Errorf("%w: %s", ErrStructural, strings.Join(o.Blockers, "; "))
	default:
		return fmt.Errorf("%w: %s", ErrBlocked, strings.Join(o.Blockers, "; "))
	}
}

// Verifier runs verification attempts against a store.
type Verifier struct {
	store       store.Store
	logger      logging.Logger
	now         func() time.Time
	maxBytes    int
	concurrency int
	limiter     *rate.Limiter
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithMaxContentBytes sets the oversized-content threshold.
func WithMaxContentBytes(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxBytes = n
		}
	}
}

// WithBatchConcurrency caps the templates linted in parallel.
func WithBatchConcurrency(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithRateLimit throttles batch cache writes to rps with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(v *Verifier) {
		if rps <= 0 {
			v.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		v.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a Verifier over s.
func New(s store.Store, opts ...Option) *Verifier {
	v := &Verifier{
		store:       s,
		logger:      logging.Nop(),
		now:         time.Now,
		maxBytes:    lint.DefaultMaxContentBytes,
		concurrency: 4,
		limiter:     rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Lint lints template id treating sample keys as known variables, and
// refreshes its variable cache when stale.
func (v *Verifier) Lint(ctx context.Context, id string, sample map[string]any) (lint.Result, error) {
	tpl, err := v.store.GetTemplate(ctx, id)
	if err != nil {
		return lint.Result{}, fmt.Errorf("verification: lint %q: %w", id, err)
	}
	result := lint.Lint(tpl.Content, tpl.DeclaredNames(), sample)
	if !CacheFresh(tpl) {
		if err := v.store.UpdateVariableCache(ctx, id, result.VarsUsed, stamp(v.now)); err != nil {
			return lint.Result{}, fmt.Errorf("verification: cache %q: %w", id, err)
		}
	}
	return result, nil
}

// Variables returns the variables template id uses, served from the cache
// while it is fresh and recomputed otherwise.
func (v *Verifier) Variables(ctx context.Context, id string) ([]string, error) {
	tpl, err := v.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("verification: variables %q: %w", id, err)
	}
	if CacheFresh(tpl) {
		return slices.Clone(tpl.VariablesCache), nil
	}
	vars := lint.ExtractVariables(tpl.Content.Normalize())
	if err := v.store.UpdateVariableCache(ctx, id, vars, stamp(v.now)); err != nil {
		return nil, fmt.Errorf("verification: cache %q: %w", id, err)
	}
	return vars, nil
}

// Verify runs one verification attempt. Errors are returned only when the
// template cannot be loaded or the attempt cannot be persisted.
func (v *Verifier) Verify(ctx context.Context, id string, opts Options) (Outcome, error) {
	tpl, err := v.store.GetTemplate(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("verification: verify %q: %w", id, err)
	}

	f := v.inspect(tpl)
	now := stamp(v.now)

	blocked := f.structural || (len(f.blockers) > 0 && !opts.Force)
	status := catalog.StatusVerified
	if blocked {
		status = catalog.StatusBlocked
	}

	report := catalog.VerificationReport{
		ID:              uuid.New(),
		TemplateID:      tpl.ID,
		Success:         !blocked,
		Status:          status,
		UnknownVars:     f.unknown,
		HasPlaceholders: f.placeholders,
		MissingRequired: f.missing,
		VersionHash:     f.hash,
		Blockers:        f.blockers,
		Warnings:        f.warnings,
		Forced:          opts.Force && !blocked && len(f.blockers) > 0,
		CreatedAt:       now,
	}

	state := store.VerificationState{Status: status, ExpectedUpdatedAt: tpl.UpdatedAt}
	if !blocked {
		state.VersionHash = f.hash
		state.LastVerifiedAt = &now
		state.ClearRequired = true
		state.VariablesCache = f.used
		state.VariablesCachedAt = &now
	}

	out := Outcome{
		Status:     status,
		Blockers:   f.blockers,
		Warnings:   f.warnings,
		Report:     report,
		Structural: f.structural,
		DryRun:     opts.DryRun,
	}

	log := v.logger.With("template_id", tpl.ID, "report_id", report.ID.String())
	if opts.DryRun {
		out.Eligible = Eligible(tpl)
		log.Info(ctx, "verification dry run", "status", status, "blockers", len(f.blockers))
		return out, nil
	}

	if err := v.store.CommitVerification(ctx, report, state); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Warn(ctx, "template edited during verification", "status", status)
		}
		return Outcome{}, fmt.Errorf("verification: commit %q: %w", id, err)
	}
	out.Eligible = Eligible(state.Apply(tpl))

	if blocked {
		log.Warn(ctx, "template blocked", "status", status, "structural", f.structural, "blockers", strings.Join(f.blockers, "; "))
	} else {
		log.Info(ctx, "template verified", "status", status, "forced", report.Forced, "version_hash", f.hash)
	}
	return out, nil
}

func stamp(now func() time.Time) time.Time {
	return catalog.Truncate(now())
}

type findings struct {
	structural   bool
	blockers     []string
	warnings     []string
	used         []string
	unknown      []string
	missing      []string
	placeholders bool
	hash         string
}

func (v *Verifier) inspect(tpl catalog.Template) findings {
	declared := tpl.DeclaredNames()
	smoke := lint.SmokeTest(tpl.Content, declared, lint.WithMaxContentBytes(v.maxBytes))
	result := lint.Lint(tpl.Content, declared, nil)

	f := findings{
		blockers:     []string{},
		warnings:     smoke.Warnings,
		used:         result.VarsUsed,
		unknown:      result.UnknownVars,
		placeholders: result.HasPlaceholders,
		missing:      missingRequired(tpl.RequiredNames(), result.VarsUsed),
	}

	if !smoke.Success {
		f.structural = true
		f.blockers = append(f.blockers, smoke.Error)
	}
	if f.placeholders {
		f.blockers = append(f.blockers, "content contains unresolved placeholder markers")
	}
	if len(f.unknown) > 0 {
		f.blockers = append(f.blockers, "undeclared variables: "+strings.Join(f.unknown, ", "))
	}
	if bad := suspicious(f.used); len(bad) > 0 {
		f.blockers = append(f.blockers, "suspicious variable names: "+strings.Join(bad, ", "))
	}
	if len(f.missing) > 0 {
		f.blockers = append(f.blockers, "required variables never used: "+strings.Join(f.missing, ", "))
	}
	if size := len(tpl.Content.Normalize()); size > v.maxBytes {
		f.blockers = append(f.blockers, fmt.Sprintf("content is %d bytes, above the %d byte threshold", size, v.maxBytes))
	}

	hash, err := Hash(tpl.Content)
	if err != nil {
		f.structural = true
		f.blockers = append(f.blockers, err.Error())
	}
	f.hash = hash
	return f
}

// missingRequired lists required names that no used variable references,
// either directly or as the root of a dotted path.
func missingRequired(required, used []string) []string {
	out := []string{}
	for _, name := range required {
		found := false
		for _, u := range used {
			if u == name || strings.HasPrefix(u, name+".") {
				found = true
				break
			}
		}
		if !found {
			out = append(out, name)
		}
	}
	return out
}

var (
	suspiciousSubstrings = []string{"undefined", "todo", "fixme"}
	suspiciousSegments   = []string{"null", "nan"}
)

// suspicious flags variable names that look like leaked error values. Short
// tokens only match whole segments so names like "financial" pass.
func suspicious(names []string) []string {
	var out []string
	for _, name := range names {
		lower := strings.ToLower(name)
		hit := false
		for _, s := range suspiciousSubstrings {
			if strings.Contains(lower, s) {
				hit = true
				break
			}
		}
		if !hit {
			for _, seg := range strings.FieldsFunc(lower, func(r rune) bool { return r == '.' || r == '_' || r == '-' }) {
				if slices.Contains(suspiciousSegments, seg) {
					hit = true
					break
				}
			}
		}
		if hit {
			out = append(out, name)
		}
	}
	return out
}

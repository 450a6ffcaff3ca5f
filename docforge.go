// Package docforge wires the document assembly and template verification
// packages into a single Service: linting, batch linting, verification and
// publishing, content edits, safe rendering and guided flows.
package docforge

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-docforge/pkg/assembly"
	"github.com/goliatone/go-docforge/pkg/auth"
	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/content"
	"github.com/goliatone/go-docforge/pkg/flow"
	"github.com/goliatone/go-docforge/pkg/lint"
	"github.com/goliatone/go-docforge/pkg/logging"
	"github.com/goliatone/go-docforge/pkg/saferender"
	"github.com/goliatone/go-docforge/pkg/store"
	"github.com/goliatone/go-docforge/pkg/verification"
)

// Service is the entry point used by the CLI and the HTTP API.
type Service struct {
	store      store.Store
	flows      *flow.Registry
	authorizer auth.Authorizer
	logger     logging.Logger
	now        func() time.Time

	verifier *verification.Verifier
	renderer *saferender.Renderer
}

// Option configures a Service.
type Option func(*settings)

type settings struct {
	store       store.Store
	flows       *flow.Registry
	authorizer  auth.Authorizer
	logger      logging.Logger
	now         func() time.Time
	production  bool
	maxBytes    int
	concurrency int
	rate        float64
	burst       int
	counter     saferender.Counter
	sink        saferender.Sink
}

// WithStore sets the record store. Defaults to an in-memory store.
func WithStore(s store.Store) Option {
	return func(cfg *settings) { cfg.store = s }
}

// WithFlows registers flow definitions that take precedence over configs
// held in the store.
func WithFlows(r *flow.Registry) Option {
	return func(cfg *settings) { cfg.flows = r }
}

// WithAuthorizer sets the privileged-caller check. Without one every
// privileged operation is rejected.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(cfg *settings) { cfg.authorizer = a }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(cfg *settings) { cfg.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(cfg *settings) { cfg.now = now }
}

// WithProduction turns on the render-time eligibility gate.
func WithProduction(enabled bool) Option {
	return func(cfg *settings) { cfg.production = enabled }
}

// WithMaxContentBytes sets the size threshold used by smoke tests and
// verification.
func WithMaxContentBytes(n int) Option {
	return func(cfg *settings) { cfg.maxBytes = n }
}

// WithBatchLimits caps batch lint concurrency and store write rate.
func WithBatchLimits(concurrency int, ratePerSecond float64, burst int) Option {
	return func(cfg *settings) {
		cfg.concurrency = concurrency
		cfg.rate = ratePerSecond
		cfg.burst = burst
	}
}

// WithFallbackCounter sets the counter incremented on every fallback render.
func WithFallbackCounter(c saferender.Counter) Option {
	return func(cfg *settings) { cfg.counter = c }
}

// WithEventSink sets where render failure events go, in addition to the log.
func WithEventSink(s saferender.Sink) Option {
	return func(cfg *settings) { cfg.sink = s }
}

// New builds a Service.
func New(options ...Option) *Service {
	cfg := settings{
		logger:   logging.Nop(),
		now:      time.Now,
		maxBytes: lint.DefaultMaxContentBytes,
	}
	for _, opt := range options {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.store == nil {
		cfg.store = store.NewMemory()
	}
	if cfg.flows == nil {
		cfg.flows = flow.NewRegistry()
	}
	if cfg.logger == nil {
		cfg.logger = logging.Nop()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	verifierOpts := []verification.Option{
		verification.WithLogger(cfg.logger),
		verification.WithClock(cfg.now),
		verification.WithMaxContentBytes(cfg.maxBytes),
		verification.WithBatchConcurrency(cfg.concurrency),
	}
	if cfg.rate > 0 {
		verifierOpts = append(verifierOpts, verification.WithRateLimit(cfg.rate, cfg.burst))
	}

	sink := saferender.Sink(saferender.LoggerSink{Logger: cfg.logger})
	if cfg.sink != nil {
		sink = saferender.MultiSink{sink, cfg.sink}
	}

	return &Service{
		store:      cfg.store,
		flows:      cfg.flows,
		authorizer: cfg.authorizer,
		logger:     cfg.logger,
		now:        cfg.now,
		verifier:   verification.New(cfg.store, verifierOpts...),
		renderer: saferender.New(
			saferender.WithProduction(cfg.production),
			saferender.WithFlagger(cfg.store),
			saferender.WithCounter(cfg.counter),
			saferender.WithSink(sink),
			saferender.WithLogger(cfg.logger),
			saferender.WithMaxContentBytes(cfg.maxBytes),
			saferender.WithClock(cfg.now),
		),
	}
}

// Store returns the underlying record store.
func (s *Service) Store() store.Store {
	return s.store
}

// Lint reports the variables template id uses and which of them are
// unknown, treating sample keys as known.
func (s *Service) Lint(ctx context.Context, id string, sample map[string]any) (lint.Result, error) {
	return s.verifier.Lint(ctx, id, sample)
}

// BatchLint lints many templates. It is a privileged operation.
func (s *Service) BatchLint(ctx context.Context, sel verification.Selection) (verification.BatchResult, error) {
	if err := auth.Require(ctx, s.authorizer, "batch lint"); err != nil {
		return verification.BatchResult{}, err
	}
	return s.verifier.BatchLint(ctx, sel)
}

// VerifyAndPublish runs a verification attempt. It is a privileged
// operation, dry runs included.
func (s *Service) VerifyAndPublish(ctx context.Context, id string, opts verification.Options) (verification.Outcome, error) {
	op := "publish"
	if opts.Force {
		op = "forced publish"
	}
	if err := auth.Require(ctx, s.authorizer, op); err != nil {
		return verification.Outcome{}, err
	}
	return s.verifier.Verify(ctx, id, opts)
}

// IsProductionEligible is the four-part eligibility invariant.
func (s *Service) IsProductionEligible(tpl catalog.Template) bool {
	return catalog.IsProductionEligible(tpl)
}

// UpdateContent replaces a template body. The same store write clears
// eligibility.
func (s *Service) UpdateContent(ctx context.Context, id string, body content.Content) (catalog.Template, error) {
	if err := auth.Require(ctx, s.authorizer, "edit content"); err != nil {
		return catalog.Template{}, err
	}
	tpl, err := s.store.UpdateContent(ctx, id, body, s.now())
	if err != nil {
		return catalog.Template{}, fmt.Errorf("docforge: update content: %w", err)
	}
	s.logger.Info(ctx, "template content updated", "template_id", id, "verification_required", tpl.VerificationRequired)
	return tpl, nil
}

// RenderSafely renders tpl with data. It never fails.
func (s *Service) RenderSafely(ctx context.Context, tpl catalog.Template, data map[string]any) saferender.Result {
	return s.renderer.RenderSafely(ctx, tpl, data)
}

// RenderByID loads template id and renders it safely. A template that
// cannot be loaded is answered with the fallback document.
func (s *Service) RenderByID(ctx context.Context, id string, data map[string]any) saferender.Result {
	tpl, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		s.logger.Error(ctx, "render could not load template", "template_id", id, "error", err)
		// an empty body fails the smoke test and yields the fallback
		return s.renderer.RenderSafely(ctx, catalog.Template{ID: id}, data)
	}
	return s.renderer.RenderSafely(ctx, tpl, data)
}

// Catalog lists the published templates buyers may be served.
func (s *Service) Catalog(ctx context.Context) ([]catalog.Template, error) {
	templates, err := s.store.ListTemplates(ctx, store.ListFilter{PublishedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("docforge: catalog: %w", err)
	}
	out := make([]catalog.Template, 0, len(templates))
	for _, tpl := range templates {
		if verification.Eligible(tpl) {
			out = append(out, tpl)
		}
	}
	return out, nil
}

// Reports returns the verification history of template id, newest first.
func (s *Service) Reports(ctx context.Context, id string) ([]catalog.VerificationReport, error) {
	return s.store.ListReports(ctx, id)
}

// FlowConfig returns the flow definition for templateID.
func (s *Service) FlowConfig(ctx context.Context, templateID string) (flow.TemplateConfig, error) {
	if cfg, ok := s.flows.Get(templateID); ok {
		return cfg, nil
	}
	cfg, err := s.store.GetConfig(ctx, templateID)
	if err != nil {
		return flow.TemplateConfig{}, fmt.Errorf("docforge: flow %q: %w", templateID, err)
	}
	return cfg, nil
}

// NewSession starts a guided flow for templateID.
func (s *Service) NewSession(ctx context.Context, templateID string, initial map[string]any) (*flow.Session, error) {
	cfg, err := s.FlowConfig(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return flow.NewSession(cfg, initial), nil
}

// GenerateDocument assembles the document for templateID from answers.
func (s *Service) GenerateDocument(ctx context.Context, templateID string, answers map[string]any) (assembly.Document, error) {
	session, err := s.NewSession(ctx, templateID, answers)
	if err != nil {
		return assembly.Document{}, err
	}
	doc, err := session.GenerateDocument()
	if err != nil {
		return assembly.Document{}, fmt.Errorf("docforge: generate %q: %w", templateID, err)
	}
	return doc, nil
}

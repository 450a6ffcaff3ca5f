package saferender

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/goliatone/go-docforge/pkg/assembly"
	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/lint"
	"github.com/goliatone/go-docforge/pkg/logging"
	"github.com/goliatone/go-docforge/pkg/verification"
)

// Flagger marks a template for re-verification. store.Store satisfies it.
type Flagger interface {
	FlagForReverification(ctx context.Context, id, reason string) error
}

// Result is what RenderSafely returns. Success is always true; UsedFallback
// tells whether Output is the substitute document.
type Result struct {
	Success      bool      `json:"success"`
	Output       string    `json:"output"`
	UsedFallback bool      `json:"usedFallback"`
	Reason       EventName `json:"reason,omitempty"`
}

// Renderer implements the safe-render contract.
type Renderer struct {
	flagger    Flagger
	counter    Counter
	sink       Sink
	logger     logging.Logger
	formatter  assembly.Formatter
	production bool
	maxBytes   int
	now        func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithProduction enables the eligibility gate.
func WithProduction(enabled bool) Option {
	return func(r *Renderer) { r.production = enabled }
}

// WithFlagger sets where re-verification flags go.
func WithFlagger(f Flagger) Option {
	return func(r *Renderer) { r.flagger = f }
}

// WithCounter sets the fallback counter.
func WithCounter(c Counter) Option {
	return func(r *Renderer) {
		if c != nil {
			r.counter = c
		}
	}
}

// WithSink sets the event sink. The default logs events.
func WithSink(s Sink) Option {
	return func(r *Renderer) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFormatter sets how answer values are substituted.
func WithFormatter(f assembly.Formatter) Option {
	return func(r *Renderer) {
		if f != nil {
			r.formatter = f
		}
	}
}

// WithMaxContentBytes sets the smoke-test size threshold.
func WithMaxContentBytes(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		counter:   &AtomicCounter{},
		logger:    logging.Nop(),
		formatter: assembly.PlainFormatter,
		maxBytes:  lint.DefaultMaxContentBytes,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.sink == nil {
		r.sink = LoggerSink{Logger: r.logger}
	}
	return r
}

// RenderSafely substitutes data into tpl. It never returns an error and
// never panics: every failure is answered with the fallback document.
func (r *Renderer) RenderSafely(ctx context.Context, tpl catalog.Template, data map[string]any) Result {
	if r.production && !verification.Eligible(tpl) {
		// a template whose state claims eligibility but whose body no
		// longer matches the verified hash has drifted
		if catalog.IsProductionEligible(tpl) {
			r.flag(ctx, tpl.ID, "content hash does not match verified version")
		}
		return r.fallback(ctx, tpl, Event{Name: EventBlockedUnverified})
	}

	smoke := lint.SmokeTest(tpl.Content, tpl.DeclaredNames(), lint.WithMaxContentBytes(r.maxBytes))
	if !smoke.Success {
		r.flag(ctx, tpl.ID, "smoke test failed: "+smoke.Error)
		return r.fallback(ctx, tpl, Event{Name: EventSmokeTestFailed, Error: smoke.Error})
	}

	output, stack, err := r.produce(tpl, data)
	if err != nil {
		r.flag(ctx, tpl.ID, "render failed: "+err.Error())
		return r.fallback(ctx, tpl, Event{Name: EventException, Error: err.Error(), Stack: stack})
	}

	r.logger.Debug(ctx, "template rendered", "template_id", tpl.ID, "bytes", len(output))
	return Result{Success: true, Output: output}
}

func (r *Renderer) produce(tpl catalog.Template, data map[string]any) (output, stack string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output = ""
			err = fmt.Errorf("panic: %v", rec)
			stack = string(debug.Stack())
		}
	}()

	rendered, err := tpl.Content.Map(func(body string) (string, error) {
		return assembly.Substitute(body, data, assembly.WithFormatter(r.formatter))
	})
	if err != nil {
		return "", "", err
	}
	return rendered.Normalize(), "", nil
}

func (r *Renderer) fallback(ctx context.Context, tpl catalog.Template, event Event) Result {
	event.TemplateID = tpl.ID
	event.Production = r.production
	event.Timestamp = r.now().UTC()

	r.safely(func() { r.sink.Append(ctx, event) })
	r.safely(func() { r.counter.Increment(ctx, event.Name) })

	return Result{
		Success:      true,
		Output:       Fallback(tpl.Title, tpl.ID),
		UsedFallback: true,
		Reason:       event.Name,
	}
}

func (r *Renderer) flag(ctx context.Context, id, reason string) {
	if r.flagger == nil || id == "" {
		return
	}
	r.safely(func() {
		if err := r.flagger.FlagForReverification(ctx, id, reason); err != nil {
			r.logger.Warn(ctx, "flag for re-verification failed", "template_id", id, "error", err)
		}
	})
}

// safely shields the caller from panics in injected collaborators.
func (r *Renderer) safely(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(context.Background(), "render collaborator panicked", "panic", fmt.Sprint(rec))
		}
	}()
	fn()
}

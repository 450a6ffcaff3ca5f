package saferender

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/goliatone/go-docforge/pkg/logging"
)

// EventName identifies why a render fell back.
type EventName string

const (
	EventBlockedUnverified EventName = "blocked_unverified_template"
	EventSmokeTestFailed   EventName = "render_failed_smoke_test"
	EventException         EventName = "render_failed_exception"
)

// Event is one structured render failure.
type Event struct {
	Name       EventName `json:"event"`
	TemplateID string    `json:"templateId"`
	Error      string    `json:"error,omitempty"`
	Stack      string    `json:"stack,omitempty"`
	Production bool      `json:"production"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink receives render events.
type Sink interface {
	Append(ctx context.Context, event Event)
}

// Counter counts fallback usages by reason.
type Counter interface {
	Increment(ctx context.Context, reason EventName)
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Append(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Reset drops every recorded event.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// LoggerSink writes events as error logs.
type LoggerSink struct {
	Logger logging.Logger
}

func (s LoggerSink) Append(ctx context.Context, event Event) {
	if s.Logger == nil {
		return
	}
	args := []any{
		"event", string(event.Name),
		"template_id", event.TemplateID,
		"production", event.Production,
	}
	if event.Error != "" {
		args = append(args, "error", event.Error)
	}
	if event.Stack != "" {
		args = append(args, "stack", event.Stack)
	}
	s.Logger.Error(ctx, "render fell back", args...)
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Append(ctx, event)
		}
	}
}

// AtomicCounter is an in-process Counter.
type AtomicCounter struct {
	total atomic.Int64
}

func (c *AtomicCounter) Increment(context.Context, EventName) {
	c.total.Add(1)
}

// Value returns the number of increments.
func (c *AtomicCounter) Value() int64 {
	return c.total.Load()
}

// Reset sets the counter back to zero.
func (c *AtomicCounter) Reset() {
	c.total.Store(0)
}

// OTelCounter records fallbacks on an OpenTelemetry instrument, tagged with
// the event name.
type OTelCounter struct {
	counter metric.Int64Counter
}

// NewOTelCounter registers the fallback counter on meter.
func NewOTelCounter(meter metric.Meter) (*OTelCounter, error) {
	c, err := meter.Int64Counter(
		"docforge.render.fallbacks",
		metric.WithDescription("Number of renders answered with the fallback document"),
		metric.WithUnit("{render}"),
	)
	if err != nil {
		return nil, err
	}
	return &OTelCounter{counter: c}, nil
}

func (c *OTelCounter) Increment(ctx context.Context, reason EventName) {
	c.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

// MultiCounter increments several counters.
type MultiCounter []Counter

func (m MultiCounter) Increment(ctx context.Context, reason EventName) {
	for _, c := range m {
		if c != nil {
			c.Increment(ctx, reason)
		}
	}
}

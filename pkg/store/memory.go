package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/content"
	"github.com/goliatone/go-docforge/pkg/flow"
)

// Memory is an in-process Store. A single mutex serialises writes so a
// report and its state change are always observed together.
type Memory struct {
	mu        sync.RWMutex
	templates map[string]catalog.Template
	reports   map[string][]catalog.VerificationReport
	configs   map[string]flow.TemplateConfig
	flags     map[string][]string
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		templates: make(map[string]catalog.Template),
		reports:   make(map[string][]catalog.VerificationReport),
		configs:   make(map[string]flow.TemplateConfig),
		flags:     make(map[string][]string),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) GetTemplate(_ context.Context, id string) (catalog.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tpl, ok := m.templates[id]
	if !ok {
		return catalog.Template{}, fmt.Errorf("template %q: %w", id, ErrNotFound)
	}
	return tpl, nil
}

func (m *Memory) ListTemplates(_ context.Context, filter ListFilter) ([]catalog.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]catalog.Template, 0, len(m.templates))
	for id, tpl := range m.templates {
		if filter.PublishedOnly && !tpl.Published {
			continue
		}
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, id) {
			continue
		}
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveTemplate(_ context.Context, tpl catalog.Template) error {
	if tpl.ID == "" {
		return fmt.Errorf("store: template id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tpl.ID] = tpl
	return nil
}

func (m *Memory) UpdateContent(_ context.Context, id string, body content.Content, now time.Time) (catalog.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return catalog.Template{}, fmt.Errorf("template %q: %w", id, ErrNotFound)
	}
	tpl = tpl.WithContent(body, now)
	m.templates[id] = tpl
	return tpl, nil
}

func (m *Memory) CommitVerification(_ context.Context, report catalog.VerificationReport, state VerificationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[report.TemplateID]
	if !ok {
		return fmt.Errorf("template %q: %w", report.TemplateID, ErrNotFound)
	}
	if !state.ExpectedUpdatedAt.IsZero() && !tpl.UpdatedAt.Equal(state.ExpectedUpdatedAt) {
		return fmt.Errorf("template %q edited at %s: %w", report.TemplateID, tpl.UpdatedAt.Format(time.RFC3339Nano), ErrConflict)
	}
	m.reports[report.TemplateID] = append(m.reports[report.TemplateID], report)
	m.templates[report.TemplateID] = state.Apply(tpl)
	return nil
}

func (m *Memory) UpdateVariableCache(_ context.Context, id string, vars []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return fmt.Errorf("template %q: %w", id, ErrNotFound)
	}
	at = catalog.Truncate(at)
	tpl.VariablesCache = append([]string(nil), vars...)
	tpl.VariablesCachedAt = &at
	m.templates[id] = tpl
	return nil
}

func (m *Memory) FlagForReverification(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return fmt.Errorf("template %q: %w", id, ErrNotFound)
	}
	tpl.VerificationRequired = true
	m.templates[id] = tpl
	m.flags[id] = append(m.flags[id], reason)
	return nil
}

// FlagReasons returns the reasons recorded for id, oldest first.
func (m *Memory) FlagReasons(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.flags[id])
}

func (m *Memory) ListReports(_ context.Context, templateID string) ([]catalog.VerificationReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reports := m.reports[templateID]
	out := make([]catalog.VerificationReport, len(reports))
	for i, r := range reports {
		out[len(reports)-1-i] = r
	}
	return out, nil
}

func (m *Memory) GetConfig(_ context.Context, templateID string) (flow.TemplateConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[templateID]
	if !ok {
		return flow.TemplateConfig{}, fmt.Errorf("config %q: %w", templateID, ErrNotFound)
	}
	return cfg, nil
}

func (m *Memory) SaveConfig(_ context.Context, cfg flow.TemplateConfig) error {
	if cfg.TemplateID == "" {
		return fmt.Errorf("store: config template id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.TemplateID] = cfg
	return nil
}

package flow

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/goliatone/go-docforge/pkg/assembly"
	"github.com/goliatone/go-docforge/pkg/rules"
)

// StepValidation is the result of validating one step.
type StepValidation struct {
	Valid  bool                `json:"valid"`
	Errors map[string][]string `json:"errors"`
}

// Session holds the answers collected for one guided flow. Visibility,
// requirement and progress are recomputed from the current answers on every
// call. A Session is safe for concurrent use.
type Session struct {
	cfg TemplateConfig

	mu   sync.RWMutex
	data map[string]any
}

// NewSession starts a session over cfg. Field defaults seed the form data
// and initial overrides them.
func NewSession(cfg TemplateConfig, initial map[string]any) *Session {
	data := make(map[string]any)
	for _, step := range cfg.Steps {
		for _, field := range step.Fields {
			if field.Default != nil {
				data[field.Key] = field.Default
			}
		}
	}
	maps.Copy(data, initial)
	return &Session{cfg: cfg, data: data}
}

// Config returns the flow definition.
func (s *Session) Config() TemplateConfig {
	return s.cfg
}

// Set records a single answer. A nil value clears it.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.data, key)
		return
	}
	s.data[key] = value
}

// Merge records several answers at once.
func (s *Session) Merge(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		if v == nil {
			delete(s.data, k)
			continue
		}
		s.data[k] = v
	}
}

// Data returns a copy of the form data.
func (s *Session) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// IsFieldVisible reports whether field's visibleIf set holds.
func (s *Session) IsFieldVisible(field Field) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rules.EvaluateAll(field.VisibleIf, s.data)
}

// IsFieldRequired reports whether field is required given the current
// answers. Requirement and visibility are independent.
func (s *Session) IsFieldRequired(field Field) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isRequired(field, s.data)
}

func isRequired(field Field, data map[string]any) bool {
	if field.Required {
		return true
	}
	return len(field.RequiredIf) > 0 && rules.EvaluateAll(field.RequiredIf, data)
}

// VisibleSteps returns the visible steps in declared order.
func (s *Session) VisibleSteps() []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return visibleSteps(s.cfg.Steps, s.data)
}

// VisibleFields returns step's visible fields in declared order.
func (s *Session) VisibleFields(step Step) []Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return visibleFields(step, s.data)
}

func visibleSteps(steps []Step, data map[string]any) []Step {
	out := make([]Step, 0, len(steps))
	for _, step := range steps {
		if rules.EvaluateAll(step.VisibleIf, data) {
			out = append(out, step)
		}
	}
	return out
}

func visibleFields(step Step, data map[string]any) []Field {
	out := make([]Field, 0, len(step.Fields))
	for _, field := range step.Fields {
		if rules.EvaluateAll(field.VisibleIf, data) {
			out = append(out, field)
		}
	}
	return out
}

// ValidateStep checks the visible fields of step. Hidden fields are never
// required nor validated.
func (s *Session) ValidateStep(step Step) StepValidation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := StepValidation{Valid: true, Errors: map[string][]string{}}
	for _, field := range visibleFields(step, s.data) {
		value, _ := rules.Lookup(s.data, field.Key)
		if !rules.IsPresent(value) {
			if isRequired(field, s.data) {
				result.Errors[field.Key] = append(result.Errors[field.Key], fmt.Sprintf("%s is required", labelOf(field)))
			}
			continue
		}
		if errs := checkField(field, value); len(errs) > 0 {
			result.Errors[field.Key] = append(result.Errors[field.Key], errs...)
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// Progress is the share of visible fields that hold an answer, 0..100.
// With nothing visible the flow reports 0.
func (s *Session) Progress() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, answered int
	for _, step := range visibleSteps(s.cfg.Steps, s.data) {
		for _, field := range visibleFields(step, s.data) {
			total++
			if value, ok := rules.Lookup(s.data, field.Key); ok && rules.IsPresent(value) {
				answered++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(answered) * 100 / float64(total)))
}

// GenerateDocument selects a variant for the current answers and assembles
// it. HTML flows sanitise every answer before substitution.
func (s *Session) GenerateDocument(options ...assembly.Option) (assembly.Document, error) {
	data := s.Data()

	variant, ok := assembly.SelectVariant(s.cfg.Variants, s.cfg.DefaultVariantID, data)
	if !ok {
		return assembly.Document{}, assembly.ErrNoVariants
	}

	opts := options
	if s.cfg.Format == "html" {
		opts = append([]assembly.Option{assembly.WithFormatter(assembly.HTMLFormatter)}, options...)
	}
	sections := assembly.IncludedSections(variant, data)
	return assembly.Assemble(variant, sections, data, opts...)
}

// FeatureEnabled reports whether tier unlocks feature. Premium includes
// every free feature.
func (s *Session) FeatureEnabled(feature string, tier Tier) bool {
	if slices.Contains(s.cfg.Tiers.Free, feature) {
		return true
	}
	return tier == TierPremium && slices.Contains(s.cfg.Tiers.Premium, feature)
}

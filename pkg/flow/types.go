package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-docforge/pkg/assembly"
	"github.com/goliatone/go-docforge/pkg/rules"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("flow: invalid config")

// FieldType enumerates the supported inputs.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
	FieldDate     FieldType = "date"
	FieldEmail    FieldType = "email"
	FieldFile     FieldType = "file"
)

func (t FieldType) valid() bool {
	switch t {
	case FieldText, FieldTextarea, FieldSelect, FieldRadio, FieldCheckbox, FieldDate, FieldEmail, FieldFile:
		return true
	default:
		return false
	}
}

// Option is a selectable choice for select, radio and checkbox fields.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Validator is a declarative constraint. Rule is one of minLength, maxLength,
// pattern, min, max or email.
type Validator struct {
	Rule    string `json:"rule" yaml:"rule"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Field binds one input to a key of the form data.
type Field struct {
	ID          string      `json:"id" yaml:"id"`
	Key         string      `json:"key" yaml:"key"`
	Label       string      `json:"label" yaml:"label"`
	Type        FieldType   `json:"type" yaml:"type"`
	HelpText    string      `json:"helpText,omitempty" yaml:"helpText,omitempty"`
	Required    bool        `json:"required,omitempty" yaml:"required,omitempty"`
	VisibleIf   rules.Set   `json:"visibleIf,omitempty" yaml:"visibleIf,omitempty"`
	RequiredIf  rules.Set   `json:"requiredIf,omitempty" yaml:"requiredIf,omitempty"`
	Validators  []Validator `json:"validators,omitempty" yaml:"validators,omitempty"`
	Options     []Option    `json:"options,omitempty" yaml:"options,omitempty"`
	Default     any         `json:"default,omitempty" yaml:"default,omitempty"`
	Placeholder string      `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// Step groups fields shown together.
type Step struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	VisibleIf   rules.Set `json:"visibleIf,omitempty" yaml:"visibleIf,omitempty"`
	Fields      []Field   `json:"fields" yaml:"fields"`
}

// Tier names a pricing tier.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Tiers maps tiers to the features they unlock. Premium includes free.
type Tiers struct {
	Free    []string `json:"freeTierFeatures,omitempty" yaml:"freeTierFeatures,omitempty"`
	Premium []string `json:"premiumTierFeatures,omitempty" yaml:"premiumTierFeatures,omitempty"`
}

// TemplateConfig is the guided-flow definition for one template.
type TemplateConfig struct {
	TemplateID       string             `json:"templateId" yaml:"templateId"`
	Steps            []Step             `json:"steps" yaml:"steps"`
	Variants         []assembly.Variant `json:"variants" yaml:"variants"`
	DefaultVariantID string             `json:"defaultVariantId,omitempty" yaml:"defaultVariantId,omitempty"`
	Tiers            Tiers              `json:"tiers,omitempty" yaml:"tiers,omitempty"`
	// Format is "text" (default) or "html"; html answers are sanitised.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Validate checks structural consistency of the config.
func (c TemplateConfig) Validate() error {
	if strings.TrimSpace(c.TemplateID) == "" {
		return fmt.Errorf("%w: template id is required", ErrInvalidConfig)
	}

	stepIDs := make(map[string]struct{}, len(c.Steps))
	for i, step := range c.Steps {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("%w: step %d has no id", ErrInvalidConfig, i)
		}
		if _, dup := stepIDs[step.ID]; dup {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidConfig, step.ID)
		}
		stepIDs[step.ID] = struct{}{}
		if err := validateRules(step.VisibleIf, "step "+step.ID); err != nil {
			return err
		}
		for j, field := range step.Fields {
			if strings.TrimSpace(field.Key) == "" {
				return fmt.Errorf("%w: step %q field %d has no key", ErrInvalidConfig, step.ID, j)
			}
			if !field.Type.valid() {
				return fmt.Errorf("%w: field %q has unsupported type %q", ErrInvalidConfig, field.Key, field.Type)
			}
			if err := validateRules(field.VisibleIf, "field "+field.Key); err != nil {
				return err
			}
			if err := validateRules(field.RequiredIf, "field "+field.Key); err != nil {
				return err
			}
		}
	}

	variantIDs := make(map[string]struct{}, len(c.Variants))
	for i, v := range c.Variants {
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("%w: variant %d has no id", ErrInvalidConfig, i)
		}
		if _, dup := variantIDs[v.ID]; dup {
			return fmt.Errorf("%w: duplicate variant %q", ErrInvalidConfig, v.ID)
		}
		variantIDs[v.ID] = struct{}{}
		if err := validateRules(v.Conditions, "variant "+v.ID); err != nil {
			return err
		}
		for _, s := range v.Sections {
			if err := validateRules(s.IncludeIf, "section "+s.ID); err != nil {
				return err
			}
			if err := validateRules(s.ExcludeIf, "section "+s.ID); err != nil {
				return err
			}
		}
	}
	if c.DefaultVariantID != "" {
		if _, ok := variantIDs[c.DefaultVariantID]; !ok {
			return fmt.Errorf("%w: default variant %q is not declared", ErrInvalidConfig, c.DefaultVariantID)
		}
	}
	return nil
}

func validateRules(set rules.Set, owner string) error {
	for _, r := range set {
		if strings.TrimSpace(r.Field) == "" {
			return fmt.Errorf("%w: %s has a rule without field", ErrInvalidConfig, owner)
		}
		if !r.Operator.Valid() {
			return fmt.Errorf("%w: %s uses unknown operator %q", ErrInvalidConfig, owner, r.Operator)
		}
	}
	return nil
}

// Step returns the step with id.
func (c TemplateConfig) Step(id string) (Step, bool) {
	for _, s := range c.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// FieldKeys lists every field key in declared order.
func (c TemplateConfig) FieldKeys() []string {
	var keys []string
	for _, s := range c.Steps {
		for _, f := range s.Fields {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

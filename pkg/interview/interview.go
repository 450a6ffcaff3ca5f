// Package interview walks a guided flow on the terminal. Fields are asked in
// declared order and visibility is rechecked after every answer, so a reply
// can reveal or hide the questions that follow it.
package interview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/goliatone/go-docforge/pkg/flow"
	"github.com/goliatone/go-docforge/pkg/logging"
	"github.com/goliatone/go-docforge/pkg/rules"
)

var (
	// ErrAborted signals the user interrupted the interview.
	ErrAborted = errors.New("interview: aborted")
	// ErrInvalidStep is returned when a step still fails validation after
	// the allowed number of attempts.
	ErrInvalidStep = errors.New("interview: step failed validation")
)

// Interviewer drives a flow.Session through a PromptDriver.
type Interviewer struct {
	driver   PromptDriver
	logger   logging.Logger
	attempts int
}

// Option configures an Interviewer.
type Option func(*Interviewer)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(iv *Interviewer) {
		if l != nil {
			iv.logger = l
		}
	}
}

// WithAttempts sets how often an invalid step is asked again. Defaults to 3.
func WithAttempts(n int) Option {
	return func(iv *Interviewer) {
		if n > 0 {
			iv.attempts = n
		}
	}
}

// New creates an Interviewer.
func New(driver PromptDriver, opts ...Option) *Interviewer {
	iv := &Interviewer{driver: driver, logger: logging.Nop(), attempts: 3}
	for _, opt := range opts {
		if opt != nil {
			opt(iv)
		}
	}
	return iv
}

// Run asks every visible step of session. Steps that become visible after
// an answer are picked up; steps that become hidden are skipped.
func (iv *Interviewer) Run(ctx context.Context, session *flow.Session) error {
	if iv.driver == nil {
		return errors.New("interview: prompt driver is required")
	}
	cfg := session.Config()

	for _, step := range cfg.Steps {
		if !step.VisibleIf.Matches(session.Data()) {
			continue
		}
		if err := iv.runStep(ctx, session, step); err != nil {
			return err
		}
		if err := iv.driver.Info(ctx, fmt.Sprintf("Progress: %d%%", session.Progress())); err != nil {
			return err
		}
	}
	return nil
}

func (iv *Interviewer) runStep(ctx context.Context, session *flow.Session, step flow.Step) error {
	if step.Title != "" {
		if err := iv.driver.Info(ctx, step.Title); err != nil {
			return err
		}
	}

	for attempt := 1; ; attempt++ {
		for _, field := range step.Fields {
			if !session.IsFieldVisible(field) {
				continue
			}
			if err := iv.ask(ctx, session, field); err != nil {
				return err
			}
		}

		result := session.ValidateStep(step)
		if result.Valid {
			return nil
		}
		iv.logger.Debug(ctx, "step failed validation", "step", step.ID, "attempt", attempt, "fields", len(result.Errors))
		if attempt >= iv.attempts {
			return fmt.Errorf("%w: %s", ErrInvalidStep, step.ID)
		}
		if err := iv.driver.Info(ctx, describeErrors(result)); err != nil {
			return err
		}
	}
}

func (iv *Interviewer) ask(ctx context.Context, session *flow.Session, field flow.Field) error {
	required := session.IsFieldRequired(field)
	message := field.Label
	if message == "" {
		message = field.Key
	}
	current, _ := rules.Lookup(session.Data(), field.Key)

	switch field.Type {
	case flow.FieldSelect, flow.FieldRadio:
		prompt, values := choicePrompt(field, message, required)
		prompt.DefaultIndex = slices.Index(values, textOf(current))
		idx, err := iv.driver.Select(ctx, prompt)
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(values) || values[idx] == "" {
			session.Set(field.Key, nil)
			return nil
		}
		session.Set(field.Key, values[idx])

	case flow.FieldCheckbox:
		if len(field.Options) == 0 {
			checked, _ := current.(bool)
			ok, err := iv.driver.Confirm(ctx, ConfirmConfig{Message: message, Default: checked, Help: field.HelpText})
			if err != nil {
				return err
			}
			session.Set(field.Key, ok)
			return nil
		}
		prompt, values := choicePrompt(field, message, true)
		prompt.Defaults = positions(values, stringsOf(current))
		picked, err := iv.driver.MultiSelect(ctx, prompt)
		if err != nil {
			return err
		}
		chosen := make([]string, 0, len(picked))
		for _, idx := range picked {
			if idx >= 0 && idx < len(values) {
				chosen = append(chosen, values[idx])
			}
		}
		if len(chosen) == 0 {
			session.Set(field.Key, nil)
			return nil
		}
		session.Set(field.Key, chosen)

	case flow.FieldTextarea:
		text, err := iv.driver.TextArea(ctx, TextAreaConfig{Message: message, Default: textOf(current), Help: field.HelpText})
		if err != nil {
			return err
		}
		setText(session, field.Key, text)

	default:
		text, err := iv.driver.Input(ctx, inputPrompt(field, message, required, textOf(current)))
		if err != nil {
			return err
		}
		setText(session, field.Key, text)
	}
	return nil
}

func setText(session *flow.Session, key, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		session.Set(key, nil)
		return
	}
	session.Set(key, text)
}

func textOf(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func stringsOf(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

func describeErrors(result flow.StepValidation) string {
	keys := make([]string, 0, len(result.Errors))
	for key := range result.Errors {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Please fix:")
	for _, key := range keys {
		for _, msg := range result.Errors[key] {
			b.WriteString("\n  ")
			b.WriteString(msg)
		}
	}
	return b.String()
}

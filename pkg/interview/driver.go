package interview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/go-playground/validator/v10"

	"github.com/goliatone/go-docforge/pkg/flow"
)

// InputConfig configures a single-line prompt. Validator runs on every
// answer; a non-nil error asks again.
type InputConfig struct {
	Message   string
	Default   string
	Help      string
	Validator func(string) error
}

// ConfirmConfig configures a yes/no prompt.
type ConfirmConfig struct {
	Message string
	Default bool
	Help    string
}

// SelectConfig configures a single or multi-select prompt.
type SelectConfig struct {
	Message      string
	Options      []string
	DefaultIndex int
	Defaults     []int // multi-select; indices into Options
	Help         string
	PageSize     int
}

// TextAreaConfig configures a multi-line prompt.
type TextAreaConfig struct {
	Message string
	Default string
	Help    string
}

// PromptDriver abstracts the terminal so interviews can be scripted in
// tests.
type PromptDriver interface {
	Input(ctx context.Context, cfg InputConfig) (string, error)
	Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error)
	Select(ctx context.Context, cfg SelectConfig) (int, error)
	MultiSelect(ctx context.Context, cfg SelectConfig) ([]int, error)
	TextArea(ctx context.Context, cfg TextAreaConfig) (string, error)
	Info(ctx context.Context, msg string) error
}

const (
	skipOption = "(skip)"
	dateHelp   = "Format: YYYY-MM-DD"
)

// inputPrompt builds the single-line prompt for a text, date, email or file
// field. Date and email answers are checked with the rules the session
// validates against.
func inputPrompt(field flow.Field, message string, required bool, current string) InputConfig {
	cfg := InputConfig{Message: message, Default: current, Help: field.HelpText}

	var checks []func(string) error
	if required {
		checks = append(checks, requiredCheck(message))
	}
	switch field.Type {
	case flow.FieldDate:
		checks = append(checks, dateCheck(message))
		if cfg.Help == "" {
			cfg.Help = dateHelp
		}
	case flow.FieldEmail:
		checks = append(checks, emailCheck(message))
	}
	if len(checks) > 0 {
		cfg.Validator = func(text string) error {
			for _, check := range checks {
				if err := check(text); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return cfg
}

// choicePrompt builds a select prompt for a field's options and returns the
// values behind each label. Optional single choices get a leading skip entry
// whose value is empty.
func choicePrompt(field flow.Field, message string, required bool) (SelectConfig, []string) {
	cfg := SelectConfig{Message: message, Help: field.HelpText, DefaultIndex: -1}
	var values []string
	if !required {
		cfg.Options = append(cfg.Options, skipOption)
		values = append(values, "")
	}
	for _, opt := range field.Options {
		label := opt.Label
		if label == "" {
			label = opt.Value
		}
		cfg.Options = append(cfg.Options, label)
		values = append(values, opt.Value)
	}
	return cfg, values
}

func requiredCheck(label string) func(string) error {
	return func(text string) error {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}
}

// dateCheck accepts blanks; requiredCheck owns those.
func dateCheck(label string) func(string) error {
	return func(text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		if _, err := time.Parse(flow.DateLayout, text); err != nil {
			return fmt.Errorf("%s must be a date formatted as YYYY-MM-DD", label)
		}
		return nil
	}
}

var emailValidator = sync.OnceValue(func() *validator.Validate { return validator.New() })

func emailCheck(label string) func(string) error {
	return func(text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		if err := emailValidator().Var(text, "email"); err != nil {
			return fmt.Errorf("%s must be a valid email address", label)
		}
		return nil
	}
}

type surveyDriver struct {
	out io.Writer
}

// NewSurveyDriver prompts on the process terminal. Info lines go to out,
// or stdout when out is nil.
func NewSurveyDriver(out io.Writer) PromptDriver {
	if out == nil {
		out = os.Stdout
	}
	return &surveyDriver{out: out}
}

// askOne runs a single survey prompt. Ctrl-C surfaces as ErrAborted.
func askOne(ctx context.Context, prompt survey.Prompt, answer any, opts ...survey.AskOpt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := survey.AskOne(prompt, answer, opts...)
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

func (d *surveyDriver) Input(ctx context.Context, cfg InputConfig) (string, error) {
	var answer string
	var opts []survey.AskOpt
	if check := cfg.Validator; check != nil {
		opts = append(opts, survey.WithValidator(func(ans any) error {
			text, _ := ans.(string)
			return check(text)
		}))
	}
	err := askOne(ctx, &survey.Input{Message: cfg.Message, Help: cfg.Help, Default: cfg.Default}, &answer, opts...)
	return answer, err
}

func (d *surveyDriver) Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error) {
	var answer bool
	err := askOne(ctx, &survey.Confirm{Message: cfg.Message, Help: cfg.Help, Default: cfg.Default}, &answer)
	return answer, err
}

func (d *surveyDriver) Select(ctx context.Context, cfg SelectConfig) (int, error) {
	prompt := &survey.Select{Message: cfg.Message, Options: cfg.Options, Help: cfg.Help, PageSize: cfg.PageSize}
	if cfg.DefaultIndex >= 0 && cfg.DefaultIndex < len(cfg.Options) {
		prompt.Default = cfg.Options[cfg.DefaultIndex]
	}
	var answer string
	if err := askOne(ctx, prompt, &answer); err != nil {
		return -1, err
	}
	return slices.Index(cfg.Options, answer), nil
}

func (d *surveyDriver) MultiSelect(ctx context.Context, cfg SelectConfig) ([]int, error) {
	prompt := &survey.MultiSelect{Message: cfg.Message, Options: cfg.Options, Help: cfg.Help, PageSize: cfg.PageSize}
	if defaults := pick(cfg.Options, cfg.Defaults); len(defaults) > 0 {
		prompt.Default = defaults
	}
	var answer []string
	if err := askOne(ctx, prompt, &answer); err != nil {
		return nil, err
	}
	return positions(cfg.Options, answer), nil
}

func (d *surveyDriver) TextArea(ctx context.Context, cfg TextAreaConfig) (string, error) {
	var answer string
	err := askOne(ctx, &survey.Multiline{Message: cfg.Message, Help: cfg.Help, Default: cfg.Default}, &answer)
	return answer, err
}

func (d *surveyDriver) Info(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(d.out, msg)
	return err
}

// positions maps chosen labels back to their indices in options, in option
// order.
func positions(options, chosen []string) []int {
	var out []int
	for i, option := range options {
		if slices.Contains(chosen, option) {
			out = append(out, i)
		}
	}
	return out
}

// pick returns the options at the given indices, skipping out-of-range ones.
func pick(options []string, indices []int) []string {
	var out []string
	for _, idx := range indices {
		if idx >= 0 && idx < len(options) {
			out = append(out, options[idx])
		}
	}
	return out
}

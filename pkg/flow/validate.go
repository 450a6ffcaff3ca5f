package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/goliatone/go-docforge/pkg/rules"
)

// DateLayout is the accepted format for date fields.
const DateLayout = "2006-01-02"

var (
	validateOnce sync.Once
	validate     *validator.Validate

	patternCache sync.Map
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// checkField returns the messages for every constraint value violates. The
// required check is handled by the caller since it depends on form data.
func checkField(field Field, value any) []string {
	var errs []string

	switch field.Type {
	case FieldEmail:
		if err := fieldValidator().Var(rules.Stringify(value), "email"); err != nil {
			errs = append(errs, fmt.Sprintf("%s must be a valid email address", labelOf(field)))
		}
	case FieldDate:
		if _, err := time.Parse(DateLayout, strings.TrimSpace(rules.Stringify(value))); err != nil {
			errs = append(errs, fmt.Sprintf("%s must be a date formatted as YYYY-MM-DD", labelOf(field)))
		}
	case FieldSelect, FieldRadio:
		if len(field.Options) > 0 && !hasOption(field.Options, rules.Stringify(value)) {
			errs = append(errs, fmt.Sprintf("%s must be one of the listed options", labelOf(field)))
		}
	case FieldCheckbox:
		switch v := value.(type) {
		case bool:
		case []any:
			for _, item := range v {
				if len(field.Options) > 0 && !hasOption(field.Options, rules.Stringify(item)) {
					errs = append(errs, fmt.Sprintf("%s contains an unknown option %q", labelOf(field), rules.Stringify(item)))
				}
			}
		case []string:
			for _, item := range v {
				if len(field.Options) > 0 && !hasOption(field.Options, item) {
					errs = append(errs, fmt.Sprintf("%s contains an unknown option %q", labelOf(field), item))
				}
			}
		default:
			errs = append(errs, fmt.Sprintf("%s must be checked or a list of options", labelOf(field)))
		}
	}

	for _, v := range field.Validators {
		if msg, ok := applyValidator(field, v, value); !ok {
			errs = append(errs, msg)
		}
	}
	return errs
}

func applyValidator(field Field, v Validator, value any) (string, bool) {
	text := rules.Stringify(value)
	var (
		ok  = true
		msg string
	)

	switch v.Rule {
	case "minLength":
		n, valid := intParam(v.Value)
		if valid {
			ok = fieldValidator().Var(text, "min="+strconv.Itoa(n)) == nil
			msg = fmt.Sprintf("%s must be at least %d characters", labelOf(field), n)
		}
	case "maxLength":
		n, valid := intParam(v.Value)
		if valid {
			ok = fieldValidator().Var(text, "max="+strconv.Itoa(n)) == nil
			msg = fmt.Sprintf("%s must be at most %d characters", labelOf(field), n)
		}
	case "min", "max":
		limit, valid := floatParam(v.Value)
		if !valid {
			break
		}
		num, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			ok = false
			msg = fmt.Sprintf("%s must be a number", labelOf(field))
			break
		}
		tag := "gte="
		msg = fmt.Sprintf("%s must be at least %s", labelOf(field), rules.Stringify(v.Value))
		if v.Rule == "max" {
			tag = "lte="
			msg = fmt.Sprintf("%s must be at most %s", labelOf(field), rules.Stringify(v.Value))
		}
		ok = fieldValidator().Var(num, tag+strconv.FormatFloat(limit, 'f', -1, 64)) == nil
	case "pattern":
		re, err := compilePattern(rules.Stringify(v.Value))
		if err != nil {
			// Broken patterns are a config problem, not a user error.
			break
		}
		ok = re.MatchString(text)
		msg = fmt.Sprintf("%s has an invalid format", labelOf(field))
	case "email":
		ok = fieldValidator().Var(text, "email") == nil
		msg = fmt.Sprintf("%s must be a valid email address", labelOf(field))
	}

	if !ok && v.Message != "" {
		msg = v.Message
	}
	return msg, ok
}

func compilePattern(expr string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternCache.Store(expr, re)
	return re, nil
}

func intParam(value any) (int, bool) {
	f, ok := floatParam(value)
	if !ok || f < 0 {
		return 0, false
	}
	return int(f), true
}

func floatParam(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func hasOption(options []Option, value string) bool {
	for _, opt := range options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

func labelOf(field Field) string {
	if strings.TrimSpace(field.Label) != "" {
		return field.Label
	}
	return field.Key
}

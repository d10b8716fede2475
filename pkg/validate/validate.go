// Package validate implements per-kind validation of field definitions and
// submitted values. Dispatch over the closed kind set happens through a
// static table built at init time; validation never mutates the field or the
// candidate value.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-formflow/pkg/form"
)

// Error reports a value or definition that failed a field-kind rule. It is
// always attributable to a single field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validate: field %q: %s", e.Field, e.Message)
}

// UnsupportedKindError reports a field declaring a kind outside the closed
// set.
type UnsupportedKindError struct {
	Field string
	Kind  string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("validate: field %q: unsupported field type %q", e.Field, e.Kind)
}

type checker func(f form.Field, value any) error

var checkers = map[form.Kind]checker{
	form.KindText:       checkText,
	form.KindNumber:     checkNumber,
	form.KindBoolean:    checkBoolean,
	form.KindSelect:     checkSelect,
	form.KindDate:       checkDate,
	form.KindCalculated: checkCalculated,
}

// Value checks a candidate value (possibly nil for "absent") against the
// field's kind and layered rules.
func Value(f form.Field, value any) error {
	fn, ok := checkers[f.Kind]
	if !ok {
		return &UnsupportedKindError{Field: f.ID, Kind: string(f.Kind)}
	}
	return fn(f, value)
}

// Definition checks the field definition itself, independent of any
// submitted value: identifier shape, kind membership, and kind-specific
// structural requirements such as a calculated field declaring both formula
// and dependencies.
func Definition(f form.Field) error {
	if !form.ValidIdentifier(f.ID) {
		return &Error{Field: f.ID, Message: "invalid field identifier"}
	}
	if !f.Kind.Supported() {
		return &UnsupportedKindError{Field: f.ID, Kind: string(f.Kind)}
	}
	switch f.Kind {
	case form.KindCalculated:
		return calculatedShape(f)
	case form.KindSelect:
		if len(f.Options) == 0 {
			return &Error{Field: f.ID, Message: "select field requires options"}
		}
	case form.KindDate:
		for _, bound := range []string{f.MinDate, f.MaxDate} {
			if bound == "" {
				continue
			}
			if _, err := parseDate(bound); err != nil {
				return &Error{Field: f.ID, Message: fmt.Sprintf("invalid date bound %q", bound)}
			}
		}
	}
	for _, rule := range f.Rules {
		if err := ruleShape(f, rule); err != nil {
			return err
		}
	}
	return nil
}

func ruleShape(f form.Field, rule form.Rule) error {
	switch rule.Kind {
	case form.RuleMin, form.RuleMax, form.RuleMinLength:
		if _, err := strconv.ParseFloat(rule.Value, 64); err != nil {
			return &Error{Field: f.ID, Message: fmt.Sprintf("rule %s requires a numeric value", rule.Kind)}
		}
	case form.RulePattern:
		if _, err := regexp.Compile(rule.Value); err != nil {
			return &Error{Field: f.ID, Message: fmt.Sprintf("rule pattern is not a valid expression: %v", err)}
		}
	}
	return nil
}

func calculatedShape(f form.Field) error {
	if strings.TrimSpace(f.Formula) == "" || len(f.Dependencies) == 0 {
		return &Error{Field: f.ID, Message: "calculated field requires formula and dependencies"}
	}
	return nil
}

func checkText(f form.Field, value any) error {
	if absent(value) {
		if f.Required {
			return &Error{Field: f.ID, Message: "Required field"}
		}
		return nil
	}
	text, ok := value.(string)
	if !ok {
		return &Error{Field: f.ID, Message: "value must be a string"}
	}
	if f.Required && strings.TrimSpace(text) == "" {
		return &Error{Field: f.ID, Message: "Required field"}
	}
	for _, rule := range f.Rules {
		switch rule.Kind {
		case form.RuleMinLength:
			min, err := strconv.Atoi(rule.Value)
			if err != nil {
				return &Error{Field: f.ID, Message: "rule minLength requires a numeric value"}
			}
			if len(text) < min {
				return &Error{Field: f.ID, Message: ruleMessage(rule, fmt.Sprintf("value must have at least %d characters", min))}
			}
		case form.RulePattern:
			re, err := regexp.Compile(rule.Value)
			if err != nil {
				return &Error{Field: f.ID, Message: "rule pattern is not a valid expression"}
			}
			if !re.MatchString(text) {
				return &Error{Field: f.ID, Message: ruleMessage(rule, "value does not match the expected pattern")}
			}
		}
	}
	return nil
}

func checkNumber(f form.Field, value any) error {
	if absent(value) {
		if f.Required {
			return &Error{Field: f.ID, Message: "Required field"}
		}
		return nil
	}
	num, ok := toFloat(value)
	if !ok {
		return &Error{Field: f.ID, Message: "value must be a number"}
	}
	if f.NumericFormat == form.NumericInteger && num != float64(int64(num)) {
		return &Error{Field: f.ID, Message: "value must be an integer"}
	}
	for _, rule := range f.Rules {
		switch rule.Kind {
		case form.RuleMin:
			min, err := strconv.ParseFloat(rule.Value, 64)
			if err != nil {
				return &Error{Field: f.ID, Message: "rule min requires a numeric value"}
			}
			if num < min {
				return &Error{Field: f.ID, Message: ruleMessage(rule, fmt.Sprintf("value must be at least %v", min))}
			}
		case form.RuleMax:
			max, err := strconv.ParseFloat(rule.Value, 64)
			if err != nil {
				return &Error{Field: f.ID, Message: "rule max requires a numeric value"}
			}
			if num > max {
				return &Error{Field: f.ID, Message: ruleMessage(rule, fmt.Sprintf("value must be at most %v", max))}
			}
		}
	}
	return nil
}

func checkBoolean(f form.Field, value any) error {
	if absent(value) {
		if f.Required {
			return &Error{Field: f.ID, Message: "Required field"}
		}
		return nil
	}
	if _, ok := value.(bool); !ok {
		return &Error{Field: f.ID, Message: "value must be a boolean"}
	}
	return nil
}

func checkDate(f form.Field, value any) error {
	if absent(value) {
		if f.Required {
			return &Error{Field: f.ID, Message: "Required field"}
		}
		return nil
	}
	text, ok := value.(string)
	if !ok {
		return &Error{Field: f.ID, Message: "value must be an ISO-8601 date string"}
	}
	parsed, err := parseDate(text)
	if err != nil {
		return &Error{Field: f.ID, Message: "value must be an ISO-8601 date string"}
	}
	if f.MinDate != "" {
		min, err := parseDate(f.MinDate)
		if err == nil && parsed.Before(min) {
			return &Error{Field: f.ID, Message: fmt.Sprintf("date must not be before %s", f.MinDate)}
		}
	}
	if f.MaxDate != "" {
		max, err := parseDate(f.MaxDate)
		if err == nil && parsed.After(max) {
			return &Error{Field: f.ID, Message: fmt.Sprintf("date must not be after %s", f.MaxDate)}
		}
	}
	return nil
}

func checkSelect(f form.Field, value any) error {
	allowed := make(map[string]struct{}, len(f.Options))
	for _, opt := range f.Options {
		allowed[opt.Value] = struct{}{}
	}

	if f.Multiple {
		if absent(value) {
			if f.Required {
				return &Error{Field: f.ID, Message: "Required field"}
			}
			return nil
		}
		items, err := stringSlice(value)
		if err != nil {
			return &Error{Field: f.ID, Message: "value must be a list of option values"}
		}
		if f.Required && len(items) == 0 {
			return &Error{Field: f.ID, Message: "Required field"}
		}
		for _, item := range items {
			if _, ok := allowed[item]; !ok {
				return &Error{Field: f.ID, Message: "Invalid option"}
			}
		}
		return nil
	}

	if absent(value) {
		if f.Required {
			return &Error{Field: f.ID, Message: "Required field"}
		}
		return nil
	}
	item, ok := value.(string)
	if !ok {
		return &Error{Field: f.ID, Message: "value must be a single option value"}
	}
	if _, ok := allowed[item]; !ok {
		return &Error{Field: f.ID, Message: "Invalid option"}
	}
	return nil
}

func checkCalculated(f form.Field, value any) error {
	if err := calculatedShape(f); err != nil {
		return err
	}
	if !absent(value) {
		return &Error{Field: f.ID, Message: "Calculated fields cannot accept manually supplied values"}
	}
	return nil
}

func ruleMessage(rule form.Rule, fallback string) string {
	if strings.TrimSpace(rule.Message) != "" {
		return rule.Message
	}
	return fallback
}

func absent(value any) bool { return value == nil }

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	var lastErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element is not a string")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a list")
	}
}

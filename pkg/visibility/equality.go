package visibility

import (
	"fmt"
	"strconv"
	"strings"
)

// InvalidConditionalError reports a conditional rule that does not split
// into a field reference and a literal.
type InvalidConditionalError struct {
	Field     string
	Condition string
}

func (e *InvalidConditionalError) Error() string {
	return fmt.Sprintf("visibility: field %q: invalid conditional %q", e.Field, e.Condition)
}

// Equality evaluates conditions of the form "fieldId=literal": the field is
// in scope when the referenced field's submitted value equals the literal
// under plain string comparison. Richer operators are deliberately not
// supported; an empty condition always evaluates true.
type Equality struct{}

// NewEquality returns the equality evaluator.
func NewEquality() *Equality { return &Equality{} }

var _ Evaluator = (*Equality)(nil)

// Eval parses and evaluates the condition against ctx.
func (e *Equality) Eval(fieldID, condition string, ctx Context) (bool, error) {
	trimmed := strings.TrimSpace(condition)
	if trimmed == "" {
		return true, nil
	}

	parts := strings.Split(trimmed, "=")
	if len(parts) != 2 {
		return false, &InvalidConditionalError{Field: fieldID, Condition: condition}
	}
	ref := strings.TrimSpace(parts[0])
	literal := strings.TrimSpace(parts[1])
	if ref == "" || literal == "" {
		return false, &InvalidConditionalError{Field: fieldID, Condition: condition}
	}

	value, ok := ctx.Values[ref]
	if !ok {
		return false, nil
	}
	return stringify(value) == literal, nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(value)
	}
}

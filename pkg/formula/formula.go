// Package formula computes the values of calculated fields. Expressions are
// compiled and run with expr-lang/expr; the evaluation scope is restricted
// to the field's declared dependencies so ambient submission values cannot
// leak into a formula.
package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/goliatone/go-formflow/pkg/form"
	"github.com/goliatone/go-formflow/pkg/graph"
)

// MissingDependencyError reports declared dependencies with no resolved
// value at evaluation time.
type MissingDependencyError struct {
	Field   string
	Missing []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("formula: field %q: missing dependency values: %s", e.Field, strings.Join(e.Missing, ", "))
}

// EvaluationError wraps any expression parse or runtime failure. The
// underlying engine error is kept for inspection but the message only names
// the field and formula.
type EvaluationError struct {
	Field   string
	Formula string
	cause   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("formula: field %q: cannot evaluate %q", e.Field, e.Formula)
}

func (e *EvaluationError) Unwrap() error { return e.cause }

// Evaluator computes calculated field values. The zero value is ready to
// use.
type Evaluator struct{}

// New returns an Evaluator.
func New() *Evaluator { return &Evaluator{} }

// Evaluate runs the field's formula against the supplied values. Every
// declared dependency must be present in values; the scope passed to the
// expression holds exactly those dependencies. Numeric results are rounded
// to the field's precision when one is set.
func (e *Evaluator) Evaluate(f form.Field, values map[string]any) (any, error) {
	var missing []string
	scope := make(map[string]any, len(f.Dependencies))
	for _, dep := range f.Dependencies {
		value, ok := values[dep]
		if !ok {
			missing = append(missing, dep)
			continue
		}
		scope[dep] = value
	}
	if len(missing) > 0 {
		return nil, &MissingDependencyError{Field: f.ID, Missing: missing}
	}

	program, err := expr.Compile(f.Formula)
	if err != nil {
		return nil, &EvaluationError{Field: f.ID, Formula: f.Formula, cause: err}
	}
	result, err := vm.Run(program, scope)
	if err != nil {
		return nil, &EvaluationError{Field: f.ID, Formula: f.Formula, cause: err}
	}

	if f.Precision != nil {
		if num, ok := toFloat(result); ok {
			return round(num, *f.Precision), nil
		}
	}
	return result, nil
}

// Order returns the calculated fields among fields sorted so that every
// calculated field appears after the calculated fields it depends on.
// Fields without inter-dependencies keep their declared order.
func Order(fields []form.Field) ([]form.Field, error) {
	byID := make(map[string]form.Field)
	g := graph.New()
	for _, f := range fields {
		if !f.Calculated() {
			continue
		}
		g.AddNode(f.ID)
		byID[f.ID] = f
	}
	for _, f := range fields {
		if !f.Calculated() {
			continue
		}
		for _, dep := range f.Dependencies {
			if !g.Has(dep) {
				continue
			}
			if err := g.AddEdge(f.ID, dep); err != nil {
				return nil, err
			}
		}
	}

	ids, err := g.TopoSort()
	if err != nil {
		return nil, fmt.Errorf("formula: order calculated fields: %w", err)
	}
	ordered := make([]form.Field, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}

// round applies half-away-from-zero rounding to the given number of decimal
// digits.
func round(value float64, digits int) float64 {
	if digits < 0 {
		digits = 0
	}
	shift := math.Pow(10, float64(digits))
	return math.Round(value*shift) / shift
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

// Package visibility decides whether a conditional field is in scope for a
// given submission.
package visibility

// Evaluator determines whether a field should be considered in scope based
// on its conditional rule and the values submitted so far.
type Evaluator interface {
	Eval(fieldID, condition string, ctx Context) (bool, error)
}

// Context provides the submitted values an Evaluator reads from.
type Context struct {
	Values map[string]any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(fieldID, condition string, ctx Context) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(fieldID, condition string, ctx Context) (bool, error) {
	return fn(fieldID, condition, ctx)
}

// Package expr provides a visibility evaluator backed by the expr
// expression language. It accepts full boolean expressions over submitted
// values (`sexo == "feminino" && idade >= 18`) where the default equality
// evaluator only understands `field=value` pairs. Opt in through the
// engine's visibility option.
package expr

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"

	"github.com/goliatone/go-formflow/pkg/visibility"
)

// Evaluator compiles and runs conditional expressions. The zero value is
// ready to use.
type Evaluator struct{}

var _ visibility.Evaluator = (*Evaluator)(nil)

// New returns an expression-based visibility evaluator.
func New() *Evaluator { return &Evaluator{} }

// Eval compiles the condition and runs it against the submitted values. An
// empty condition keeps the field in scope. Referencing a value that was
// not submitted is an evaluation failure, not an out-of-scope verdict;
// authors should guard optional references explicitly.
func (e *Evaluator) Eval(fieldID, condition string, ctx visibility.Context) (bool, error) {
	if condition == "" {
		return true, nil
	}

	env := map[string]any{}
	for id, value := range ctx.Values {
		env[id] = value
	}

	program, err := exprlang.Compile(condition, exprlang.Env(env), exprlang.AsBool())
	if err != nil {
		return false, fmt.Errorf("visibility: field %q: compile condition %q: %w", fieldID, condition, err)
	}
	result, err := exprlang.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("visibility: field %q: evaluate condition %q: %w", fieldID, condition, err)
	}
	verdict, _ := result.(bool)
	return verdict, nil
}

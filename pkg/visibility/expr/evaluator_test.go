package expr

import (
	"testing"

	"github.com/goliatone/go-formflow/pkg/visibility"
)

func TestEvalBooleanExpressions(t *testing.T) {
	t.Parallel()

	eval := New()
	ctx := visibility.Context{Values: map[string]any{
		"sexo":  "feminino",
		"idade": 32.0,
		"ativo": true,
	}}

	cases := []struct {
		condition string
		want      bool
	}{
		{`sexo == "feminino"`, true},
		{`sexo == "masculino"`, false},
		{`sexo == "feminino" && idade >= 18`, true},
		{`sexo == "masculino" || ativo`, true},
		{`!ativo`, false},
		{`idade > 40`, false},
	}
	for _, tc := range cases {
		got, err := eval.Eval("field", tc.condition, ctx)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tc.condition, err)
		}
		if got != tc.want {
			t.Fatalf("Eval(%q): expected %v, got %v", tc.condition, tc.want, got)
		}
	}
}

func TestEvalEmptyConditionAlwaysInScope(t *testing.T) {
	t.Parallel()

	got, err := New().Eval("field", "", visibility.Context{})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !got {
		t.Fatal("expected unconditional field to be in scope")
	}
}

func TestEvalFailuresNameFieldAndCondition(t *testing.T) {
	t.Parallel()

	eval := New()
	ctx := visibility.Context{Values: map[string]any{"sexo": "feminino"}}

	for _, condition := range []string{`sexo == `, `missing == "x"`} {
		_, err := eval.Eval("gravidez", condition, ctx)
		if err == nil {
			t.Fatalf("Eval(%q): expected error", condition)
		}
	}
}

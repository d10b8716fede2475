// Package testsupport provides shared fixtures for engine and repository
// tests: canonical form definitions, deterministic id/clock collaborators,
// and an audit sink that records events for assertion.
package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-formflow/pkg/audit"
	"github.com/goliatone/go-formflow/pkg/form"
)

// BMIForm declares weight and height inputs plus a calculated body-mass
// index rounded to two decimals.
func BMIForm() form.Form {
	precision := 2
	return form.Form{
		Name: "Health intake",
		Fields: []form.Field{
			{ID: "peso", Label: "Weight (kg)", Kind: form.KindNumber, Required: true},
			{ID: "altura", Label: "Height (cm)", Kind: form.KindNumber, Required: true},
			{
				ID:           "imc",
				Label:        "Body mass index",
				Kind:         form.KindCalculated,
				Formula:      "peso / (altura/100)^2",
				Dependencies: []string{"peso", "altura"},
				Precision:    &precision,
			},
		},
	}
}

// PregnancyForm declares a select and a boolean field gated on the select's
// answer.
func PregnancyForm() form.Form {
	return form.Form{
		Name: "Screening",
		Fields: []form.Field{
			{
				ID:    "sexo",
				Label: "Sex",
				Kind:  form.KindSelect,
				Options: []form.Option{
					{Label: "Feminino", Value: "feminino"},
					{Label: "Masculino", Value: "masculino"},
				},
				Required: true,
			},
			{
				ID:          "gravidez",
				Label:       "Currently pregnant",
				Kind:        form.KindBoolean,
				Required:    true,
				Conditional: "sexo=feminino",
			},
		},
	}
}

// CycleForm declares three calculated fields whose dependencies form a
// cycle.
func CycleForm() form.Form {
	return form.Form{
		Name: "Broken",
		Fields: []form.Field{
			{ID: "a", Label: "A", Kind: form.KindCalculated, Formula: "b + 1", Dependencies: []string{"b"}},
			{ID: "b", Label: "B", Kind: form.KindCalculated, Formula: "c + 1", Dependencies: []string{"c"}},
			{ID: "c", Label: "C", Kind: form.KindCalculated, Formula: "a + 1", Dependencies: []string{"a"}},
		},
	}
}

// SequentialIDs returns an id generator yielding prefix-1, prefix-2, ...
func SequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// FixedClock returns a clock pinned to the given instant.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// AuditRecorder captures emitted events for assertions.
type AuditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

// Record appends the event.
func (r *AuditRecorder) Record(_ context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything recorded so far.
func (r *AuditRecorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

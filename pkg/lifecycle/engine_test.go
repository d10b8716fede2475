package lifecycle_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/audit"
	"github.com/goliatone/go-formflow/pkg/form"
	"github.com/goliatone/go-formflow/pkg/lifecycle"
	"github.com/goliatone/go-formflow/pkg/storage/memory"
	"github.com/goliatone/go-formflow/pkg/testsupport"
	"github.com/goliatone/go-formflow/pkg/validate"
)

var testInstant = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newEngine(t *testing.T) (*lifecycle.Engine, *memory.Repository, *testsupport.AuditRecorder) {
	t.Helper()
	repo := memory.New()
	recorder := &testsupport.AuditRecorder{}
	engine := lifecycle.New(
		lifecycle.WithRepository(repo),
		lifecycle.WithIDGenerator(testsupport.SequentialIDs("id")),
		lifecycle.WithClock(testsupport.FixedClock(testInstant)),
		lifecycle.WithAuditSink(recorder),
	)
	return engine, repo, recorder
}

func TestCreateInitialisesLifecycleState(t *testing.T) {
	t.Parallel()

	engine, _, recorder := newEngine(t)
	ctx := context.Background()

	created, err := engine.Create(ctx, testsupport.BMIForm(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", created.SchemaVersion)
	}
	if !created.Active {
		t.Fatal("expected created form to be active")
	}
	if created.Protected {
		t.Fatal("expected protection to default to false")
	}
	if !created.CreatedAt.Equal(testInstant) {
		t.Fatalf("expected creation timestamp %v, got %v", testInstant, created.CreatedAt)
	}

	events := recorder.Events()
	if len(events) != 1 || events[0].Action != audit.ActionFormCreated {
		t.Fatalf("expected one form_created event, got %+v", events)
	}
	if events[0].EntityID != created.ID || events[0].Actor != "alice" {
		t.Fatalf("unexpected event payload %+v", events[0])
	}
}

func TestCreateRejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	engine, repo, _ := newEngine(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		fields []form.Field
	}{
		{"no fields", nil},
		{"duplicate ids", []form.Field{
			{ID: "a", Kind: form.KindText},
			{ID: "a", Kind: form.KindText},
		}},
		{"bad identifier", []form.Field{{ID: "Nome Completo", Kind: form.KindText}}},
		{"calculated without formula", []form.Field{{ID: "x", Kind: form.KindCalculated, Dependencies: []string{"x"}}}},
		{"unknown dependency", []form.Field{
			{ID: "a", Kind: form.KindNumber},
			{ID: "b", Kind: form.KindCalculated, Formula: "a + ghost", Dependencies: []string{"a", "ghost"}},
		}},
	}

	for _, tc := range cases {
		if _, err := engine.Create(ctx, form.Form{Name: tc.name, Fields: tc.fields}, "alice"); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	// Nothing may be persisted when validation fails.
	forms, err := repo.ListForms(ctx, lifecycle.Page{IncludeInactive: true})
	if err != nil {
		t.Fatalf("ListForms: %v", err)
	}
	if len(forms) != 0 {
		t.Fatalf("expected no persisted forms, got %d", len(forms))
	}
}

func TestCreateTooManyFields(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	fields := make([]form.Field, form.MaxFields+1)
	for i := range fields {
		fields[i] = form.Field{ID: "field-" + itoa(i), Kind: form.KindText}
	}
	if _, err := engine.Create(context.Background(), form.Form{Name: "big", Fields: fields}, "alice"); err == nil {
		t.Fatal("expected error for oversized field list")
	}
}

func TestCreateDetectsDependencyCycle(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)

	_, err := engine.Create(context.Background(), testsupport.CycleForm(), "alice")
	var circular *lifecycle.CircularDependencyError
	if !errors.As(err, &circular) {
		t.Fatalf("expected CircularDependencyError, got %v", err)
	}
	switch circular.Field {
	case "a", "b", "c":
	default:
		t.Fatalf("expected the error to reference a cycle participant, got %q", circular.Field)
	}
	if circular.Cycle[0] != circular.Cycle[len(circular.Cycle)-1] {
		t.Fatalf("cycle %v does not close on its start", circular.Cycle)
	}
}

func TestSubmitComputesCalculatedFields(t *testing.T) {
	t.Parallel()

	engine, _, recorder := newEngine(t)
	ctx := context.Background()

	created, err := engine.Create(ctx, testsupport.BMIForm(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	response, err := engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{
		Values: map[string]any{"peso": 70.0, "altura": 170.0},
	}, "bob")
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}

	if response.Computed["imc"] != 24.22 {
		t.Fatalf("expected computed imc 24.22, got %v", response.Computed["imc"])
	}
	if response.SchemaVersion != 1 {
		t.Fatalf("expected response schema version 1, got %d", response.SchemaVersion)
	}
	if !response.Active {
		t.Fatal("expected response to be active")
	}

	events := recorder.Events()
	last := events[len(events)-1]
	if last.Action != audit.ActionResponseSubmitted || last.Actor != "bob" {
		t.Fatalf("unexpected audit event %+v", last)
	}
}

func TestSubmitCalculatedChain(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	// "final" depends on another calculated field declared after it.
	definition := form.Form{
		Name: "chained",
		Fields: []form.Field{
			{ID: "base", Kind: form.KindNumber, Required: true},
			{ID: "final", Kind: form.KindCalculated, Formula: "mid * 2", Dependencies: []string{"mid"}},
			{ID: "mid", Kind: form.KindCalculated, Formula: "base + 1", Dependencies: []string{"base"}},
		},
	}
	created, err := engine.Create(ctx, definition, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	response, err := engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{
		Values: map[string]any{"base": 10.0},
	}, "bob")
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	want := map[string]any{"mid": 11.0, "final": 22.0}
	if diff := cmp.Diff(want, response.Computed); diff != "" {
		t.Fatalf("computed values mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitConditionalGating(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	created, err := engine.Create(ctx, testsupport.PregnancyForm(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Out of scope: gravidez is required but must not be demanded.
	if _, err := engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{
		Values: map[string]any{"sexo": "masculino"},
	}, "bob"); err != nil {
		t.Fatalf("expected submission without gated field to succeed, got %v", err)
	}

	// In scope: now the required flag applies.
	_, err = engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{
		Values: map[string]any{"sexo": "feminino"},
	}, "bob")
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Field != "gravidez" {
		t.Fatalf("expected failure on gravidez, got %q", verr.Field)
	}

	if _, err := engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{
		Values: map[string]any{"sexo": "feminino", "gravidez": true},
	}, "bob"); err != nil {
		t.Fatalf("expected complete submission to succeed, got %v", err)
	}
}

func TestSubmitRejectsManualCalculatedValue(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	created, err := engine.Create(ctx, testsupport.BMIForm(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{
		Values: map[string]any{"peso": 70.0, "altura": 170.0, "imc": 11.0},
	}, "bob")
	if err == nil || !strings.Contains(err.Error(), "Calculated fields cannot accept manually supplied values") {
		t.Fatalf("expected manual calculated value rejection, got %v", err)
	}
}

func TestSubmitSchemaVersionMismatch(t *testing.T) {
	t.Parallel()

	engine, repo, _ := newEngine(t)
	ctx := context.Background()

	created, err := engine.Create(ctx, testsupport.BMIForm(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{
		Values:        map[string]any{"peso": 70.0, "altura": 170.0},
		SchemaVersion: 2,
	}, "bob")
	var mismatch *lifecycle.SchemaVersionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaVersionMismatchError, got %v", err)
	}
	if mismatch.Supplied != 2 || mismatch.Current != 1 {
		t.Fatalf("unexpected mismatch payload %+v", mismatch)
	}

	responses, err := repo.ListResponses(ctx, created.ID, lifecycle.Page{IncludeInactive: true})
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(responses) != 0 {
		t.Fatal("expected no response to be persisted after a mismatch")
	}
}

func TestSubmitTwiceCreatesDistinctResponses(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	created, err := engine.Create(ctx, testsupport.BMIForm(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	values := map[string]any{"peso": 70.0, "altura": 170.0}
	first, err := engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{Values: values}, "bob")
	if err != nil {
		t.Fatalf("first SubmitResponse: %v", err)
	}
	second, err := engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{Values: values}, "bob")
	if err != nil {
		t.Fatalf("second SubmitResponse: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct response ids, both were %q", first.ID)
	}
}

func TestUpdateSchemaVersioning(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	definition := testsupport.BMIForm()
	definition.Protected = true
	created, err := engine.Create(ctx, definition, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Explicit version equal to the stored one conflicts.
	_, err = engine.UpdateSchema(ctx, created.ID, lifecycle.SchemaUpdate{
		SchemaVersion: created.SchemaVersion,
		Fields:        created.Fields,
	}, "alice")
	var conflict *lifecycle.SchemaVersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SchemaVersionConflictError, got %v", err)
	}

	// One greater succeeds.
	updated, err := engine.UpdateSchema(ctx, created.ID, lifecycle.SchemaUpdate{
		SchemaVersion: created.SchemaVersion + 1,
		Fields:        created.Fields,
	}, "alice")
	if err != nil {
		t.Fatalf("UpdateSchema: %v", err)
	}
	if updated.SchemaVersion != created.SchemaVersion+1 {
		t.Fatalf("expected schema version %d, got %d", created.SchemaVersion+1, updated.SchemaVersion)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("expected creation timestamp to be preserved")
	}
	if !updated.Protected {
		t.Fatal("expected protection flag to be preserved when not supplied")
	}
	if !updated.Active {
		t.Fatal("expected active flag to be preserved")
	}

	// Omitting the version always advances by one.
	again, err := engine.UpdateSchema(ctx, created.ID, lifecycle.SchemaUpdate{Fields: created.Fields}, "alice")
	if err != nil {
		t.Fatalf("UpdateSchema: %v", err)
	}
	if again.SchemaVersion != 3 {
		t.Fatalf("expected schema version 3, got %d", again.SchemaVersion)
	}
}

func TestUpdateSchemaValidatesIncomingFields(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	created, err := engine.Create(ctx, testsupport.BMIForm(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = engine.UpdateSchema(ctx, created.ID, lifecycle.SchemaUpdate{
		Fields: testsupport.CycleForm().Fields,
	}, "alice")
	var circular *lifecycle.CircularDependencyError
	if !errors.As(err, &circular) {
		t.Fatalf("expected CircularDependencyError, got %v", err)
	}

	// The stored form keeps its previous schema.
	stored, err := engine.GetForm(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetForm: %v", err)
	}
	if stored.SchemaVersion != 1 {
		t.Fatalf("expected stored version 1, got %d", stored.SchemaVersion)
	}
}

func TestUpdateSchemaNotFoundAndInactive(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := engine.UpdateSchema(ctx, "missing", lifecycle.SchemaUpdate{Fields: testsupport.BMIForm().Fields}, "alice")
	var notFound *lifecycle.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	created, err := engine.Create(ctx, testsupport.BMIForm(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := engine.SoftDeleteForm(ctx, created.ID, "alice"); err != nil {
		t.Fatalf("SoftDeleteForm: %v", err)
	}

	_, err = engine.UpdateSchema(ctx, created.ID, lifecycle.SchemaUpdate{Fields: created.Fields}, "alice")
	var inactive *lifecycle.InactiveFormError
	if !errors.As(err, &inactive) {
		t.Fatalf("expected InactiveFormError, got %v", err)
	}
	_, err = engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{Values: map[string]any{"peso": 70.0, "altura": 170.0}}, "bob")
	if !errors.As(err, &inactive) {
		t.Fatalf("expected InactiveFormError on submit, got %v", err)
	}
	if err := engine.SoftDeleteForm(ctx, created.ID, "alice"); !errors.As(err, &inactive) {
		t.Fatalf("expected InactiveFormError on repeat delete, got %v", err)
	}
}

func TestSoftDeleteProtectedForm(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	definition := testsupport.BMIForm()
	definition.Protected = true
	created, err := engine.Create(ctx, definition, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = engine.SoftDeleteForm(ctx, created.ID, "alice")
	var protected *lifecycle.ProtectedFormError
	if !errors.As(err, &protected) {
		t.Fatalf("expected ProtectedFormError, got %v", err)
	}

	// Clearing protection through an update unlocks deletion.
	unprotect := false
	if _, err := engine.UpdateSchema(ctx, created.ID, lifecycle.SchemaUpdate{
		Fields:    created.Fields,
		Protected: &unprotect,
	}, "alice"); err != nil {
		t.Fatalf("UpdateSchema: %v", err)
	}
	if err := engine.SoftDeleteForm(ctx, created.ID, "alice"); err != nil {
		t.Fatalf("SoftDeleteForm after unprotect: %v", err)
	}

	stored, err := engine.GetForm(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetForm: %v", err)
	}
	if stored.Active {
		t.Fatal("expected form to be inactive")
	}
	if stored.DeletedAt == nil || stored.DeletedBy != "alice" {
		t.Fatalf("expected removal metadata, got %+v", stored)
	}
}

func TestSoftDeleteResponse(t *testing.T) {
	t.Parallel()

	engine, _, recorder := newEngine(t)
	ctx := context.Background()

	created, err := engine.Create(ctx, testsupport.BMIForm(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	response, err := engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{
		Values: map[string]any{"peso": 70.0, "altura": 170.0},
	}, "bob")
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}

	if err := engine.SoftDeleteResponse(ctx, created.ID, "missing", "alice"); err == nil {
		t.Fatal("expected NotFoundError for unknown response")
	}

	if err := engine.SoftDeleteResponse(ctx, created.ID, response.ID, "alice"); err != nil {
		t.Fatalf("SoftDeleteResponse: %v", err)
	}
	err = engine.SoftDeleteResponse(ctx, created.ID, response.ID, "alice")
	var inactive *lifecycle.InactiveResponseError
	if !errors.As(err, &inactive) {
		t.Fatalf("expected InactiveResponseError, got %v", err)
	}

	events := recorder.Events()
	last := events[len(events)-1]
	if last.Action != audit.ActionResponseSoftDeleted || last.EntityID != response.ID {
		t.Fatalf("unexpected audit event %+v", last)
	}
}

func TestSanitizesSchemaText(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	definition := form.Form{
		Name:        `Intake <script>alert("x")</script>`,
		Description: "<b>plain</b>",
		Fields: []form.Field{
			{ID: "name", Label: "<i>Name</i>", Kind: form.KindText},
		},
	}
	created, err := engine.Create(ctx, definition, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if strings.Contains(created.Name, "<script>") {
		t.Fatalf("expected sanitized name, got %q", created.Name)
	}
	if created.Fields[0].Label != "Name" {
		t.Fatalf("expected sanitized label, got %q", created.Fields[0].Label)
	}
}

func TestListPassThrough(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.Create(ctx, testsupport.BMIForm(), "alice"); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	page, err := engine.ListForms(ctx, lifecycle.Page{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListForms: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 forms, got %d", len(page))
	}
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	out := ""
	for n > 0 {
		out = string(digits[n%10]) + out
		n /= 10
	}
	return out
}

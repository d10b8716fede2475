// Package lifecycle orchestrates the form lifecycle: creation, schema
// updates, response submission, and soft deletion. The engine owns the
// schema version counter, the active flag, and removal metadata; field
// content is caller-supplied and only accepted after validation. All
// operations are single logical units of work: every check runs before any
// persistence write, so a failed operation leaves nothing behind.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-formflow/pkg/audit"
	"github.com/goliatone/go-formflow/pkg/form"
	"github.com/goliatone/go-formflow/pkg/formula"
	"github.com/goliatone/go-formflow/pkg/graph"
	"github.com/goliatone/go-formflow/pkg/sanitize"
	"github.com/goliatone/go-formflow/pkg/validate"
	"github.com/goliatone/go-formflow/pkg/visibility"
)

var errRepositoryMissing = errors.New("lifecycle: repository is not configured")

// IDGenerator produces unique identifiers for forms and responses.
type IDGenerator func() string

// Clock supplies the current time. Injected so operations stay
// deterministic under test.
type Clock func() time.Time

// Option customises the engine configuration.
type Option func(*Engine)

// WithRepository injects the persistence collaborator. Required.
func WithRepository(repo Repository) Option {
	return func(e *Engine) { e.repo = repo }
}

// WithIDGenerator overrides the identifier generator (default: uuid).
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithClock overrides the time source (default: time.Now).
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.now = clock }
}

// WithAuditSink injects the audit event sink (default: discard).
func WithAuditSink(sink audit.Sink) Option {
	return func(e *Engine) { e.audit = sink }
}

// WithLogger injects a structured logger (default: no-op).
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithVisibilityEvaluator overrides the conditional evaluator (default:
// equality).
func WithVisibilityEvaluator(eval visibility.Evaluator) Option {
	return func(e *Engine) { e.visibility = eval }
}

// WithSanitizer overrides the schema text sanitizer (default: strict).
func WithSanitizer(policy *sanitize.Policy) Option {
	return func(e *Engine) { e.sanitizer = policy }
}

// Engine coordinates validation, cycle detection, conditional gating, and
// formula evaluation around the persistence collaborator. Engines hold no
// per-operation state and are safe for concurrent use.
type Engine struct {
	repo       Repository
	newID      IDGenerator
	now        Clock
	audit      audit.Sink
	logger     zerolog.Logger
	visibility visibility.Evaluator
	formula    *formula.Evaluator
	sanitizer  *sanitize.Policy
}

// New constructs an Engine, applying defaults for every collaborator except
// the repository.
func New(options ...Option) *Engine {
	e := &Engine{
		newID:      uuid.NewString,
		now:        time.Now,
		audit:      audit.NopSink(),
		logger:     zerolog.Nop(),
		visibility: visibility.NewEquality(),
		formula:    formula.New(),
		sanitizer:  sanitize.Strict(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "lifecycle").Logger()
	return e
}

// Create validates the form definition and persists it with schema version 1.
func (e *Engine) Create(ctx context.Context, f form.Form, actor string) (form.Form, error) {
	if e.repo == nil {
		return form.Form{}, errRepositoryMissing
	}
	if err := validateSchema(f.Fields); err != nil {
		return form.Form{}, err
	}

	f = e.sanitizer.Form(f)
	if f.ID == "" {
		f.ID = e.newID()
	}
	f.SchemaVersion = 1
	f.Active = true
	f.CreatedAt = e.now()
	f.DeletedAt = nil
	f.DeletedBy = ""

	created, err := e.repo.CreateForm(ctx, f)
	if err != nil {
		return form.Form{}, err
	}

	e.logger.Debug().Str("form", created.ID).Int("fields", len(created.Fields)).Msg("form created")
	e.audit.Record(ctx, audit.Event{
		Action:    audit.ActionFormCreated,
		EntityID:  created.ID,
		Actor:     actor,
		Timestamp: created.CreatedAt,
	})
	return created, nil
}

// SchemaUpdate carries the caller-supplied portion of a schema update.
// SchemaVersion zero means "next version"; a non-zero value must be strictly
// greater than the stored version. Protected nil preserves the stored flag.
type SchemaUpdate struct {
	Name          string
	Description   string
	SchemaVersion int
	Protected     *bool
	Fields        []form.Field
}

// UpdateSchema validates the incoming field list and persists it under the
// next schema version, preserving creation timestamp and active flag.
func (e *Engine) UpdateSchema(ctx context.Context, id string, update SchemaUpdate, actor string) (form.Form, error) {
	if e.repo == nil {
		return form.Form{}, errRepositoryMissing
	}
	stored, err := e.loadActiveForm(ctx, id)
	if err != nil {
		return form.Form{}, err
	}

	if err := validateSchema(update.Fields); err != nil {
		return form.Form{}, err
	}

	newVersion := stored.SchemaVersion + 1
	if update.SchemaVersion != 0 && update.SchemaVersion <= stored.SchemaVersion {
		return form.Form{}, &SchemaVersionConflictError{
			FormID:   id,
			Supplied: update.SchemaVersion,
			Stored:   stored.SchemaVersion,
		}
	}

	merged := stored
	merged.SchemaVersion = newVersion
	merged.Fields = update.Fields
	if update.Name != "" {
		merged.Name = update.Name
	}
	if update.Description != "" {
		merged.Description = update.Description
	}
	if update.Protected != nil {
		merged.Protected = *update.Protected
	}
	merged = e.sanitizer.Form(merged)

	updated, err := e.repo.UpdateSchema(ctx, merged)
	if err != nil {
		return form.Form{}, err
	}

	e.logger.Debug().Str("form", id).Int("schema_version", updated.SchemaVersion).Msg("schema updated")
	e.audit.Record(ctx, audit.Event{
		Action:    audit.ActionSchemaUpdated,
		EntityID:  updated.ID,
		Actor:     actor,
		Timestamp: e.now(),
	})
	return updated, nil
}

// Submission is one response payload. SchemaVersion zero targets the form's
// current version; any other value must match it exactly.
type Submission struct {
	Values        map[string]any
	SchemaVersion int
}

// SubmitResponse validates the submission against the form's current
// schema, computes calculated fields in dependency order, and persists the
// resulting response.
func (e *Engine) SubmitResponse(ctx context.Context, formID string, sub Submission, actor string) (form.Response, error) {
	if e.repo == nil {
		return form.Response{}, errRepositoryMissing
	}
	stored, err := e.loadActiveForm(ctx, formID)
	if err != nil {
		return form.Response{}, err
	}

	target := sub.SchemaVersion
	if target == 0 {
		target = stored.SchemaVersion
	}
	if target != stored.SchemaVersion {
		return form.Response{}, &SchemaVersionMismatchError{
			FormID:   formID,
			Supplied: target,
			Current:  stored.SchemaVersion,
		}
	}

	values := sub.Values
	if values == nil {
		values = map[string]any{}
	}
	vctx := visibility.Context{Values: values}

	inScope := make(map[string]bool, len(stored.Fields))
	for _, field := range stored.Fields {
		visible, err := e.visibility.Eval(field.ID, field.Conditional, vctx)
		if err != nil {
			return form.Response{}, err
		}
		inScope[field.ID] = visible
		if !visible {
			continue
		}
		if err := validate.Value(field, values[field.ID]); err != nil {
			return form.Response{}, err
		}
	}

	ordered, err := formula.Order(stored.Fields)
	if err != nil {
		return form.Response{}, err
	}

	computed := make(map[string]any)
	available := make(map[string]any, len(values))
	for id, value := range values {
		available[id] = value
	}
	for _, field := range ordered {
		if !inScope[field.ID] {
			continue
		}
		result, err := e.formula.Evaluate(field, available)
		if err != nil {
			return form.Response{}, err
		}
		computed[field.ID] = result
		available[field.ID] = result
	}

	response := form.Response{
		ID:            e.newID(),
		FormID:        stored.ID,
		SchemaVersion: target,
		Values:        values,
		Computed:      computed,
		CreatedAt:     e.now(),
		Active:        true,
	}
	saved, err := e.repo.SaveResponse(ctx, stored.ID, response)
	if err != nil {
		return form.Response{}, err
	}

	e.logger.Debug().Str("form", formID).Str("response", saved.ID).Msg("response submitted")
	e.audit.Record(ctx, audit.Event{
		Action:    audit.ActionResponseSubmitted,
		EntityID:  saved.ID,
		Actor:     actor,
		Timestamp: saved.CreatedAt,
	})
	return saved, nil
}

// SoftDeleteForm marks a form inactive, stamping removal metadata.
// Protected forms are rejected.
func (e *Engine) SoftDeleteForm(ctx context.Context, id, actor string) error {
	if e.repo == nil {
		return errRepositoryMissing
	}
	stored, err := e.loadActiveForm(ctx, id)
	if err != nil {
		return err
	}
	if stored.Protected {
		return &ProtectedFormError{ID: id}
	}

	at := e.now()
	if err := e.repo.SoftDeleteForm(ctx, id, actor, at); err != nil {
		return err
	}
	e.logger.Debug().Str("form", id).Str("actor", actor).Msg("form soft-deleted")
	e.audit.Record(ctx, audit.Event{
		Action:    audit.ActionFormSoftDeleted,
		EntityID:  id,
		Actor:     actor,
		Timestamp: at,
	})
	return nil
}

// SoftDeleteResponse marks a response inactive.
func (e *Engine) SoftDeleteResponse(ctx context.Context, formID, responseID, actor string) error {
	if e.repo == nil {
		return errRepositoryMissing
	}
	stored, found, err := e.repo.ResponseByID(ctx, formID, responseID)
	if err != nil {
		return err
	}
	if !found {
		return &NotFoundError{Entity: "response", ID: responseID}
	}
	if !stored.Active {
		return &InactiveResponseError{ID: responseID}
	}

	at := e.now()
	if err := e.repo.SoftDeleteResponse(ctx, formID, responseID, actor, at); err != nil {
		return err
	}
	e.logger.Debug().Str("form", formID).Str("response", responseID).Msg("response soft-deleted")
	e.audit.Record(ctx, audit.Event{
		Action:    audit.ActionResponseSoftDeleted,
		EntityID:  responseID,
		Actor:     actor,
		Timestamp: at,
	})
	return nil
}

// GetForm returns the stored form, active or not.
func (e *Engine) GetForm(ctx context.Context, id string) (form.Form, error) {
	if e.repo == nil {
		return form.Form{}, errRepositoryMissing
	}
	stored, found, err := e.repo.FormByID(ctx, id)
	if err != nil {
		return form.Form{}, err
	}
	if !found {
		return form.Form{}, &NotFoundError{Entity: "form", ID: id}
	}
	return stored, nil
}

// ListForms forwards pagination parameters to the repository.
func (e *Engine) ListForms(ctx context.Context, page Page) ([]form.Form, error) {
	if e.repo == nil {
		return nil, errRepositoryMissing
	}
	return e.repo.ListForms(ctx, page)
}

// ListResponses forwards pagination parameters to the repository.
func (e *Engine) ListResponses(ctx context.Context, formID string, page Page) ([]form.Response, error) {
	if e.repo == nil {
		return nil, errRepositoryMissing
	}
	return e.repo.ListResponses(ctx, formID, page)
}

func (e *Engine) loadActiveForm(ctx context.Context, id string) (form.Form, error) {
	stored, found, err := e.repo.FormByID(ctx, id)
	if err != nil {
		return form.Form{}, err
	}
	if !found {
		return form.Form{}, &NotFoundError{Entity: "form", ID: id}
	}
	if !stored.Active {
		return form.Form{}, &InactiveFormError{ID: id}
	}
	return stored, nil
}

// validateSchema checks every field definition and the dependency graph of
// the whole field list.
func validateSchema(fields []form.Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("lifecycle: a form requires at least one field")
	}
	if len(fields) > form.MaxFields {
		return fmt.Errorf("lifecycle: a form supports at most %d fields", form.MaxFields)
	}

	seen := make(map[string]struct{}, len(fields))
	g := graph.New()
	for _, field := range fields {
		if err := validate.Definition(field); err != nil {
			return err
		}
		if _, dup := seen[field.ID]; dup {
			return fmt.Errorf("lifecycle: duplicate field id %q", field.ID)
		}
		seen[field.ID] = struct{}{}
		g.AddNode(field.ID)
	}
	for _, field := range fields {
		for _, dep := range field.Dependencies {
			if err := g.AddEdge(field.ID, dep); err != nil {
				return fmt.Errorf("lifecycle: field %q: %w", field.ID, err)
			}
		}
	}
	if cycle := g.FindCycle(); len(cycle) > 0 {
		return &CircularDependencyError{Field: cycle[0], Cycle: cycle}
	}
	return nil
}

// Package memory provides a map-backed Repository used by tests and as the
// CLI fallback when no database path is given.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-formflow/pkg/form"
	"github.com/goliatone/go-formflow/pkg/lifecycle"
)

// Repository stores forms and responses in process memory. All methods are
// safe for concurrent use; stored entities are copied on the way in and out
// so callers cannot mutate them in place.
type Repository struct {
	mu        sync.RWMutex
	forms     map[string]form.Form
	formOrder []string
	responses map[string][]form.Response // keyed by form id, append order
}

var _ lifecycle.Repository = (*Repository)(nil)

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		forms:     make(map[string]form.Form),
		responses: make(map[string][]form.Response),
	}
}

// CreateForm stores the form. The id must not already exist.
func (r *Repository) CreateForm(_ context.Context, f form.Form) (form.Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.forms[f.ID]; exists {
		return form.Form{}, fmt.Errorf("memory: form %q already exists", f.ID)
	}
	r.forms[f.ID] = cloneForm(f)
	r.formOrder = append(r.formOrder, f.ID)
	return f, nil
}

// FormByID returns the stored form, reporting absence via the bool.
func (r *Repository) FormByID(_ context.Context, id string) (form.Form, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.forms[id]
	if !ok {
		return form.Form{}, false, nil
	}
	return cloneForm(stored), true, nil
}

// ListForms returns forms in creation order, honouring pagination.
func (r *Repository) ListForms(_ context.Context, page lifecycle.Page) ([]form.Form, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []form.Form
	for _, id := range r.formOrder {
		stored := r.forms[id]
		if !stored.Active && !page.IncludeInactive {
			continue
		}
		out = append(out, cloneForm(stored))
	}
	return paginate(out, page), nil
}

// UpdateSchema replaces the stored form, conditional on the previous schema
// version still being current. This is the conditional write that closes
// the concurrent-update race the engine itself does not solve.
func (r *Repository) UpdateSchema(_ context.Context, updated form.Form) (form.Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.forms[updated.ID]
	if !ok {
		return form.Form{}, fmt.Errorf("memory: form %q not found", updated.ID)
	}
	if stored.SchemaVersion != updated.SchemaVersion-1 {
		return form.Form{}, fmt.Errorf("memory: form %q: stale schema version %d", updated.ID, updated.SchemaVersion-1)
	}
	r.forms[updated.ID] = cloneForm(updated)
	return updated, nil
}

// SoftDeleteForm flips the active flag and stamps removal metadata.
func (r *Repository) SoftDeleteForm(_ context.Context, id, actor string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.forms[id]
	if !ok {
		return fmt.Errorf("memory: form %q not found", id)
	}
	stored.Active = false
	stored.DeletedAt = &at
	stored.DeletedBy = actor
	r.forms[id] = stored
	return nil
}

// SaveResponse appends the response under the owning form.
func (r *Repository) SaveResponse(_ context.Context, formID string, resp form.Response) (form.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[formID] = append(r.responses[formID], cloneResponse(resp))
	return resp, nil
}

// ResponseByID returns the response stored under the given form.
func (r *Repository) ResponseByID(_ context.Context, formID, responseID string) (form.Response, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, stored := range r.responses[formID] {
		if stored.ID == responseID {
			return cloneResponse(stored), true, nil
		}
	}
	return form.Response{}, false, nil
}

// ListResponses returns responses in submission order, honouring
// pagination.
func (r *Repository) ListResponses(_ context.Context, formID string, page lifecycle.Page) ([]form.Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []form.Response
	for _, stored := range r.responses[formID] {
		if !stored.Active && !page.IncludeInactive {
			continue
		}
		out = append(out, cloneResponse(stored))
	}
	return paginate(out, page), nil
}

// SoftDeleteResponse flips the active flag and stamps removal metadata.
func (r *Repository) SoftDeleteResponse(_ context.Context, formID, responseID, actor string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.responses[formID]
	for i := range stored {
		if stored[i].ID == responseID {
			stored[i].Active = false
			stored[i].DeletedAt = &at
			stored[i].DeletedBy = actor
			return nil
		}
	}
	return fmt.Errorf("memory: response %q not found", responseID)
}

func paginate[T any](items []T, page lifecycle.Page) []T {
	if page.Offset > 0 {
		if page.Offset >= len(items) {
			return nil
		}
		items = items[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

func cloneForm(f form.Form) form.Form {
	out := f
	out.Fields = append([]form.Field(nil), f.Fields...)
	if f.DeletedAt != nil {
		at := *f.DeletedAt
		out.DeletedAt = &at
	}
	return out
}

func cloneResponse(r form.Response) form.Response {
	out := r
	out.Values = cloneValues(r.Values)
	out.Computed = cloneValues(r.Computed)
	if r.DeletedAt != nil {
		at := *r.DeletedAt
		out.DeletedAt = &at
	}
	return out
}

func cloneValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

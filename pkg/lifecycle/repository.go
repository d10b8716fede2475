package lifecycle

import (
	"context"
	"time"

	"github.com/goliatone/go-formflow/pkg/form"
)

// Page carries pagination and filter parameters for list operations. The
// engine forwards it to the repository untouched.
type Page struct {
	Limit           int
	Offset          int
	IncludeInactive bool
}

// Repository is the persistence collaborator the engine writes through. All
// validation happens before any repository write, so implementations may
// assume the entities they receive are structurally valid. Persistence
// failures propagate to the caller unwrapped.
//
// UpdateSchema receives the fully merged form carrying the new schema
// version; implementations that want to close the concurrent-update race
// should make the write conditional on the previous version
// (updated.SchemaVersion - 1) still being stored.
type Repository interface {
	CreateForm(ctx context.Context, f form.Form) (form.Form, error)
	FormByID(ctx context.Context, id string) (form.Form, bool, error)
	ListForms(ctx context.Context, page Page) ([]form.Form, error)
	UpdateSchema(ctx context.Context, updated form.Form) (form.Form, error)
	SoftDeleteForm(ctx context.Context, id, actor string, at time.Time) error

	SaveResponse(ctx context.Context, formID string, r form.Response) (form.Response, error)
	ResponseByID(ctx context.Context, formID, responseID string) (form.Response, bool, error)
	ListResponses(ctx context.Context, formID string, page Page) ([]form.Response, error)
	SoftDeleteResponse(ctx context.Context, formID, responseID, actor string, at time.Time) error
}

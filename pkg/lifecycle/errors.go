package lifecycle

import (
	"fmt"
	"strings"
)

// NotFoundError reports a referenced form or response that does not exist.
type NotFoundError struct {
	Entity string // "form" or "response"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("lifecycle: %s %q not found", e.Entity, e.ID)
}

// InactiveFormError reports an operation attempted on a soft-deleted form.
type InactiveFormError struct {
	ID string
}

func (e *InactiveFormError) Error() string {
	return fmt.Sprintf("lifecycle: form %q is inactive", e.ID)
}

// InactiveResponseError reports an operation attempted on a soft-deleted
// response.
type InactiveResponseError struct {
	ID string
}

func (e *InactiveResponseError) Error() string {
	return fmt.Sprintf("lifecycle: response %q is inactive", e.ID)
}

// ProtectedFormError reports a deletion attempted on a protected form.
type ProtectedFormError struct {
	ID string
}

func (e *ProtectedFormError) Error() string {
	return fmt.Sprintf("lifecycle: form %q is protected", e.ID)
}

// SchemaVersionConflictError reports an explicit update version that is not
// strictly greater than the stored version.
type SchemaVersionConflictError struct {
	FormID   string
	Supplied int
	Stored   int
}

func (e *SchemaVersionConflictError) Error() string {
	return fmt.Sprintf("lifecycle: form %q: supplied schema version %d must be greater than stored version %d",
		e.FormID, e.Supplied, e.Stored)
}

// SchemaVersionMismatchError reports a submission targeting a schema version
// other than the form's current one.
type SchemaVersionMismatchError struct {
	FormID   string
	Supplied int
	Current  int
}

func (e *SchemaVersionMismatchError) Error() string {
	return fmt.Sprintf("lifecycle: form %q: submission targets schema version %d but current version is %d",
		e.FormID, e.Supplied, e.Current)
}

// CircularDependencyError reports a cycle among calculated-field
// dependencies. Field is the first participant discovered; Cycle is the full
// closed loop.
type CircularDependencyError struct {
	Field string
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("lifecycle: field %q participates in a dependency cycle: %s",
		e.Field, strings.Join(e.Cycle, " -> "))
}

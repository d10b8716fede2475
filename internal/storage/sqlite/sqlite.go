// Package sqlite provides a Repository backed by an embedded sqlite
// database. Forms and responses are stored as JSON documents alongside the
// columns the queries filter on.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/goliatone/go-formflow/pkg/form"
	"github.com/goliatone/go-formflow/pkg/lifecycle"
)

// Repository persists forms and responses in a sqlite database.
type Repository struct {
	db *sql.DB
}

var _ lifecycle.Repository = (*Repository)(nil)

// Open opens (creating if needed) the database at path and bootstraps the
// schema.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	repo := &Repository{db: db}
	if err := repo.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) init() error {
	stmts := []string{
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS forms (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			protected INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP,
			deleted_by TEXT,
			document TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS responses (
			id TEXT PRIMARY KEY,
			form_id TEXT NOT NULL REFERENCES forms(id),
			schema_version INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP,
			deleted_by TEXT,
			document TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_responses_form ON responses(form_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return nil
}

// CreateForm inserts the form document.
func (r *Repository) CreateForm(ctx context.Context, f form.Form) (form.Form, error) {
	doc, err := json.Marshal(f)
	if err != nil {
		return form.Form{}, fmt.Errorf("sqlite: marshal form: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO forms (id, schema_version, is_active, protected, created_at, document)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.SchemaVersion, boolInt(f.Active), boolInt(f.Protected), f.CreatedAt.UTC(), string(doc))
	if err != nil {
		return form.Form{}, fmt.Errorf("sqlite: insert form %s: %w", f.ID, err)
	}
	return f, nil
}

// FormByID loads one form document.
func (r *Repository) FormByID(ctx context.Context, id string) (form.Form, bool, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM forms WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return form.Form{}, false, nil
	}
	if err != nil {
		return form.Form{}, false, fmt.Errorf("sqlite: select form %s: %w", id, err)
	}
	out, err := decodeForm(doc)
	if err != nil {
		return form.Form{}, false, err
	}
	return out, true, nil
}

// ListForms returns form documents in creation order.
func (r *Repository) ListForms(ctx context.Context, page lifecycle.Page) ([]form.Form, error) {
	query := `SELECT document FROM forms`
	if !page.IncludeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at, id`
	query, args := withPage(query, nil, page)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list forms: %w", err)
	}
	defer rows.Close()

	var out []form.Form
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite: scan form: %w", err)
		}
		f, err := decodeForm(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateSchema replaces the form document, conditional on the previous
// schema version still being stored.
func (r *Repository) UpdateSchema(ctx context.Context, updated form.Form) (form.Form, error) {
	doc, err := json.Marshal(updated)
	if err != nil {
		return form.Form{}, fmt.Errorf("sqlite: marshal form: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE forms SET schema_version = ?, protected = ?, document = ?
		 WHERE id = ? AND schema_version = ?`,
		updated.SchemaVersion, boolInt(updated.Protected), string(doc),
		updated.ID, updated.SchemaVersion-1)
	if err != nil {
		return form.Form{}, fmt.Errorf("sqlite: update form %s: %w", updated.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return form.Form{}, fmt.Errorf("sqlite: update form %s: %w", updated.ID, err)
	}
	if affected == 0 {
		return form.Form{}, fmt.Errorf("sqlite: form %s: stale schema version %d", updated.ID, updated.SchemaVersion-1)
	}
	return updated, nil
}

// SoftDeleteForm flips the active flag and stamps removal metadata in both
// the columns and the document.
func (r *Repository) SoftDeleteForm(ctx context.Context, id, actor string, at time.Time) error {
	stored, found, err := r.FormByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("sqlite: form %s not found", id)
	}
	stored.Active = false
	stored.DeletedAt = &at
	stored.DeletedBy = actor
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("sqlite: marshal form: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE forms SET is_active = 0, deleted_at = ?, deleted_by = ?, document = ? WHERE id = ?`,
		at.UTC(), actor, string(doc), id)
	if err != nil {
		return fmt.Errorf("sqlite: soft-delete form %s: %w", id, err)
	}
	return nil
}

// SaveResponse inserts the response document.
func (r *Repository) SaveResponse(ctx context.Context, formID string, resp form.Response) (form.Response, error) {
	doc, err := json.Marshal(resp)
	if err != nil {
		return form.Response{}, fmt.Errorf("sqlite: marshal response: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO responses (id, form_id, schema_version, is_active, created_at, document)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		resp.ID, formID, resp.SchemaVersion, boolInt(resp.Active), resp.CreatedAt.UTC(), string(doc))
	if err != nil {
		return form.Response{}, fmt.Errorf("sqlite: insert response %s: %w", resp.ID, err)
	}
	return resp, nil
}

// ResponseByID loads one response document scoped to its form.
func (r *Repository) ResponseByID(ctx context.Context, formID, responseID string) (form.Response, bool, error) {
	var doc string
	err := r.db.QueryRowContext(ctx,
		`SELECT document FROM responses WHERE id = ? AND form_id = ?`, responseID, formID).Scan(&doc)
	if err == sql.ErrNoRows {
		return form.Response{}, false, nil
	}
	if err != nil {
		return form.Response{}, false, fmt.Errorf("sqlite: select response %s: %w", responseID, err)
	}
	out, err := decodeResponse(doc)
	if err != nil {
		return form.Response{}, false, err
	}
	return out, true, nil
}

// ListResponses returns response documents in submission order.
func (r *Repository) ListResponses(ctx context.Context, formID string, page lifecycle.Page) ([]form.Response, error) {
	query := `SELECT document FROM responses WHERE form_id = ?`
	args := []any{formID}
	if !page.IncludeInactive {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at, id`
	query, args = withPage(query, args, page)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list responses: %w", err)
	}
	defer rows.Close()

	var out []form.Response
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite: scan response: %w", err)
		}
		resp, err := decodeResponse(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

// SoftDeleteResponse flips the active flag and stamps removal metadata.
func (r *Repository) SoftDeleteResponse(ctx context.Context, formID, responseID, actor string, at time.Time) error {
	stored, found, err := r.ResponseByID(ctx, formID, responseID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("sqlite: response %s not found", responseID)
	}
	stored.Active = false
	stored.DeletedAt = &at
	stored.DeletedBy = actor
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("sqlite: marshal response: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE responses SET is_active = 0, deleted_at = ?, deleted_by = ?, document = ?
		 WHERE id = ? AND form_id = ?`,
		at.UTC(), actor, string(doc), responseID, formID)
	if err != nil {
		return fmt.Errorf("sqlite: soft-delete response %s: %w", responseID, err)
	}
	return nil
}

func withPage(query string, args []any, page lifecycle.Page) (string, []any) {
	if page.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, page.Limit)
		if page.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, page.Offset)
		}
	} else if page.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, page.Offset)
	}
	return query, args
}

func decodeForm(doc string) (form.Form, error) {
	var out form.Form
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return form.Form{}, fmt.Errorf("sqlite: decode form document: %w", err)
	}
	return out, nil
}

func decodeResponse(doc string) (form.Response, error) {
	var out form.Response
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return form.Response{}, fmt.Errorf("sqlite: decode response document: %w", err)
	}
	return out, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

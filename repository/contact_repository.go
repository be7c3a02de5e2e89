package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"mediaLending/models"
)

var contactColumns = []any{
	goqu.C("id"), goqu.C("name"), goqu.C("email"), goqu.C("subject"),
	goqu.C("message"), goqu.C("status"), goqu.C("created_at"), goqu.C("updated_at"),
}

// ContactRepository stores messages sent through the contact form.
type ContactRepository struct {
	db sqlx.ExtContext
}

func NewContactRepository(db sqlx.ExtContext) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create inserts a contact request with status NEW.
func (r *ContactRepository) Create(ctx context.Context, c *models.ContactRequest) (*models.ContactRequest, error) {
	if c == nil {
		return nil, errors.New("contact request is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	at := now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO contact_requests (name, email, subject, message, status, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
		c.Name, c.Email, c.Subject, c.Message, string(models.ContactStatusNew), at, at)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a contact request; (nil, nil) when it does not exist.
func (r *ContactRepository) GetByID(ctx context.Context, id int64) (*models.ContactRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var c models.ContactRequest
	err := sqlx.GetContext(ctx, r.db, &c, `SELECT id, name, email, subject, message, status, created_at, updated_at FROM contact_requests WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// List returns a page of contact requests, newest first, optionally by status.
func (r *ContactRepository) List(ctx context.Context, status *models.ContactStatus, skip, take int) ([]models.ContactRequest, int, error) {
	skip, take = NormalizePage(skip, take)
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	base := dialect.From("contact_requests")
	if status != nil {
		base = base.Where(goqu.C("status").Eq(string(*status)))
	}
	return selectPage[models.ContactRequest](ctx, r.db, base, contactColumns, []exp.OrderedExpression{goqu.C("created_at").Desc(), goqu.C("id").Desc()}, skip, take)
}

// UpdateStatus moves a contact request to status.
func (r *ContactRepository) UpdateStatus(ctx context.Context, id int64, status models.ContactStatus) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE contact_requests SET status = ?, updated_at = ? WHERE id = ?`, string(status), now(), id)
	return err
}

// Delete removes a contact request.
func (r *ContactRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM contact_requests WHERE id = ?`, id)
	return err
}

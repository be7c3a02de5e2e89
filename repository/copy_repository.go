package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"mediaLending/models"
)

const copyColumns = `id, resource_id, available, condition, created_at, updated_at`

// CopyRepository handles physical copies of resources.
type CopyRepository struct {
	db sqlx.ExtContext
}

func NewCopyRepository(db sqlx.ExtContext) *CopyRepository {
	return &CopyRepository{db: db}
}

// Create inserts a copy. New copies are always available.
func (r *CopyRepository) Create(ctx context.Context, resourceID int64, condition string) (*models.Copy, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	at := now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO copies (resource_id, available, condition, created_at, updated_at) VALUES (?, 1, ?, ?, ?)`, resourceID, condition, at, at)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a copy; (nil, nil) when it does not exist.
func (r *CopyRepository) GetByID(ctx context.Context, id int64) (*models.Copy, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var c models.Copy
	err := sqlx.GetContext(ctx, r.db, &c, `SELECT `+copyColumns+` FROM copies WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListByResource returns every copy of a resource ordered by id.
func (r *CopyRepository) ListByResource(ctx context.Context, resourceID int64) ([]models.Copy, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	out := []models.Copy{}
	if err := sqlx.SelectContext(ctx, r.db, &out, `SELECT `+copyColumns+` FROM copies WHERE resource_id = ? ORDER BY id`, resourceID); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateCondition sets the free-text condition of a copy.
func (r *CopyRepository) UpdateCondition(ctx context.Context, id int64, condition string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE copies SET condition = ?, updated_at = ? WHERE id = ?`, condition, now(), id)
	return err
}

// MarkUnavailable flips an available copy to unavailable. It reports false
// when the copy was already unavailable (or missing), in which case nothing changed.
func (r *CopyRepository) MarkUnavailable(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE copies SET available = 0, updated_at = ? WHERE id = ? AND available = 1`, now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkAvailable puts a copy back on the shelf.
func (r *CopyRepository) MarkAvailable(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE copies SET available = 1, updated_at = ? WHERE id = ?`, now(), id)
	return err
}

// Delete removes a copy. Its (returned) borrowings cascade.
func (r *CopyRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM copies WHERE id = ?`, id)
	return err
}

// ReconcileAvailability recomputes the available flag of every copy from the
// borrowings table and returns how many copies were corrected.
func (r *CopyRepository) ReconcileAvailability(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	const held = `EXISTS (SELECT 1 FROM borrowings b WHERE b.copy_id = copies.id AND b.status IN ('ACTIVE', 'OVERDUE'))`
	res, err := r.db.ExecContext(ctx, `UPDATE copies SET available = NOT `+held+`, updated_at = ? WHERE available = `+held, now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"mediaLending/models"
)

const borrowingColumns = `id, user_id, copy_id, borrowed_at, due_date, returned_at, status, renewal_count, comments, created_at, updated_at`

// BorrowingRepository is the core repository for Borrowing entities.
// Reads that join copies, resources and users live in borrowing_query.go.
type BorrowingRepository struct {
	db sqlx.ExtContext
}

// NewBorrowingRepository creates a new BorrowingRepository.
func NewBorrowingRepository(db sqlx.ExtContext) *BorrowingRepository {
	return &BorrowingRepository{db: db}
}

// Create inserts a new borrowing. Status defaults to ACTIVE if empty.
func (r *BorrowingRepository) Create(ctx context.Context, b *models.Borrowing) (*models.Borrowing, error) {
	if b == nil {
		return nil, errors.New("borrowing is nil")
	}
	if b.Status == "" {
		b.Status = models.BorrowingStatusActive
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	at := now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO borrowings (user_id, copy_id, borrowed_at, due_date, status, comments, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		b.UserID, b.CopyID, ts(b.BorrowedAt), ts(b.DueDate), string(b.Status), b.Comments, at, at)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("created borrowing not found: id=%d", id)
	}
	return out, nil
}

// GetByID fetches a borrowing without its relations; (nil, nil) when missing.
func (r *BorrowingRepository) GetByID(ctx context.Context, id int64) (*models.Borrowing, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var b models.Borrowing
	err := sqlx.GetContext(ctx, r.db, &b, `SELECT `+borrowingColumns+` FROM borrowings WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// MarkReturned closes a held borrowing. It reports false when the borrowing
// was not ACTIVE or OVERDUE, in which case nothing changed.
func (r *BorrowingRepository) MarkReturned(ctx context.Context, id int64, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE borrowings SET status = 'RETURNED', returned_at = ?, updated_at = ? WHERE id = ? AND status IN ('ACTIVE', 'OVERDUE')`, ts(at), now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Renew moves the due date of an ACTIVE borrowing to dueDate and bumps
// renewal_count. maxRenewals <= 0 means no cap. Reports false when the
// borrowing is not ACTIVE or the cap is reached.
func (r *BorrowingRepository) Renew(ctx context.Context, id int64, dueDate time.Time, maxRenewals int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `
UPDATE borrowings
SET due_date = ?, renewal_count = renewal_count + 1, updated_at = ?
WHERE id = ? AND status = 'ACTIVE' AND (? <= 0 OR renewal_count < ?)`,
		ts(dueDate), now(), id, maxRenewals, maxRenewals)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// BorrowingChanges lists the plain fields an update may touch. Nil fields are left as they are.
type BorrowingChanges struct {
	Status   *models.BorrowingStatus
	DueDate  *time.Time
	Comments *string
}

func (c BorrowingChanges) empty() bool {
	return c.Status == nil && c.DueDate == nil && c.Comments == nil
}

// Update applies the non-nil fields of c.
func (r *BorrowingRepository) Update(ctx context.Context, id int64, c BorrowingChanges) error {
	if c.empty() {
		return nil
	}
	rec := goqu.Record{"updated_at": now()}
	if c.Status != nil {
		rec["status"] = string(*c.Status)
	}
	if c.DueDate != nil {
		rec["due_date"] = ts(*c.DueDate)
	}
	if c.Comments != nil {
		rec["comments"] = *c.Comments
	}
	query, args, err := dialect.Update("borrowings").Set(rec).Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// MarkOverdue flips every ACTIVE borrowing whose due date is before asOf to
// OVERDUE and returns how many rows changed.
func (r *BorrowingRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE borrowings SET status = 'OVERDUE', updated_at = ? WHERE status = 'ACTIVE' AND due_date < ?`, now(), ts(asOf))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountHeldByUser counts the user's ACTIVE and OVERDUE borrowings.
func (r *BorrowingRepository) CountHeldByUser(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM borrowings WHERE user_id = ? AND status IN ('ACTIVE', 'OVERDUE')`, userID)
	return n, err
}

// HasHeldForCopy reports whether a non-returned borrowing references the copy.
func (r *BorrowingRepository) HasHeldForCopy(ctx context.Context, copyID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var held bool
	err := sqlx.GetContext(ctx, r.db, &held, `SELECT EXISTS (SELECT 1 FROM borrowings WHERE copy_id = ? AND status IN ('ACTIVE', 'OVERDUE'))`, copyID)
	return held, err
}

// HasHeldForResource reports whether any copy of the resource is currently lent out.
func (r *BorrowingRepository) HasHeldForResource(ctx context.Context, resourceID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var held bool
	err := sqlx.GetContext(ctx, r.db, &held, `
SELECT EXISTS (
    SELECT 1 FROM borrowings b
    JOIN copies c ON c.id = b.copy_id
    WHERE c.resource_id = ? AND b.status IN ('ACTIVE', 'OVERDUE')
)`, resourceID)
	return held, err
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"mediaLending/models"
)

const reviewColumns = `id, user_id, resource_id, rating, comment, created_at, updated_at`

// ReviewRepository handles ratings left on resources.
type ReviewRepository struct {
	db sqlx.ExtContext
}

func NewReviewRepository(db sqlx.ExtContext) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review. A second review by the same user on the same
// resource fails with a unique violation (see IsUniqueViolation).
func (r *ReviewRepository) Create(ctx context.Context, rv *models.Review) (*models.Review, error) {
	if rv == nil {
		return nil, errors.New("review is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	at := now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO reviews (user_id, resource_id, rating, comment, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
		rv.UserID, rv.ResourceID, rv.Rating, rv.Comment, at, at)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a review; (nil, nil) when it does not exist.
func (r *ReviewRepository) GetByID(ctx context.Context, id int64) (*models.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rv models.Review
	err := sqlx.GetContext(ctx, r.db, &rv, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rv, nil
}

// ListByResource returns the reviews of a resource, newest first, with author names.
func (r *ReviewRepository) ListByResource(ctx context.Context, resourceID int64) ([]models.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	var rows []struct {
		models.Review
		AuthorEmail     string `db:"author_email"`
		AuthorFirstName string `db:"author_first_name"`
		AuthorLastName  string `db:"author_last_name"`
	}
	err := sqlx.SelectContext(ctx, r.db, &rows, `
SELECT rv.id, rv.user_id, rv.resource_id, rv.rating, rv.comment, rv.created_at, rv.updated_at,
       u.email AS author_email, u.first_name AS author_first_name, u.last_name AS author_last_name
FROM reviews rv
JOIN users u ON u.id = rv.user_id
WHERE rv.resource_id = ?
ORDER BY rv.created_at DESC, rv.id DESC`, resourceID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Review, 0, len(rows))
	for _, row := range rows {
		rv := row.Review
		rv.Author = &models.UserSummary{ID: rv.UserID, Email: row.AuthorEmail, FirstName: row.AuthorFirstName, LastName: row.AuthorLastName}
		out = append(out, rv)
	}
	return out, nil
}

// Update sets rating and comment of a review.
func (r *ReviewRepository) Update(ctx context.Context, id int64, rating int, comment *string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE reviews SET rating = ?, comment = ?, updated_at = ? WHERE id = ?`, rating, comment, now(), id)
	return err
}

// Delete removes a review.
func (r *ReviewRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
	return err
}

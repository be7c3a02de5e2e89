package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"mediaLending/models"
)

var resourceColumns = []string{
	"id", "title", "type", "author", "publisher", "year", "isbn",
	"description", "genre", "cover_image_url", "created_at", "updated_at",
}

// ResourceRepository handles catalog entries.
type ResourceRepository struct {
	db sqlx.ExtContext
}

func NewResourceRepository(db sqlx.ExtContext) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create inserts a resource and returns it with its generated ID.
func (r *ResourceRepository) Create(ctx context.Context, res *models.Resource) (*models.Resource, error) {
	if res == nil {
		return nil, errors.New("resource is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	at := now()
	out, err := r.db.ExecContext(ctx, `INSERT INTO resources (title, type, author, publisher, year, isbn, description, genre, cover_image_url, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		res.Title, string(res.Type), res.Author, res.Publisher, res.Year, res.ISBN, res.Description, res.Genre, res.CoverImageURL, at, at)
	if err != nil {
		return nil, err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a resource; (nil, nil) when it does not exist.
func (r *ResourceRepository) GetByID(ctx context.Context, id int64) (*models.Resource, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var res models.Resource
	err := sqlx.GetContext(ctx, r.db, &res, `SELECT `+strings.Join(resourceColumns, ", ")+` FROM resources WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// Update overwrites every editable column of the resource.
func (r *ResourceRepository) Update(ctx context.Context, res *models.Resource) error {
	if res == nil {
		return errors.New("resource is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE resources SET title = ?, type = ?, author = ?, publisher = ?, year = ?, isbn = ?, description = ?, genre = ?, cover_image_url = ?, updated_at = ? WHERE id = ?`,
		res.Title, string(res.Type), res.Author, res.Publisher, res.Year, res.ISBN, res.Description, res.Genre, res.CoverImageURL, now(), res.ID)
	return err
}

// Delete removes a resource; its copies, their borrowings and its reviews cascade.
func (r *ResourceRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	return err
}

// ListResourcesParams contains filters and pagination for the catalog listing.
type ListResourcesParams struct {
	Type          *models.ResourceType
	Search        string // title, author or ISBN
	AvailableOnly bool   // at least one copy on the shelf
	Skip          int
	Take          int
}

// List returns a page of resources ordered by title, id and the total number of matches.
func (r *ResourceRepository) List(ctx context.Context, p ListResourcesParams) ([]models.Resource, int, error) {
	p.Skip, p.Take = NormalizePage(p.Skip, p.Take)
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	where := make([]exp.Expression, 0, 3)
	if p.Type != nil {
		where = append(where, goqu.C("type").Eq(string(*p.Type)))
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		like := likePattern(s)
		where = append(where, goqu.Or(
			goqu.C("title").Like(like),
			goqu.C("author").Like(like),
			goqu.C("isbn").Like(like),
		))
	}
	if p.AvailableOnly {
		onShelf := dialect.From("copies").
			Select(goqu.L("1")).
			Where(goqu.I("copies.resource_id").Eq(goqu.I("resources.id")), goqu.I("copies.available").Eq(1))
		where = append(where, goqu.L("EXISTS ?", onShelf))
	}

	cols := make([]any, 0, len(resourceColumns))
	for _, c := range resourceColumns {
		cols = append(cols, goqu.C(c))
	}
	base := dialect.From("resources").Where(where...)
	return selectPage[models.Resource](ctx, r.db, base, cols, []exp.OrderedExpression{goqu.C("title").Asc(), goqu.C("id").Asc()}, p.Skip, p.Take)
}

// ResourceStats aggregates copy availability and review ratings for a resource.
type ResourceStats struct {
	TotalCopies     int     `db:"total_copies"`
	AvailableCopies int     `db:"available_copies"`
	AverageRating   float64 `db:"average_rating"`
	ReviewCount     int     `db:"review_count"`
}

// Stats computes ResourceStats for the given resource.
func (r *ResourceRepository) Stats(ctx context.Context, id int64) (ResourceStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var s ResourceStats
	err := sqlx.GetContext(ctx, r.db, &s, `
SELECT
    (SELECT COUNT(*) FROM copies WHERE resource_id = ?) AS total_copies,
    (SELECT COUNT(*) FROM copies WHERE resource_id = ? AND available = 1) AS available_copies,
    (SELECT COALESCE(AVG(rating), 0.0) FROM reviews WHERE resource_id = ?) AS average_rating,
    (SELECT COUNT(*) FROM reviews WHERE resource_id = ?) AS review_count`, id, id, id, id)
	return s, err
}

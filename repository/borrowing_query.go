package repository

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"mediaLending/models"
)

// borrowingRow is one borrowing joined with its copy, resource and borrower.
type borrowingRow struct {
	models.Borrowing

	CopyResourceID        int64               `db:"copy_resource_id"`
	CopyAvailable         bool                `db:"copy_available"`
	CopyCondition         string              `db:"copy_condition"`
	ResourceTitle         string              `db:"resource_title"`
	ResourceType          models.ResourceType `db:"resource_type"`
	ResourceAuthor        *string             `db:"resource_author"`
	ResourceCoverImageURL *string             `db:"resource_cover_image_url"`
	UserEmail             string              `db:"user_email"`
	UserFirstName         string              `db:"user_first_name"`
	UserLastName          string              `db:"user_last_name"`
}

func (r borrowingRow) toModel() models.Borrowing {
	b := r.Borrowing
	b.Copy = &models.Copy{
		ID:         r.CopyID,
		ResourceID: r.CopyResourceID,
		Available:  r.CopyAvailable,
		Condition:  r.CopyCondition,
		Resource: &models.Resource{
			ID:            r.CopyResourceID,
			Title:         r.ResourceTitle,
			Type:          r.ResourceType,
			Author:        r.ResourceAuthor,
			CoverImageURL: r.ResourceCoverImageURL,
		},
	}
	b.User = &models.UserSummary{
		ID:        r.UserID,
		Email:     r.UserEmail,
		FirstName: r.UserFirstName,
		LastName:  r.UserLastName,
	}
	return b
}

var borrowingDetailColumns = []any{
	goqu.I("b.id").As("id"),
	goqu.I("b.user_id").As("user_id"),
	goqu.I("b.copy_id").As("copy_id"),
	goqu.I("b.borrowed_at").As("borrowed_at"),
	goqu.I("b.due_date").As("due_date"),
	goqu.I("b.returned_at").As("returned_at"),
	goqu.I("b.status").As("status"),
	goqu.I("b.renewal_count").As("renewal_count"),
	goqu.I("b.comments").As("comments"),
	goqu.I("b.created_at").As("created_at"),
	goqu.I("b.updated_at").As("updated_at"),
	goqu.I("c.resource_id").As("copy_resource_id"),
	goqu.I("c.available").As("copy_available"),
	goqu.I("c.condition").As("copy_condition"),
	goqu.I("r.title").As("resource_title"),
	goqu.I("r.type").As("resource_type"),
	goqu.I("r.author").As("resource_author"),
	goqu.I("r.cover_image_url").As("resource_cover_image_url"),
	goqu.I("u.email").As("user_email"),
	goqu.I("u.first_name").As("user_first_name"),
	goqu.I("u.last_name").As("user_last_name"),
}

var newestFirst = []exp.OrderedExpression{goqu.I("b.borrowed_at").Desc(), goqu.I("b.id").Desc()}

func borrowingsJoined() *goqu.SelectDataset {
	return dialect.From(goqu.T("borrowings").As("b")).
		Join(goqu.T("copies").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("b.copy_id")))).
		Join(goqu.T("resources").As("r"), goqu.On(goqu.I("r.id").Eq(goqu.I("c.resource_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("b.user_id"))))
}

// GetDetailed fetches a borrowing with copy, resource and borrower joined;
// (nil, nil) when it does not exist.
func (r *BorrowingRepository) GetDetailed(ctx context.Context, id int64) (*models.Borrowing, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	out, err := r.selectDetailed(ctx, borrowingsJoined().Where(goqu.I("b.id").Eq(id)))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// ListByUser returns all borrowings of a user, newest first, optionally
// restricted to one status.
func (r *BorrowingRepository) ListByUser(ctx context.Context, userID int64, status *models.BorrowingStatus) ([]models.Borrowing, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	ds := borrowingsJoined().Where(goqu.I("b.user_id").Eq(userID))
	if status != nil {
		ds = ds.Where(goqu.I("b.status").Eq(string(*status)))
	}
	return r.selectDetailed(ctx, ds)
}

func (r *BorrowingRepository) selectDetailed(ctx context.Context, ds *goqu.SelectDataset) ([]models.Borrowing, error) {
	query, args, err := ds.Select(borrowingDetailColumns...).Order(newestFirst...).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var rows []borrowingRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]models.Borrowing, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// ListBorrowingsParams represents filters and pagination for the admin listing.
type ListBorrowingsParams struct {
	UserID     *int64
	ResourceID *int64
	Status     *models.BorrowingStatus
	Search     string // resource title or borrower email, case-insensitive
	Skip       int
	Take       int
}

// List returns a page of borrowings matching p, newest first, and the total
// number of matches.
func (r *BorrowingRepository) List(ctx context.Context, p ListBorrowingsParams) ([]models.Borrowing, int, error) {
	p.Skip, p.Take = NormalizePage(p.Skip, p.Take)
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	where := make([]exp.Expression, 0, 4)
	if p.UserID != nil {
		where = append(where, goqu.I("b.user_id").Eq(*p.UserID))
	}
	if p.ResourceID != nil {
		where = append(where, goqu.I("c.resource_id").Eq(*p.ResourceID))
	}
	if p.Status != nil {
		where = append(where, goqu.I("b.status").Eq(string(*p.Status)))
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		like := likePattern(s)
		where = append(where, goqu.Or(
			goqu.I("r.title").Like(like),
			goqu.I("u.email").Like(like),
		))
	}

	rows, total, err := selectPage[borrowingRow](ctx, r.db, borrowingsJoined().Where(where...), borrowingDetailColumns, newestFirst, p.Skip, p.Take)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.Borrowing, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, total, nil
}

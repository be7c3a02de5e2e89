package lending

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"mediaLending/internal/apperr"
	"mediaLending/internal/auth"
	"mediaLending/models"
	"mediaLending/repository"
)

// ListFilter narrows the admin listing of borrowings.
type ListFilter struct {
	UserID     *int64
	ResourceID *int64
	Status     *models.BorrowingStatus
	Search     string // resource title or borrower email
	Skip       int
	Take       int
}

func (s *Service) detailed(ctx context.Context, id int64) (*models.Borrowing, error) {
	b, err := s.store.Borrowings.GetDetailed(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.NotFound("borrowing %d not found", id)
	}
	return b, nil
}

// Get returns one borrowing with its copy, resource and borrower. Only the
// borrower or an admin may see it.
func (s *Service) Get(ctx context.Context, id int64, actor *auth.Principal) (_ *models.Borrowing, err error) {
	ctx, span := s.startSpan(ctx, "Get")
	span.SetAttributes(attribute.Int64("borrowing.id", id))
	defer func() { err = s.finish(span, "get", err) }()

	b, err := s.detailed(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanActOn(actor, b.UserID) {
		return nil, apperr.Forbidden("you can only view your own borrowings")
	}
	return b, nil
}

// ListMine returns the borrowings of userID, newest first.
func (s *Service) ListMine(ctx context.Context, userID int64, status *models.BorrowingStatus) (_ []models.Borrowing, err error) {
	ctx, span := s.startSpan(ctx, "ListMine")
	span.SetAttributes(attribute.Int64("user.id", userID))
	defer func() { err = s.finish(span, "list_mine", err) }()

	if status != nil && !status.Valid() {
		return nil, apperr.BadRequest("unknown status %q", *status)
	}
	return s.store.Borrowings.ListByUser(ctx, userID, status)
}

// List returns one page of all borrowings matching f.
func (s *Service) List(ctx context.Context, f ListFilter) (_ models.Page[models.Borrowing], err error) {
	ctx, span := s.startSpan(ctx, "List")
	defer func() { err = s.finish(span, "list", err) }()

	if f.Status != nil && !f.Status.Valid() {
		return models.Page[models.Borrowing]{}, apperr.BadRequest("unknown status %q", *f.Status)
	}
	skip, take := repository.NormalizePage(f.Skip, f.Take)
	items, total, err := s.store.Borrowings.List(ctx, repository.ListBorrowingsParams{
		UserID:     f.UserID,
		ResourceID: f.ResourceID,
		Status:     f.Status,
		Search:     f.Search,
		Skip:       skip,
		Take:       take,
	})
	if err != nil {
		return models.Page[models.Borrowing]{}, err
	}
	return models.Page[models.Borrowing]{Items: items, Total: total, Skip: skip, Take: take}, nil
}

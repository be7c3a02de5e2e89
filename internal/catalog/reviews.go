package catalog

import (
	"context"

	"go.uber.org/zap"

	"mediaLending/internal/apperr"
	"mediaLending/internal/auth"
	"mediaLending/models"
	"mediaLending/repository"
)

const (
	minRating = 1
	maxRating = 5
)

// ReviewPatch changes rating and/or comment of a review.
type ReviewPatch struct {
	Rating  *int
	Comment *string
}

func checkRating(r int) error {
	if r < minRating || r > maxRating {
		return apperr.BadRequest("rating must be between %d and %d", minRating, maxRating)
	}
	return nil
}

// CreateReview records actor's rating of a resource. Each user reviews a
// resource at most once.
func (s *Service) CreateReview(ctx context.Context, actor *auth.Principal, resourceID int64, rating int, comment *string) (*models.Review, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	if err := checkRating(rating); err != nil {
		return nil, err
	}
	if _, err := s.resource(ctx, resourceID); err != nil {
		return nil, err
	}
	rv, err := s.store.Reviews.Create(ctx, &models.Review{
		UserID:     actor.UserID,
		ResourceID: resourceID,
		Rating:     rating,
		Comment:    comment,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperr.BadRequest("you have already reviewed resource %d", resourceID)
		}
		return nil, s.internal("create review", err)
	}
	s.logger.Info("review created", zap.Int64("review_id", rv.ID), zap.Int64("resource_id", resourceID))
	return rv, nil
}

// ListReviews returns the reviews of a resource, newest first.
func (s *Service) ListReviews(ctx context.Context, resourceID int64) ([]models.Review, error) {
	if _, err := s.resource(ctx, resourceID); err != nil {
		return nil, err
	}
	out, err := s.store.Reviews.ListByResource(ctx, resourceID)
	if err != nil {
		return nil, s.internal("list reviews", err)
	}
	return out, nil
}

func (s *Service) UpdateReview(ctx context.Context, id int64, p ReviewPatch, actor *auth.Principal) (*models.Review, error) {
	rv, err := s.ownedReview(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	rating, comment := rv.Rating, rv.Comment
	if p.Rating != nil {
		if err := checkRating(*p.Rating); err != nil {
			return nil, err
		}
		rating = *p.Rating
	}
	if p.Comment != nil {
		comment = p.Comment
	}
	if err := s.store.Reviews.Update(ctx, id, rating, comment); err != nil {
		return nil, s.internal("update review", err)
	}
	out, err := s.store.Reviews.GetByID(ctx, id)
	if err != nil {
		return nil, s.internal("get review", err)
	}
	return out, nil
}

func (s *Service) DeleteReview(ctx context.Context, id int64, actor *auth.Principal) error {
	if _, err := s.ownedReview(ctx, id, actor); err != nil {
		return err
	}
	if err := s.store.Reviews.Delete(ctx, id); err != nil {
		return s.internal("delete review", err)
	}
	s.logger.Info("review deleted", zap.Int64("review_id", id))
	return nil
}

func (s *Service) ownedReview(ctx context.Context, id int64, actor *auth.Principal) (*models.Review, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	rv, err := s.store.Reviews.GetByID(ctx, id)
	if err != nil {
		return nil, s.internal("get review", err)
	}
	if rv == nil {
		return nil, apperr.NotFound("review %d not found", id)
	}
	if !auth.CanActOn(actor, rv.UserID) {
		return nil, apperr.Forbidden("you can only change your own reviews")
	}
	return rv, nil
}

// Package catalog manages resources, their physical copies and reviews.
package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mediaLending/internal/apperr"
	"mediaLending/models"
	"mediaLending/repository"
)

// Service exposes catalog operations over a repository.Store.
type Service struct {
	store  *repository.Store
	logger *zap.Logger
}

func NewService(store *repository.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// ResourceInput is the full set of editable resource fields.
type ResourceInput struct {
	Title         string
	Type          models.ResourceType
	Author        *string
	Publisher     *string
	Year          *int
	ISBN          *string
	Description   *string
	Genre         *string
	CoverImageURL *string
}

// ResourcePatch changes only the non-nil fields.
type ResourcePatch struct {
	Title         *string
	Type          *models.ResourceType
	Author        *string
	Publisher     *string
	Year          *int
	ISBN          *string
	Description   *string
	Genre         *string
	CoverImageURL *string
}

// ResourceFilter narrows the catalog listing.
type ResourceFilter struct {
	Type          *models.ResourceType
	Search        string
	AvailableOnly bool
	Skip          int
	Take          int
}

func (s *Service) CreateResource(ctx context.Context, in ResourceInput) (*models.Resource, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.BadRequest("title is required")
	}
	if !in.Type.Valid() {
		return nil, apperr.BadRequest("unknown resource type %q", in.Type)
	}
	res, err := s.store.Resources.Create(ctx, &models.Resource{
		Title:         title,
		Type:          in.Type,
		Author:        in.Author,
		Publisher:     in.Publisher,
		Year:          in.Year,
		ISBN:          in.ISBN,
		Description:   in.Description,
		Genre:         in.Genre,
		CoverImageURL: in.CoverImageURL,
	})
	if err != nil {
		return nil, s.internal("create resource", err)
	}
	s.logger.Info("resource created", zap.Int64("resource_id", res.ID), zap.String("title", res.Title))
	return res, nil
}

func (s *Service) UpdateResource(ctx context.Context, id int64, p ResourcePatch) (*models.Resource, error) {
	res, err := s.resource(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, apperr.BadRequest("title must not be empty")
		}
		res.Title = title
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return nil, apperr.BadRequest("unknown resource type %q", *p.Type)
		}
		res.Type = *p.Type
	}
	setIfPresent(&res.Author, p.Author)
	setIfPresent(&res.Publisher, p.Publisher)
	setIfPresent(&res.ISBN, p.ISBN)
	setIfPresent(&res.Description, p.Description)
	setIfPresent(&res.Genre, p.Genre)
	setIfPresent(&res.CoverImageURL, p.CoverImageURL)
	if p.Year != nil {
		res.Year = p.Year
	}

	if err := s.store.Resources.Update(ctx, res); err != nil {
		return nil, s.internal("update resource", err)
	}
	return s.resource(ctx, id)
}

// DeleteResource removes a resource with its copies and reviews. It is
// refused while any copy is lent out.
func (s *Service) DeleteResource(ctx context.Context, id int64) error {
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		res, err := tx.Resources.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if res == nil {
			return apperr.NotFound("resource %d not found", id)
		}
		held, err := tx.Borrowings.HasHeldForResource(ctx, id)
		if err != nil {
			return err
		}
		if held {
			return apperr.BadRequest("resource %d has copies on loan", id)
		}
		return tx.Resources.Delete(ctx, id)
	})
	if err != nil {
		return s.internal("delete resource", err)
	}
	s.logger.Info("resource deleted", zap.Int64("resource_id", id))
	return nil
}

// GetResource returns a resource with its copies and aggregates.
func (s *Service) GetResource(ctx context.Context, id int64) (*models.ResourceDetails, error) {
	res, err := s.resource(ctx, id)
	if err != nil {
		return nil, err
	}
	copies, err := s.store.Copies.ListByResource(ctx, id)
	if err != nil {
		return nil, s.internal("list copies", err)
	}
	stats, err := s.store.Resources.Stats(ctx, id)
	if err != nil {
		return nil, s.internal("resource stats", err)
	}
	return &models.ResourceDetails{
		Resource:        *res,
		Copies:          copies,
		TotalCopies:     stats.TotalCopies,
		AvailableCopies: stats.AvailableCopies,
		AverageRating:   stats.AverageRating,
		ReviewCount:     stats.ReviewCount,
	}, nil
}

func (s *Service) ListResources(ctx context.Context, f ResourceFilter) (models.Page[models.Resource], error) {
	if f.Type != nil && !f.Type.Valid() {
		return models.Page[models.Resource]{}, apperr.BadRequest("unknown resource type %q", *f.Type)
	}
	skip, take := repository.NormalizePage(f.Skip, f.Take)
	items, total, err := s.store.Resources.List(ctx, repository.ListResourcesParams{
		Type:          f.Type,
		Search:        f.Search,
		AvailableOnly: f.AvailableOnly,
		Skip:          skip,
		Take:          take,
	})
	if err != nil {
		return models.Page[models.Resource]{}, s.internal("list resources", err)
	}
	return models.Page[models.Resource]{Items: items, Total: total, Skip: skip, Take: take}, nil
}

func (s *Service) resource(ctx context.Context, id int64) (*models.Resource, error) {
	res, err := s.store.Resources.GetByID(ctx, id)
	if err != nil {
		return nil, s.internal("get resource", err)
	}
	if res == nil {
		return nil, apperr.NotFound("resource %d not found", id)
	}
	return res, nil
}

// internal passes domain errors through and wraps everything else.
func (s *Service) internal(op string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	s.logger.Error("catalog operation failed", zap.String("operation", op), zap.Error(err))
	return apperr.Internal(op+" failed", err)
}

// setIfPresent applies an optional string field. An empty string clears it.
func setIfPresent(dst **string, v *string) {
	if v == nil {
		return
	}
	if strings.TrimSpace(*v) == "" {
		*dst = nil
		return
	}
	val := *v
	*dst = &val
}

package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mediaLending/internal/apperr"
	"mediaLending/models"
	"mediaLending/repository"
)

const defaultCondition = "good"

// CreateCopy adds a physical copy to a resource. New copies are on the shelf.
func (s *Service) CreateCopy(ctx context.Context, resourceID int64, condition string) (*models.Copy, error) {
	if _, err := s.resource(ctx, resourceID); err != nil {
		return nil, err
	}
	condition = strings.TrimSpace(condition)
	if condition == "" {
		condition = defaultCondition
	}
	c, err := s.store.Copies.Create(ctx, resourceID, condition)
	if err != nil {
		return nil, s.internal("create copy", err)
	}
	s.logger.Info("copy created", zap.Int64("copy_id", c.ID), zap.Int64("resource_id", resourceID))
	return c, nil
}

// GetCopy returns a copy with its resource.
func (s *Service) GetCopy(ctx context.Context, id int64) (*models.Copy, error) {
	c, err := s.findCopy(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.resource(ctx, c.ResourceID)
	if err != nil {
		return nil, err
	}
	c.Resource = res
	return c, nil
}

func (s *Service) ListCopies(ctx context.Context, resourceID int64) ([]models.Copy, error) {
	if _, err := s.resource(ctx, resourceID); err != nil {
		return nil, err
	}
	copies, err := s.store.Copies.ListByResource(ctx, resourceID)
	if err != nil {
		return nil, s.internal("list copies", err)
	}
	return copies, nil
}

// UpdateCopy edits the condition note. Availability is not editable here.
func (s *Service) UpdateCopy(ctx context.Context, id int64, condition string) (*models.Copy, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return nil, apperr.BadRequest("condition must not be empty")
	}
	if _, err := s.findCopy(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.Copies.UpdateCondition(ctx, id, condition); err != nil {
		return nil, s.internal("update copy", err)
	}
	return s.findCopy(ctx, id)
}

// DeleteCopy removes a copy that is not currently lent out. Its returned
// borrowings go with it.
func (s *Service) DeleteCopy(ctx context.Context, id int64) error {
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		c, err := tx.Copies.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.NotFound("copy %d not found", id)
		}
		held, err := tx.Borrowings.HasHeldForCopy(ctx, id)
		if err != nil {
			return err
		}
		if held {
			return apperr.BadRequest("copy %d is on loan", id)
		}
		return tx.Copies.Delete(ctx, id)
	})
	if err != nil {
		return s.internal("delete copy", err)
	}
	s.logger.Info("copy deleted", zap.Int64("copy_id", id))
	return nil
}

func (s *Service) findCopy(ctx context.Context, id int64) (*models.Copy, error) {
	c, err := s.store.Copies.GetByID(ctx, id)
	if err != nil {
		return nil, s.internal("get copy", err)
	}
	if c == nil {
		return nil, apperr.NotFound("copy %d not found", id)
	}
	return c, nil
}

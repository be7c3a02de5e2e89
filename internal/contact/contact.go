// Package contact stores messages sent through the public contact form.
package contact

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"mediaLending/internal/apperr"
	"mediaLending/models"
	"mediaLending/repository"
)

// Service manages contact requests.
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

// Input is the public contact form.
type Input struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Create stores a new request in status NEW.
func (s *Service) Create(ctx context.Context, in Input) (*models.ContactRequest, error) {
	c := &models.ContactRequest{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
	}
	if c.Name == "" || c.Subject == "" || c.Message == "" {
		return nil, apperr.BadRequest("name, subject and message are required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return nil, apperr.BadRequest("invalid email address")
	}
	out, err := s.store.Contacts.Create(ctx, c)
	if err != nil {
		return nil, s.internal("create contact request", err)
	}
	s.logger.Info("contact request received", zap.Int64("contact_id", out.ID))
	return out, nil
}

// List returns a page of requests, newest first.
func (s *Service) List(ctx context.Context, status *models.ContactStatus, skip, take int) (models.Page[models.ContactRequest], error) {
	if status != nil && !status.Valid() {
		return models.Page[models.ContactRequest]{}, apperr.BadRequest("unknown status %q", *status)
	}
	skip, take = repository.NormalizePage(skip, take)
	items, total, err := s.store.Contacts.List(ctx, status, skip, take)
	if err != nil {
		return models.Page[models.ContactRequest]{}, s.internal("list contact requests", err)
	}
	return models.Page[models.ContactRequest]{Items: items, Total: total, Skip: skip, Take: take}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id int64, status models.ContactStatus) (*models.ContactRequest, error) {
	if !status.Valid() {
		return nil, apperr.BadRequest("unknown status %q", status)
	}
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.Contacts.UpdateStatus(ctx, id, status); err != nil {
		return nil, s.internal("update contact request", err)
	}
	return s.get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Contacts.Delete(ctx, id); err != nil {
		return s.internal("delete contact request", err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, id int64) (*models.ContactRequest, error) {
	c, err := s.store.Contacts.GetByID(ctx, id)
	if err != nil {
		return nil, s.internal("get contact request", err)
	}
	if c == nil {
		return nil, apperr.NotFound("contact request %d not found", id)
	}
	return c, nil
}

func (s *Service) internal(op string, err error) error {
	s.logger.Error("contact operation failed", zap.String("operation", op), zap.Error(err))
	return apperr.Internal(op+" failed", err)
}

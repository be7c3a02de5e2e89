package lending

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"mediaLending/internal/apperr"
	"mediaLending/internal/auth"
	"mediaLending/internal/events"
	"mediaLending/models"
	"mediaLending/repository"
)

// CreateInput describes a new loan requested by the borrower.
type CreateInput struct {
	CopyID   int64
	DueDate  *time.Time // defaults to now + LoanPeriod
	Comments *string
}

// CreateByAdminInput is CreateInput with an explicit borrower.
type CreateByAdminInput struct {
	UserID   int64
	CopyID   int64
	DueDate  *time.Time
	Comments *string
}

// UpdateInput carries a partial update. Renew takes precedence over
// everything else; Status RETURNED is handled as a return.
type UpdateInput struct {
	Renew    bool
	Status   *models.BorrowingStatus
	DueDate  *time.Time
	Comments *string
}

// Create lends a copy to userID. It fails with NotFound when the user or the
// copy is missing, Forbidden when the user already holds the maximum number of
// items and BadRequest when the copy is not on the shelf or the due date is in
// the past. On success the copy is unavailable and the user's counter is one
// higher, all in the same transaction.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (_ *models.Borrowing, err error) {
	ctx, span := s.startSpan(ctx, "Create")
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("copy.id", in.CopyID))
	defer func() { err = s.finish(span, "create", err) }()

	return s.create(ctx, userID, in.CopyID, in.DueDate, in.Comments)
}

// CreateByAdmin lends a copy on behalf of another user. Callers must already
// have checked that the actor is an administrator.
func (s *Service) CreateByAdmin(ctx context.Context, in CreateByAdminInput) (_ *models.Borrowing, err error) {
	ctx, span := s.startSpan(ctx, "CreateByAdmin")
	span.SetAttributes(attribute.Int64("user.id", in.UserID), attribute.Int64("copy.id", in.CopyID))
	defer func() { err = s.finish(span, "create", err) }()

	return s.create(ctx, in.UserID, in.CopyID, in.DueDate, in.Comments)
}

func (s *Service) create(ctx context.Context, userID, copyID int64, dueDate *time.Time, comments *string) (*models.Borrowing, error) {
	now := s.clock()
	due := now.Add(s.policy.LoanPeriod)
	if dueDate != nil {
		due = dueDate.UTC().Truncate(time.Second)
	}
	limit := s.policy.MaxActiveBorrowings

	var id int64
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		user, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return apperr.NotFound("user %d not found", userID)
		}
		if user.ActiveBorrowingsCount >= limit {
			return apperr.Forbidden("borrowing limit of %d reached", limit)
		}

		cp, err := tx.Copies.GetByID(ctx, copyID)
		if err != nil {
			return err
		}
		if cp == nil {
			return apperr.NotFound("copy %d not found", copyID)
		}
		if !cp.Available {
			return apperr.BadRequest("copy %d is not available", copyID)
		}
		if due.Before(now) {
			return apperr.BadRequest("due date must not be in the past")
		}

		b, err := tx.Borrowings.Create(ctx, &models.Borrowing{
			UserID:     userID,
			CopyID:     copyID,
			BorrowedAt: now,
			DueDate:    due,
			Status:     models.BorrowingStatusActive,
			Comments:   comments,
		})
		if err != nil {
			return err
		}
		// Both guards are conditional updates, so a concurrent writer that got
		// here first makes them report false instead of double booking.
		ok, err := tx.Copies.MarkUnavailable(ctx, copyID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.BadRequest("copy %d is not available", copyID)
		}
		ok, err = tx.Users.IncrementActiveBorrowings(ctx, userID, limit)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Forbidden("borrowing limit of %d reached", limit)
		}
		id = b.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.LendingOperations.WithLabelValues("created").Inc()
	s.logger.Info("borrowing created",
		zap.Int64("borrowing_id", id),
		zap.Int64("user_id", userID),
		zap.Int64("copy_id", copyID),
		zap.Time("due_date", due),
	)
	e := events.New(events.BorrowingCreated, now)
	e.BorrowingID, e.UserID, e.CopyID, e.DueDate = id, userID, copyID, &due
	s.publish(ctx, e)

	return s.detailed(ctx, id)
}

// Return closes a borrowing. When actor is non-nil and not an admin it must be
// the borrower. A second return of the same borrowing fails with BadRequest
// and changes nothing.
func (s *Service) Return(ctx context.Context, id int64, actor *auth.Principal) (_ *models.Borrowing, err error) {
	ctx, span := s.startSpan(ctx, "Return")
	span.SetAttributes(attribute.Int64("borrowing.id", id))
	defer func() { err = s.finish(span, "return", err) }()

	now := s.clock()
	var b *models.Borrowing
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		b, err = tx.Borrowings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return apperr.NotFound("borrowing %d not found", id)
		}
		if b.Status == models.BorrowingStatusReturned {
			return apperr.BadRequest("borrowing %d is already returned", id)
		}
		if actor != nil && !auth.CanActOn(actor, b.UserID) {
			return apperr.Forbidden("you can only return your own borrowings")
		}

		ok, err := tx.Borrowings.MarkReturned(ctx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.BadRequest("borrowing %d is already returned", id)
		}
		if err := tx.Copies.MarkAvailable(ctx, b.CopyID); err != nil {
			return err
		}
		return tx.Users.DecrementActiveBorrowings(ctx, b.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.LendingOperations.WithLabelValues("returned").Inc()
	s.logger.Info("borrowing returned",
		zap.Int64("borrowing_id", id),
		zap.Int64("user_id", b.UserID),
		zap.Int64("copy_id", b.CopyID),
	)
	e := events.New(events.BorrowingReturned, now)
	e.BorrowingID, e.UserID, e.CopyID = id, b.UserID, b.CopyID
	s.publish(ctx, e)

	return s.detailed(ctx, id)
}

// Update renews, returns or edits a borrowing on behalf of its owner or an admin.
//
//   - Renew: only ACTIVE borrowings; the due date moves RenewalPeriod past the
//     previous due date.
//   - Status RETURNED: same as Return.
//   - Otherwise comments and due date are edited, and the status may move
//     between ACTIVE and OVERDUE.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, actor *auth.Principal) (*models.Borrowing, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	switch {
	case in.Renew:
		return s.renew(ctx, id, actor)
	case in.Status != nil && *in.Status == models.BorrowingStatusReturned:
		return s.Return(ctx, id, actor)
	default:
		return s.edit(ctx, id, in, actor)
	}
}

func (s *Service) renew(ctx context.Context, id int64, actor *auth.Principal) (_ *models.Borrowing, err error) {
	ctx, span := s.startSpan(ctx, "Renew")
	span.SetAttributes(attribute.Int64("borrowing.id", id))
	defer func() { err = s.finish(span, "renew", err) }()

	var b *models.Borrowing
	var due time.Time
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		b, err = tx.Borrowings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return apperr.NotFound("borrowing %d not found", id)
		}
		if !auth.CanActOn(actor, b.UserID) {
			return apperr.Forbidden("you can only modify your own borrowings")
		}
		if b.Status != models.BorrowingStatusActive {
			return apperr.BadRequest("only active borrowings can be renewed")
		}
		if limit := s.policy.MaxRenewals; limit > 0 && b.RenewalCount >= limit {
			return apperr.BadRequest("renewal limit of %d reached", limit)
		}

		due = b.DueDate.Add(s.policy.RenewalPeriod)
		ok, err := tx.Borrowings.Renew(ctx, id, due, s.policy.MaxRenewals)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.BadRequest("borrowing %d can no longer be renewed", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.LendingOperations.WithLabelValues("renewed").Inc()
	s.logger.Info("borrowing renewed",
		zap.Int64("borrowing_id", id),
		zap.Int64("user_id", b.UserID),
		zap.Time("due_date", due),
	)
	e := events.New(events.BorrowingRenewed, s.clock())
	e.BorrowingID, e.UserID, e.CopyID, e.DueDate = id, b.UserID, b.CopyID, &due
	s.publish(ctx, e)

	return s.detailed(ctx, id)
}

func (s *Service) edit(ctx context.Context, id int64, in UpdateInput, actor *auth.Principal) (_ *models.Borrowing, err error) {
	ctx, span := s.startSpan(ctx, "Update")
	span.SetAttributes(attribute.Int64("borrowing.id", id))
	defer func() { err = s.finish(span, "update", err) }()

	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		b, err := tx.Borrowings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return apperr.NotFound("borrowing %d not found", id)
		}
		if !auth.CanActOn(actor, b.UserID) {
			return apperr.Forbidden("you can only modify your own borrowings")
		}

		changes := repository.BorrowingChanges{Comments: in.Comments}
		if in.Status != nil && *in.Status != b.Status {
			// ACTIVE and OVERDUE both hold the copy, so moving between them has
			// no effect on the copy or the user's counter.
			if !in.Status.Held() || !b.Status.Held() {
				return apperr.BadRequest("cannot change status from %s to %s", b.Status, *in.Status)
			}
			changes.Status = in.Status
		}
		if in.DueDate != nil {
			due := in.DueDate.UTC().Truncate(time.Second)
			if due.Before(b.BorrowedAt) {
				return apperr.BadRequest("due date must not be before the borrowing date")
			}
			changes.DueDate = &due
		}
		return tx.Borrowings.Update(ctx, id, changes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("borrowing updated", zap.Int64("borrowing_id", id), zap.Int64("actor_id", actor.UserID))
	return s.detailed(ctx, id)
}

// CheckOverdue marks every ACTIVE borrowing whose due date has passed as
// OVERDUE and returns how many changed. Running it again changes nothing.
func (s *Service) CheckOverdue(ctx context.Context) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "CheckOverdue")
	defer func() { err = s.finish(span, "check_overdue", err) }()

	now := s.clock()
	var n int64
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		n, err = tx.Borrowings.MarkOverdue(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("borrowings.updated", n))

	if n > 0 {
		s.metrics.LendingOperations.WithLabelValues("overdue_marked").Add(float64(n))
		s.logger.Info("borrowings marked overdue", zap.Int64("count", n))
		e := events.New(events.BorrowingsOverdue, now)
		e.Count = n
		s.publish(ctx, e)
	}
	return n, nil
}

// ReconcileResult reports how many denormalized values were corrected.
type ReconcileResult struct {
	Users  int64 `json:"users"`
	Copies int64 `json:"copies"`
}

// Reconcile recomputes every user's held-borrowings counter and every copy's
// availability from the borrowings table.
func (s *Service) Reconcile(ctx context.Context) (_ ReconcileResult, err error) {
	ctx, span := s.startSpan(ctx, "Reconcile")
	defer func() { err = s.finish(span, "reconcile", err) }()

	var res ReconcileResult
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		if res.Users, err = tx.Users.ReconcileActiveBorrowings(ctx); err != nil {
			return err
		}
		res.Copies, err = tx.Copies.ReconcileAvailability(ctx)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	if res.Users > 0 || res.Copies > 0 {
		s.logger.Warn("reconciled lending counters", zap.Int64("users", res.Users), zap.Int64("copies", res.Copies))
	}
	return res, nil
}

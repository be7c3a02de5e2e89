package auth

import (
	"context"

	"mediaLending/internal/apperr"
	"mediaLending/models"
)

// UserLookup is the slice of the user repository needed for role checks.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// CanActOn reports whether p may read or modify a record owned by ownerID.
// Admins may act on any record; everyone else only on their own.
func CanActOn(p *Principal, ownerID int64) bool {
	if p == nil {
		return false
	}
	return p.IsAdmin() || p.UserID == ownerID
}

// RequirePrincipal ensures a principal is present in context.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	return p, nil
}

// RequireAdmin ensures the caller is an admin principal AND that the underlying
// user still exists with role ADMIN, so a demoted user's old token stops working.
func RequireAdmin(ctx context.Context, users UserLookup) (*Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("only admin can perform this action")
	}
	if users == nil {
		return p, nil
	}
	u, err := users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Internal("get user", err)
	}
	if !u.IsAdmin() {
		return nil, apperr.Forbidden("only admin can perform this action")
	}
	return p, nil
}

// Package accounts handles registration, login and user administration.
package accounts

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mediaLending/internal/apperr"
	"mediaLending/internal/auth"
	"mediaLending/internal/metrics"
	"mediaLending/internal/ratelimit"
	"mediaLending/models"
	"mediaLending/repository"
)

const (
	// DefaultLockAfter is the number of consecutive failed logins that lock an account.
	DefaultLockAfter = 5

	minPasswordLength = 8
)

// Service manages user accounts.
type Service struct {
	store      *repository.Store
	tokens     *auth.TokenIssuer
	limiter    ratelimit.Limiter
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
	lockAfter  int
	bcryptCost int
}

// Option customizes a Service.
type Option func(*Service)

func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func NewService(store *repository.Store, tokens *auth.TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tokens:     tokens,
		limiter:    ratelimit.Noop{},
		logger:     zap.NewNop(),
		now:        time.Now,
		lockAfter:  DefaultLockAfter,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

// RegisterInput holds the sign-up form.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a USER account. A taken email is a BadRequest.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.BadRequest("invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperr.BadRequest("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, s.internal("hash password", err)
	}
	u, err := s.store.Users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         models.RoleUser,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperr.BadRequest("email %s is already registered", email)
		}
		return nil, s.internal("create user", err)
	}
	s.logger.Info("user registered", zap.Int64("user_id", u.ID))
	return u, nil
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        *models.User `json:"user"`
}

// Login checks credentials and issues an access token. Unknown email and
// wrong password are both Unauthorized. A locked account is Forbidden, and
// the failure that reaches the lock threshold locks it.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	allowed, err := s.limiter.Allow(ctx, email)
	if err != nil {
		s.logger.Warn("login rate limiter unavailable", zap.Error(err))
	}
	if !allowed {
		s.metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		return nil, apperr.RateLimited("too many login attempts, try again later")
	}

	u, err := s.store.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, s.internal("get user", err)
	}
	if u == nil {
		s.metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if u.IsLocked {
		s.metrics.LoginAttempts.WithLabelValues("locked").Inc()
		return nil, apperr.Forbidden("account is locked")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, s.internal("compare password", err)
		}
		attempts, locked, err := s.store.Users.RecordLoginFailure(ctx, u.ID, s.lockAfter)
		if err != nil {
			return nil, s.internal("record login failure", err)
		}
		if locked {
			s.metrics.LoginAttempts.WithLabelValues("locked").Inc()
			s.logger.Warn("account locked", zap.Int64("user_id", u.ID), zap.Int("failed_attempts", attempts))
			return nil, apperr.Forbidden("account is locked after %d failed attempts", attempts)
		}
		s.metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, apperr.Unauthorized("invalid email or password")
	}

	at := s.now().UTC().Truncate(time.Second)
	if err := s.store.Users.RecordLoginSuccess(ctx, u.ID, at); err != nil {
		return nil, s.internal("record login", err)
	}
	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn("failed to reset login rate limit", zap.Error(err))
	}
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, s.internal("issue token", err)
	}
	u.FailedAttempts = 0
	u.LastLogin = &at

	s.metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.logger.Info("user logged in", zap.Int64("user_id", u.ID))
	return &LoginResult{AccessToken: token, ExpiresAt: exp, User: u}, nil
}

// Get returns the account of id. Users may only read their own account.
func (s *Service) Get(ctx context.Context, id int64, actor *auth.Principal) (*models.User, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	if !auth.CanActOn(actor, id) {
		return nil, apperr.Forbidden("you can only view your own account")
	}
	return s.user(ctx, id)
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, actor *auth.Principal) (*models.User, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	return s.user(ctx, actor.UserID)
}

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Search string
	Role   *models.Role
	Skip   int
	Take   int
}

func (s *Service) List(ctx context.Context, f UserFilter) (models.Page[models.User], error) {
	if f.Role != nil && !f.Role.Valid() {
		return models.Page[models.User]{}, apperr.BadRequest("unknown role %q", *f.Role)
	}
	skip, take := repository.NormalizePage(f.Skip, f.Take)
	items, total, err := s.store.Users.List(ctx, repository.ListUsersParams{Search: f.Search, Role: f.Role, Skip: skip, Take: take})
	if err != nil {
		return models.Page[models.User]{}, s.internal("list users", err)
	}
	return models.Page[models.User]{Items: items, Total: total, Skip: skip, Take: take}, nil
}

// ProfileInput changes the caller's display names; nil fields stay as they are.
type ProfileInput struct {
	FirstName *string
	LastName  *string
}

func (s *Service) UpdateProfile(ctx context.Context, actor *auth.Principal, in ProfileInput) (*models.User, error) {
	u, err := s.Me(ctx, actor)
	if err != nil {
		return nil, err
	}
	first, last := u.FirstName, u.LastName
	if in.FirstName != nil {
		first = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		last = strings.TrimSpace(*in.LastName)
	}
	if err := s.store.Users.UpdateProfile(ctx, u.ID, first, last); err != nil {
		return nil, s.internal("update profile", err)
	}
	return s.user(ctx, u.ID)
}

// SetRole changes the role of a user. Admins cannot demote themselves.
func (s *Service) SetRole(ctx context.Context, id int64, role models.Role, actor *auth.Principal) (*models.User, error) {
	if !role.Valid() {
		return nil, apperr.BadRequest("unknown role %q", role)
	}
	if actor != nil && actor.UserID == id && role != models.RoleAdmin {
		return nil, apperr.BadRequest("you cannot remove your own admin role")
	}
	if _, err := s.user(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.Users.UpdateRole(ctx, id, role); err != nil {
		return nil, s.internal("update role", err)
	}
	s.logger.Info("user role changed", zap.Int64("user_id", id), zap.String("role", string(role)))
	return s.user(ctx, id)
}

// Unlock clears the lockout of an account.
func (s *Service) Unlock(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users.Unlock(ctx, id); err != nil {
		return nil, s.internal("unlock user", err)
	}
	if err := s.limiter.Reset(ctx, u.Email); err != nil {
		s.logger.Warn("failed to reset login rate limit", zap.Error(err))
	}
	s.logger.Info("user unlocked", zap.Int64("user_id", id))
	return s.user(ctx, id)
}

// CreateAdmin registers an account and promotes it to ADMIN. It backs the
// bootstrap command of lendingctl.
func (s *Service) CreateAdmin(ctx context.Context, in RegisterInput) (*models.User, error) {
	u, err := s.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users.UpdateRole(ctx, u.ID, models.RoleAdmin); err != nil {
		return nil, s.internal("update role", err)
	}
	return s.user(ctx, u.ID)
}

func (s *Service) user(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.store.Users.GetByID(ctx, id)
	if err != nil {
		return nil, s.internal("get user", err)
	}
	if u == nil {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return u, nil
}

func (s *Service) internal(op string, err error) error {
	s.logger.Error("accounts operation failed", zap.String("operation", op), zap.Error(err))
	return apperr.Internal(op+" failed", err)
}

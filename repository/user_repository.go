package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"mediaLending/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, failed_attempts, is_locked, last_login, active_borrowings_count, created_at, updated_at`

type UserRepository struct {
	db sqlx.ExtContext
}

func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. Email is stored lower-cased; Role defaults to USER.
// Returns the created User with its generated ID.
func (r *UserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if u == nil {
		return nil, errors.New("user is nil")
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	at := now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO users (email, password_hash, first_name, last_name, role, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
		normalizeEmail(u.Email), u.PasswordHash, u.FirstName, u.LastName, string(u.Role), at, at)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u models.User
	err := sqlx.GetContext(ctx, r.db, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u models.User
	err := sqlx.GetContext(ctx, r.db, &u, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// ListUsersParams filters the admin user listing.
type ListUsersParams struct {
	Search string // matches email, first or last name
	Role   *models.Role
	Skip   int
	Take   int
}

// List returns a page of users ordered by id and the total number of matches.
func (r *UserRepository) List(ctx context.Context, p ListUsersParams) ([]models.User, int, error) {
	p.Skip, p.Take = NormalizePage(p.Skip, p.Take)
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	where := make([]exp.Expression, 0, 2)
	if s := strings.TrimSpace(p.Search); s != "" {
		like := likePattern(s)
		where = append(where, goqu.Or(
			goqu.C("email").Like(like),
			goqu.C("first_name").Like(like),
			goqu.C("last_name").Like(like),
		))
	}
	if p.Role != nil {
		where = append(where, goqu.C("role").Eq(string(*p.Role)))
	}

	base := dialect.From("users").Where(where...)
	cols := make([]any, 0, 12)
	for _, c := range strings.Split(userColumns, ", ") {
		cols = append(cols, goqu.C(c))
	}
	return selectPage[models.User](ctx, r.db, base, cols, []exp.OrderedExpression{goqu.C("id").Asc()}, p.Skip, p.Take)
}

// UpdateProfile sets the user's display names.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, firstName, lastName string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE users SET first_name = ?, last_name = ?, updated_at = ? WHERE id = ?`, firstName, lastName, now(), id)
	return err
}

// UpdatePasswordHash replaces the stored password hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, now(), id)
	return err
}

// UpdateRole sets the role for the given user.
func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, string(role), now(), id)
	return err
}

// RecordLoginFailure increments failed_attempts and locks the account once
// the count reaches lockAfter. Returns the new attempt count and lock state.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id int64, lockAfter int) (int, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `
UPDATE users
SET failed_attempts = failed_attempts + 1,
    is_locked = CASE WHEN failed_attempts + 1 >= ? THEN 1 ELSE is_locked END,
    updated_at = ?
WHERE id = ?`, lockAfter, now(), id)
	if err != nil {
		return 0, false, err
	}
	var row struct {
		FailedAttempts int  `db:"failed_attempts"`
		IsLocked       bool `db:"is_locked"`
	}
	if err := sqlx.GetContext(ctx, r.db, &row, `SELECT failed_attempts, is_locked FROM users WHERE id = ?`, id); err != nil {
		return 0, false, err
	}
	return row.FailedAttempts, row.IsLocked, nil
}

// RecordLoginSuccess resets failed_attempts and stamps last_login.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE users SET failed_attempts = 0, last_login = ?, updated_at = ? WHERE id = ?`, ts(at), now(), id)
	return err
}

// Unlock clears the lock and the failure counter.
func (r *UserRepository) Unlock(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE users SET failed_attempts = 0, is_locked = 0, updated_at = ? WHERE id = ?`, now(), id)
	return err
}

// IncrementActiveBorrowings adds one to the user's held-borrowings counter,
// but only while the counter is below max. Reports whether the row changed.
func (r *UserRepository) IncrementActiveBorrowings(ctx context.Context, id int64, max int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE users SET active_borrowings_count = active_borrowings_count + 1, updated_at = ? WHERE id = ? AND active_borrowings_count < ?`, now(), id, max)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DecrementActiveBorrowings subtracts one from the counter, never going below zero.
func (r *UserRepository) DecrementActiveBorrowings(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE users SET active_borrowings_count = MAX(active_borrowings_count - 1, 0), updated_at = ? WHERE id = ?`, now(), id)
	return err
}

// ReconcileActiveBorrowings recomputes every drifted counter from the
// borrowings table and returns how many users were corrected.
func (r *UserRepository) ReconcileActiveBorrowings(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	const held = `(SELECT COUNT(*) FROM borrowings b WHERE b.user_id = users.id AND b.status IN ('ACTIVE', 'OVERDUE'))`
	res, err := r.db.ExecContext(ctx, `UPDATE users SET active_borrowings_count = `+held+`, updated_at = ? WHERE active_borrowings_count <> `+held, now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package repository

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

const (
	queryTimeout = 3 * time.Second
	listTimeout  = 5 * time.Second

	defaultTake = 20
	maxTake     = 100
)

var dialect = goqu.Dialect("sqlite3")

// timeNow is the repository's clock for created_at/updated_at bookkeeping.
var timeNow = func() time.Time { return time.Now() }

// ts normalizes a timestamp before it is written: UTC at second precision,
// so SQLite's textual DATETIME values compare correctly as strings.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func now() time.Time { return ts(timeNow()) }

// Store bundles all repositories over one connection pool, or over one
// transaction when obtained inside InTx.
type Store struct {
	db *sqlx.DB // nil inside a transaction

	Users      *UserRepository
	Resources  *ResourceRepository
	Copies     *CopyRepository
	Borrowings *BorrowingRepository
	Reviews    *ReviewRepository
	Contacts   *ContactRepository
}

// NewStore creates a Store backed by the connection pool.
func NewStore(db *sqlx.DB) *Store {
	s := newStore(db)
	s.db = db
	return s
}

func newStore(q sqlx.ExtContext) *Store {
	return &Store{
		Users:      NewUserRepository(q),
		Resources:  NewResourceRepository(q),
		Copies:     NewCopyRepository(q),
		Borrowings: NewBorrowingRepository(q),
		Reviews:    NewReviewRepository(q),
		Contacts:   NewContactRepository(q),
	}
}

// DB exposes the underlying pool (nil inside a transaction).
func (s *Store) DB() *sqlx.DB { return s.db }

// InTx runs fn inside a single transaction: either every write made through
// the Store passed to fn commits, or none does. Transactions that fail to
// start or commit because the database is busy are retried with exponential
// backoff; errors returned by fn are never retried unless they are busy errors.
// Calling InTx on a transactional Store runs fn in the existing transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	return retryOnBusy(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(newStore(tx)); err != nil {
			return err
		}
		return tx.Commit()
	})
}

const (
	busyMaxAttempts  = 5
	busyBaseDelay    = 20 * time.Millisecond
	busyJitterFactor = 0.3
)

// retryOnBusy executes fn, retrying only on SQLITE_BUSY / SQLITE_LOCKED.
// Retry schedule: 0, 20, 40, 80, 160 ms (plus up to 30% jitter).
func retryOnBusy(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := busyBaseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * busyJitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !IsBusy(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// IsBusy reports whether err is SQLite's transient lock contention.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// NormalizePage clamps skip/take: negative skip becomes 0, take defaults to 20 and is capped at 100.
func NormalizePage(skip, take int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = defaultTake
	}
	if take > maxTake {
		take = maxTake
	}
	return skip, take
}

// selectPage runs the count and the page query for a filtered dataset.
func selectPage[T any](ctx context.Context, q sqlx.QueryerContext, base *goqu.SelectDataset, cols []any, order []exp.OrderedExpression, skip, take int) ([]T, int, error) {
	countSQL, countArgs, err := base.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := sqlx.GetContext(ctx, q, &total, countSQL, countArgs...); err != nil {
		return nil, 0, err
	}

	pageSQL, pageArgs, err := base.Select(cols...).
		Order(order...).
		Limit(uint(take)).
		Offset(uint(skip)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, err
	}
	out := []T{}
	if err := sqlx.SelectContext(ctx, q, &out, pageSQL, pageArgs...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func likePattern(s string) string {
	return "%" + s + "%"
}

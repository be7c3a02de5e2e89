package lending

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mediaLending/internal/auth"
	"mediaLending/internal/events"
	"mediaLending/internal/metrics"
	"mediaLending/internal/testutil"
	"mediaLending/models"
	"mediaLending/repository"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db      *sqlx.DB
	store   *repository.Store
	svc     *Service
	pub     *recorder
	metrics *metrics.Metrics
	now     time.Time
	seq     int
}

var epoch = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, policy ...func(*Policy)) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.OpenInMemoryDB(t), policy...)
}

func newFixtureOn(t *testing.T, d *sqlx.DB, policy ...func(*Policy)) *fixture {
	t.Helper()
	f := &fixture{
		db:      d,
		store:   repository.NewStore(d),
		pub:     &recorder{},
		metrics: metrics.New(nil),
		now:     epoch,
	}
	p := DefaultPolicy()
	for _, fn := range policy {
		fn(&p)
	}
	f.svc = NewService(f.store, p,
		WithClock(func() time.Time { return f.now }),
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(f.metrics),
		WithPublisher(f.pub),
	)
	return f
}

func (f *fixture) user(t *testing.T) *models.User {
	t.Helper()
	f.seq++
	u, err := f.store.Users.Create(context.Background(), &models.User{
		Email:        fmt.Sprintf("user%d@example.com", f.seq),
		PasswordHash: "x",
		FirstName:    "User",
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) admin(t *testing.T) *models.User {
	t.Helper()
	u := f.user(t)
	require.NoError(t, f.store.Users.UpdateRole(context.Background(), u.ID, models.RoleAdmin))
	u.Role = models.RoleAdmin
	return u
}

func (f *fixture) copyOf(t *testing.T, title string) *models.Copy {
	t.Helper()
	ctx := context.Background()
	r, err := f.store.Resources.Create(ctx, &models.Resource{Title: title, Type: models.ResourceTypeBook})
	require.NoError(t, err)
	c, err := f.store.Copies.Create(ctx, r.ID, "good")
	require.NoError(t, err)
	return c
}

func (f *fixture) reloadUser(t *testing.T, id int64) *models.User {
	t.Helper()
	u, err := f.store.Users.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func (f *fixture) reloadCopy(t *testing.T, id int64) *models.Copy {
	t.Helper()
	c, err := f.store.Copies.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (f *fixture) reloadBorrowing(t *testing.T, id int64) *models.Borrowing {
	t.Helper()
	b, err := f.store.Borrowings.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func (f *fixture) borrowingCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.Get(&n, `SELECT COUNT(*) FROM borrowings`))
	return n
}

// requireConsistent checks that copy availability and user counters agree
// with the borrowings table, and that nobody exceeds the limit.
func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	var n int
	require.NoError(t, f.db.Get(&n, `
SELECT COUNT(*) FROM copies c
WHERE c.available = EXISTS (SELECT 1 FROM borrowings b WHERE b.copy_id = c.id AND b.status IN ('ACTIVE', 'OVERDUE'))`))
	require.Zero(t, n, "copies whose availability disagrees with their borrowings")

	require.NoError(t, f.db.Get(&n, `
SELECT COUNT(*) FROM users u
WHERE u.active_borrowings_count <> (SELECT COUNT(*) FROM borrowings b WHERE b.user_id = u.id AND b.status IN ('ACTIVE', 'OVERDUE'))`))
	require.Zero(t, n, "users whose counter disagrees with their borrowings")

	require.NoError(t, f.db.Get(&n, `SELECT COUNT(*) FROM users WHERE active_borrowings_count > ?`, f.svc.Policy().MaxActiveBorrowings))
	require.Zero(t, n, "users above the borrowing limit")
}

func principal(u *models.User) *auth.Principal {
	return &auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
}

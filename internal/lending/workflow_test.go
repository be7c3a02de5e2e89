package lending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaLending/internal/apperr"
	"mediaLending/internal/config"
	"mediaLending/internal/events"
	"mediaLending/models"
)

func TestCreate_LendsCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	c := f.copyOf(t, "Dune")

	b, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: c.ID})
	require.NoError(t, err)

	assert.Equal(t, models.BorrowingStatusActive, b.Status)
	assert.True(t, b.BorrowedAt.Equal(epoch))
	assert.True(t, b.DueDate.Equal(epoch.Add(14*24*time.Hour)))
	require.NotNil(t, b.Copy)
	require.NotNil(t, b.Copy.Resource)
	assert.Equal(t, "Dune", b.Copy.Resource.Title)
	require.NotNil(t, b.User)
	assert.Equal(t, u.Email, b.User.Email)

	assert.False(t, f.reloadCopy(t, c.ID).Available)
	assert.Equal(t, 1, f.reloadUser(t, u.ID).ActiveBorrowingsCount)
	assert.Equal(t, []events.Type{events.BorrowingCreated}, f.pub.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LendingOperations.WithLabelValues("created")))
	f.requireConsistent(t)
}

func TestCreate_ExplicitDueDateAndComments(t *testing.T) {
	f := newFixture(t)
	u := f.user(t)
	c := f.copyOf(t, "Dune")
	due := epoch.Add(3 * 24 * time.Hour)
	note := "gift wrap"

	b, err := f.svc.Create(context.Background(), u.ID, CreateInput{CopyID: c.ID, DueDate: &due, Comments: &note})
	require.NoError(t, err)
	assert.True(t, b.DueDate.Equal(due))
	require.NotNil(t, b.Comments)
	assert.Equal(t, note, *b.Comments)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	free := f.copyOf(t, "Free")
	taken := f.copyOf(t, "Taken")
	_, err := f.svc.Create(ctx, f.user(t).ID, CreateInput{CopyID: taken.ID})
	require.NoError(t, err)
	past := epoch.Add(-time.Hour)

	tests := []struct {
		name   string
		userID int64
		in     CreateInput
		want   error
	}{
		{"unknown user", 9999, CreateInput{CopyID: free.ID}, apperr.ErrNotFound},
		{"unknown copy", u.ID, CreateInput{CopyID: 9999}, apperr.ErrNotFound},
		{"copy already lent", u.ID, CreateInput{CopyID: taken.ID}, apperr.ErrBadRequest},
		{"due date in the past", u.ID, CreateInput{CopyID: free.ID, DueDate: &past}, apperr.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.borrowingCount(t)
			_, err := f.svc.Create(ctx, tt.userID, tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, before, f.borrowingCount(t))
			f.requireConsistent(t)
		})
	}
	assert.True(t, f.reloadCopy(t, free.ID).Available)
	assert.Zero(t, f.reloadUser(t, u.ID).ActiveBorrowingsCount)
}

func TestCreate_LimitReached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	for i := 0; i < 5; i++ {
		_, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: f.copyOf(t, "Book").ID})
		require.NoError(t, err)
	}
	sixth := f.copyOf(t, "Sixth")

	_, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: sixth.ID})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	assert.Equal(t, 5, f.borrowingCount(t))
	assert.True(t, f.reloadCopy(t, sixth.ID).Available)
	assert.Equal(t, 5, f.reloadUser(t, u.ID).ActiveBorrowingsCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LendingRejections.WithLabelValues("create", "forbidden")))
	f.requireConsistent(t)
}

func TestCreateByAdmin(t *testing.T) {
	f := newFixture(t)
	u := f.user(t)
	c := f.copyOf(t, "Dune")

	b, err := f.svc.CreateByAdmin(context.Background(), CreateByAdminInput{UserID: u.ID, CopyID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, u.ID, b.UserID)
	f.requireConsistent(t)
}

func TestReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	c := f.copyOf(t, "Dune")
	b, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: c.ID})
	require.NoError(t, err)

	f.now = epoch.Add(48 * time.Hour)
	got, err := f.svc.Return(ctx, b.ID, principal(u))
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusReturned, got.Status)
	require.NotNil(t, got.ReturnedAt)
	assert.True(t, got.ReturnedAt.Equal(f.now))
	assert.True(t, f.reloadCopy(t, c.ID).Available)
	assert.Zero(t, f.reloadUser(t, u.ID).ActiveBorrowingsCount)
	f.requireConsistent(t)

	_, err = f.svc.Return(ctx, b.ID, principal(u))
	require.ErrorIs(t, err, apperr.ErrBadRequest)
	assert.Zero(t, f.reloadUser(t, u.ID).ActiveBorrowingsCount)
	assert.Equal(t, []events.Type{events.BorrowingCreated, events.BorrowingReturned}, f.pub.types())
	f.requireConsistent(t)
}

func TestReturn_Access(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t)
	other := f.user(t)
	admin := f.admin(t)

	b1, err := f.svc.Create(ctx, owner.ID, CreateInput{CopyID: f.copyOf(t, "A").ID})
	require.NoError(t, err)
	b2, err := f.svc.Create(ctx, owner.ID, CreateInput{CopyID: f.copyOf(t, "B").ID})
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, b1.ID, principal(other))
	require.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, models.BorrowingStatusActive, f.reloadBorrowing(t, b1.ID).Status)

	_, err = f.svc.Return(ctx, b1.ID, principal(admin))
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, b2.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, 9999, principal(admin))
	require.ErrorIs(t, err, apperr.ErrNotFound)
	f.requireConsistent(t)
}

func TestReturn_OverdueBorrowing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	c := f.copyOf(t, "Dune")
	b, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: c.ID})
	require.NoError(t, err)

	f.now = epoch.Add(30 * 24 * time.Hour)
	n, err := f.svc.CheckOverdue(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := f.svc.Return(ctx, b.ID, principal(u))
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusReturned, got.Status)
	assert.True(t, f.reloadCopy(t, c.ID).Available)
	f.requireConsistent(t)
}

func TestUpdate_Renew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	b, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: f.copyOf(t, "Dune").ID})
	require.NoError(t, err)

	got, err := f.svc.Update(ctx, b.ID, UpdateInput{Renew: true}, principal(u))
	require.NoError(t, err)
	assert.True(t, got.DueDate.Equal(b.DueDate.Add(14*24*time.Hour)))
	assert.Equal(t, 1, got.RenewalCount)
	assert.Equal(t, models.BorrowingStatusActive, got.Status)

	got, err = f.svc.Update(ctx, b.ID, UpdateInput{Renew: true}, principal(u))
	require.NoError(t, err)
	assert.True(t, got.DueDate.Equal(b.DueDate.Add(28*24*time.Hour)))
	assert.Equal(t, 2, got.RenewalCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LendingOperations.WithLabelValues("renewed")))
	f.requireConsistent(t)
}

func TestUpdate_RenewRejections(t *testing.T) {
	f := newFixture(t, func(p *Policy) { p.MaxRenewals = 1 })
	ctx := context.Background()
	u := f.user(t)
	other := f.user(t)
	b, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: f.copyOf(t, "Dune").ID})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Renew: true}, principal(other))
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Renew: true}, principal(u))
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Renew: true}, principal(u))
	require.ErrorIs(t, err, apperr.ErrBadRequest)
	assert.Equal(t, 1, f.reloadBorrowing(t, b.ID).RenewalCount)

	f.now = epoch.Add(60 * 24 * time.Hour)
	_, err = f.svc.CheckOverdue(ctx)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Renew: true}, principal(u))
	require.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = f.svc.Update(ctx, 9999, UpdateInput{Renew: true}, principal(u))
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdate_StatusReturnedDelegatesToReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	c := f.copyOf(t, "Dune")
	b, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: c.ID})
	require.NoError(t, err)

	returned := models.BorrowingStatusReturned
	got, err := f.svc.Update(ctx, b.ID, UpdateInput{Status: &returned}, principal(u))
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusReturned, got.Status)
	assert.True(t, f.reloadCopy(t, c.ID).Available)
	f.requireConsistent(t)
}

func TestUpdate_EditFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	admin := f.admin(t)
	b, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: f.copyOf(t, "Dune").ID})
	require.NoError(t, err)

	note := "left at front desk"
	due := epoch.Add(20 * 24 * time.Hour)
	overdue := models.BorrowingStatusOverdue
	got, err := f.svc.Update(ctx, b.ID, UpdateInput{Comments: &note, DueDate: &due, Status: &overdue}, principal(admin))
	require.NoError(t, err)
	require.NotNil(t, got.Comments)
	assert.Equal(t, note, *got.Comments)
	assert.True(t, got.DueDate.Equal(due))
	assert.Equal(t, models.BorrowingStatusOverdue, got.Status)
	f.requireConsistent(t)

	active := models.BorrowingStatusActive
	got, err = f.svc.Update(ctx, b.ID, UpdateInput{Status: &active}, principal(u))
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusActive, got.Status)
	f.requireConsistent(t)
}

func TestUpdate_EditRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	other := f.user(t)
	b, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: f.copyOf(t, "Dune").ID})
	require.NoError(t, err)

	note := "x"
	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Comments: &note}, nil)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Comments: &note}, principal(other))
	require.ErrorIs(t, err, apperr.ErrForbidden)

	early := epoch.Add(-24 * time.Hour)
	_, err = f.svc.Update(ctx, b.ID, UpdateInput{DueDate: &early}, principal(u))
	require.ErrorIs(t, err, apperr.ErrBadRequest)

	bogus := models.BorrowingStatus("LOST")
	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Status: &bogus}, principal(u))
	require.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = f.svc.Return(ctx, b.ID, principal(u))
	require.NoError(t, err)
	active := models.BorrowingStatusActive
	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Status: &active}, principal(u))
	require.ErrorIs(t, err, apperr.ErrBadRequest)
	assert.Equal(t, models.BorrowingStatusReturned, f.reloadBorrowing(t, b.ID).Status)
	f.requireConsistent(t)
}

func TestCheckOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	short := epoch.Add(24 * time.Hour)
	late1, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: f.copyOf(t, "A").ID, DueDate: &short})
	require.NoError(t, err)
	late2, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: f.copyOf(t, "B").ID, DueDate: &short})
	require.NoError(t, err)
	onTime, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: f.copyOf(t, "C").ID})
	require.NoError(t, err)
	returned, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: f.copyOf(t, "D").ID, DueDate: &short})
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, returned.ID, nil)
	require.NoError(t, err)

	f.now = epoch.Add(2 * 24 * time.Hour)
	n, err := f.svc.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.Equal(t, models.BorrowingStatusOverdue, f.reloadBorrowing(t, late1.ID).Status)
	assert.Equal(t, models.BorrowingStatusOverdue, f.reloadBorrowing(t, late2.ID).Status)
	assert.Equal(t, models.BorrowingStatusActive, f.reloadBorrowing(t, onTime.ID).Status)
	assert.Equal(t, models.BorrowingStatusReturned, f.reloadBorrowing(t, returned.ID).Status)
	assert.False(t, f.reloadCopy(t, late1.CopyID).Available)
	assert.Equal(t, 3, f.reloadUser(t, u.ID).ActiveBorrowingsCount)

	n, err = f.svc.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	types := f.pub.types()
	assert.Equal(t, events.BorrowingsOverdue, types[len(types)-1])
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LendingOperations.WithLabelValues("overdue_marked")))
	f.requireConsistent(t)
}

func TestCheckOverdue_EmptyStore(t *testing.T) {
	f := newFixture(t)
	n, err := f.svc.CheckOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.pub.types())
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	c := f.copyOf(t, "Dune")
	_, err := f.svc.Create(ctx, u.ID, CreateInput{CopyID: c.ID})
	require.NoError(t, err)

	res, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{}, res)

	_, err = f.db.Exec(`UPDATE users SET active_borrowings_count = 4 WHERE id = ?`, u.ID)
	require.NoError(t, err)
	_, err = f.db.Exec(`UPDATE copies SET available = 1 WHERE id = ?`, c.ID)
	require.NoError(t, err)

	res, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Users: 1, Copies: 1}, res)
	f.requireConsistent(t)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	u := f.user(t)

	b, err := f.svc.Create(context.Background(), u.ID, CreateInput{CopyID: f.copyOf(t, "Dune").ID})
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusActive, b.Status)
	f.requireConsistent(t)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.LendingConfig{})
	assert.Equal(t, DefaultPolicy(), p)

	p = PolicyFromConfig(config.LendingConfig{
		MaxActiveBorrowings: 3,
		LoanPeriod:          7 * 24 * time.Hour,
		RenewalPeriod:       24 * time.Hour,
		MaxRenewals:         2,
	})
	assert.Equal(t, 3, p.MaxActiveBorrowings)
	assert.Equal(t, 7*24*time.Hour, p.LoanPeriod)
	assert.Equal(t, 24*time.Hour, p.RenewalPeriod)
	assert.Equal(t, 2, p.MaxRenewals)
}

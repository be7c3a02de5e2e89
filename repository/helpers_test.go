package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mediaLending/internal/testutil"
	"mediaLending/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testutil.OpenInMemoryDB(t))
}

func seedUser(t *testing.T, s *Store, email string) *models.User {
	t.Helper()
	u, err := s.Users.Create(context.Background(), &models.User{Email: email, PasswordHash: "x", FirstName: "Test", LastName: email})
	require.NoError(t, err)
	return u
}

func seedResource(t *testing.T, s *Store, title string, typ models.ResourceType) *models.Resource {
	t.Helper()
	author := "Author of " + title
	r, err := s.Resources.Create(context.Background(), &models.Resource{Title: title, Type: typ, Author: &author})
	require.NoError(t, err)
	return r
}

func seedCopy(t *testing.T, s *Store, resourceID int64) *models.Copy {
	t.Helper()
	c, err := s.Copies.Create(context.Background(), resourceID, "good")
	require.NoError(t, err)
	return c
}

func seedBorrowing(t *testing.T, s *Store, userID, copyID int64, borrowedAt, due time.Time) *models.Borrowing {
	t.Helper()
	ctx := context.Background()
	b, err := s.Borrowings.Create(ctx, &models.Borrowing{UserID: userID, CopyID: copyID, BorrowedAt: borrowedAt, DueDate: due})
	require.NoError(t, err)
	ok, err := s.Copies.MarkUnavailable(ctx, copyID)
	require.NoError(t, err)
	require.True(t, ok, fmt.Sprintf("copy %d already unavailable", copyID))
	return b
}

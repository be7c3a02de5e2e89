package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"mediaLending/internal/accounts"
	"mediaLending/internal/auth"
	"mediaLending/internal/catalog"
	"mediaLending/internal/contact"
	"mediaLending/internal/lending"
	"mediaLending/internal/metrics"
	"mediaLending/internal/testutil"
	"mediaLending/models"
	"mediaLending/repository"
)

const testSecret = "http-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	store  *repository.Store
	seq    int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d := testutil.OpenInMemoryDB(t)
	store := repository.NewStore(d)
	log := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svc := Services{
		Lending:  lending.NewService(store, lending.DefaultPolicy(), lending.WithLogger(log), lending.WithMetrics(m)),
		Catalog:  catalog.NewService(store, log),
		Accounts: accounts.NewService(store, auth.NewTokenIssuer(testSecret, time.Hour), accounts.WithBcryptCost(bcrypt.MinCost), accounts.WithMetrics(m), accounts.WithLogger(log)),
		Contact:  contact.NewService(store, log),
		Users:    store.Users,
		Ping:     d.PingContext,
	}
	return &testEnv{
		router: NewRouter(svc, Options{JWTSecret: testSecret, Logger: log, Metrics: m, Gatherer: reg}),
		store:  store,
	}
}

// user creates an account directly in the store and returns it with a token.
func (e *testEnv) user(t *testing.T, role models.Role) (*models.User, string) {
	t.Helper()
	e.seq++
	ctx := context.Background()
	u, err := e.store.Users.Create(ctx, &models.User{Email: fmt.Sprintf("member%d@example.com", e.seq), PasswordHash: "x"})
	require.NoError(t, err)
	if role == models.RoleAdmin {
		require.NoError(t, e.store.Users.UpdateRole(ctx, u.ID, role))
		u.Role = role
	}
	return u, testutil.GenerateJWTHS256(t, testSecret, u.ID, string(role))
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decode[errorResponse](t, w)
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Error)
	return body
}

// shelve creates a resource with one copy through the admin API.
func (e *testEnv) shelve(t *testing.T, adminToken, title string) models.Copy {
	t.Helper()
	w := e.do(t, http.MethodPost, "/resources", adminToken, map[string]any{"title": title, "type": "BOOK"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[models.Resource](t, w)

	w = e.do(t, http.MethodPost, fmt.Sprintf("/resources/%d/copies", res.ID), adminToken, map[string]any{"condition": "good"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Copy](t, w)
}

func TestBorrowingLifecycle(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.user(t, models.RoleAdmin)
	member, token := e.user(t, models.RoleUser)
	_, otherToken := e.user(t, models.RoleUser)
	cp := e.shelve(t, adminToken, "Dune")

	w := e.do(t, http.MethodPost, "/borrowings", token, map[string]any{"copyId": cp.ID, "comments": "first loan"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[models.Borrowing](t, w)
	assert.Equal(t, member.ID, b.UserID)
	assert.Equal(t, models.BorrowingStatusActive, b.Status)
	require.NotNil(t, b.Copy)
	assert.False(t, b.Copy.Available)

	w = e.do(t, http.MethodPost, "/borrowings", otherToken, map[string]any{"copyId": cp.ID})
	requireError(t, w, http.StatusBadRequest, "bad_request")

	w = e.do(t, http.MethodGet, fmt.Sprintf("/borrowings/%d", b.ID), otherToken, nil)
	requireError(t, w, http.StatusForbidden, "forbidden")

	w = e.do(t, http.MethodGet, "/borrowings/my?status=ACTIVE", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[[]models.Borrowing](t, w)
	require.Len(t, mine, 1)
	assert.Equal(t, b.ID, mine[0].ID)

	w = e.do(t, http.MethodPatch, fmt.Sprintf("/borrowings/%d", b.ID), token, map[string]any{"renew": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	renewed := decode[models.Borrowing](t, w)
	assert.Equal(t, 1, renewed.RenewalCount)
	assert.True(t, renewed.DueDate.After(b.DueDate))

	w = e.do(t, http.MethodPost, fmt.Sprintf("/borrowings/%d/return", b.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.BorrowingStatusReturned, decode[models.Borrowing](t, w).Status)

	w = e.do(t, http.MethodPost, fmt.Sprintf("/borrowings/%d/return", b.ID), token, nil)
	requireError(t, w, http.StatusBadRequest, "bad_request")

	w = e.do(t, http.MethodPost, "/borrowings", otherToken, map[string]any{"copyId": cp.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestBorrowingErrors(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, models.RoleUser)

	w := e.do(t, http.MethodPost, "/borrowings", "", map[string]any{"copyId": 1})
	requireError(t, w, http.StatusUnauthorized, "unauthorized")

	w = e.do(t, http.MethodPost, "/borrowings", "not-a-token", map[string]any{"copyId": 1})
	requireError(t, w, http.StatusUnauthorized, "unauthorized")

	w = e.do(t, http.MethodPost, "/borrowings", token, map[string]any{})
	body := requireError(t, w, http.StatusBadRequest, "bad_request")
	assert.Contains(t, body.Error, "copyId")

	w = e.do(t, http.MethodPost, "/borrowings", token, `{"copyId": 1, "dueDate": "tomorrow"}`)
	requireError(t, w, http.StatusBadRequest, "bad_request")

	w = e.do(t, http.MethodPost, "/borrowings", token, map[string]any{"copyId": 424242})
	requireError(t, w, http.StatusNotFound, "not_found")

	w = e.do(t, http.MethodGet, "/borrowings/my?status=LOST", token, nil)
	requireError(t, w, http.StatusBadRequest, "bad_request")

	w = e.do(t, http.MethodGet, "/borrowings/abc", token, nil)
	requireError(t, w, http.StatusBadRequest, "bad_request")

	w = e.do(t, http.MethodGet, "/borrowings/999", token, nil)
	requireError(t, w, http.StatusNotFound, "not_found")
}

func TestBorrowingLimitIsForbidden(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.user(t, models.RoleAdmin)
	_, token := e.user(t, models.RoleUser)

	for i := 0; i < 5; i++ {
		cp := e.shelve(t, adminToken, fmt.Sprintf("Book %d", i))
		w := e.do(t, http.MethodPost, "/borrowings", token, map[string]any{"copyId": cp.ID})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	cp := e.shelve(t, adminToken, "One too many")
	w := e.do(t, http.MethodPost, "/borrowings", token, map[string]any{"copyId": cp.ID})
	requireError(t, w, http.StatusForbidden, "forbidden")
}

func TestAdminBorrowingRoutes(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.user(t, models.RoleAdmin)
	member, token := e.user(t, models.RoleUser)
	cp := e.shelve(t, adminToken, "Dune")

	w := e.do(t, http.MethodGet, "/borrowings", token, nil)
	requireError(t, w, http.StatusForbidden, "forbidden")

	w = e.do(t, http.MethodPost, "/borrowings/admin/create", token, map[string]any{"copyId": cp.ID, "userId": member.ID})
	requireError(t, w, http.StatusForbidden, "forbidden")

	w = e.do(t, http.MethodPost, "/borrowings/admin/create", adminToken, map[string]any{"copyId": cp.ID, "userId": member.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, member.ID, decode[models.Borrowing](t, w).UserID)

	w = e.do(t, http.MethodGet, fmt.Sprintf("/borrowings?userId=%d&take=10", member.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[models.Page[models.Borrowing]](t, w)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.Take)

	w = e.do(t, http.MethodPost, "/borrowings/check-overdue", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]int64{"updated": 0}, decode[map[string]int64](t, w))
}

func TestAdminCheckUsesStoredRole(t *testing.T) {
	e := newTestEnv(t)
	u, _ := e.user(t, models.RoleUser)
	forged := testutil.GenerateJWTHS256(t, testSecret, u.ID, "ADMIN")

	w := e.do(t, http.MethodPost, "/borrowings/check-overdue", forged, nil)
	requireError(t, w, http.StatusForbidden, "forbidden")
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/auth/register", "", map[string]any{"email": "ada@example.com", "password": "correct horse", "firstName": "Ada"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	w = e.do(t, http.MethodPost, "/auth/register", "", map[string]any{"email": "ada@example.com", "password": "correct horse"})
	requireError(t, w, http.StatusBadRequest, "bad_request")

	w = e.do(t, http.MethodPost, "/auth/register", "", map[string]any{"email": "nope", "password": "correct horse"})
	requireError(t, w, http.StatusBadRequest, "bad_request")

	w = e.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "ada@example.com", "password": "wrong"})
	requireError(t, w, http.StatusUnauthorized, "unauthorized")

	w = e.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "ada@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[accounts.LoginResult](t, w)
	require.NotEmpty(t, login.AccessToken)

	w = e.do(t, http.MethodGet, "/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ada@example.com", decode[models.User](t, w).Email)

	w = e.do(t, http.MethodPatch, "/users/me", login.AccessToken, map[string]any{"lastName": "Lovelace"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Lovelace", decode[models.User](t, w).LastName)
}

func TestUserAdministration(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.user(t, models.RoleAdmin)
	member, token := e.user(t, models.RoleUser)

	w := e.do(t, http.MethodGet, "/users", token, nil)
	requireError(t, w, http.StatusForbidden, "forbidden")

	w = e.do(t, http.MethodGet, "/users?search=member", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[models.Page[models.User]](t, w).Total)

	w = e.do(t, http.MethodPatch, fmt.Sprintf("/users/%d/role", member.ID), adminToken, map[string]any{"role": "GOD"})
	requireError(t, w, http.StatusBadRequest, "bad_request")

	w = e.do(t, http.MethodPatch, fmt.Sprintf("/users/%d/role", member.ID), adminToken, map[string]any{"role": "ADMIN"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RoleAdmin, decode[models.User](t, w).Role)

	w = e.do(t, http.MethodPost, fmt.Sprintf("/users/%d/unlock", member.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, fmt.Sprintf("/users/%d", member.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCatalogRoutes(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.user(t, models.RoleAdmin)
	_, token := e.user(t, models.RoleUser)

	w := e.do(t, http.MethodPost, "/resources", token, map[string]any{"title": "Dune", "type": "BOOK"})
	requireError(t, w, http.StatusForbidden, "forbidden")

	w = e.do(t, http.MethodPost, "/resources", adminToken, map[string]any{"title": "Dune", "type": "SCROLL"})
	requireError(t, w, http.StatusBadRequest, "bad_request")

	cp := e.shelve(t, adminToken, "Dune")

	w = e.do(t, http.MethodGet, "/resources?type=BOOK&available=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[models.Page[models.Resource]](t, w).Total)

	w = e.do(t, http.MethodGet, fmt.Sprintf("/resources/%d", cp.ResourceID), "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	details := decode[models.ResourceDetails](t, w)
	assert.Equal(t, 1, details.TotalCopies)
	assert.Equal(t, 1, details.AvailableCopies)

	w = e.do(t, http.MethodPatch, fmt.Sprintf("/copies/%d", cp.ID), adminToken, map[string]any{"condition": "worn"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "worn", decode[models.Copy](t, w).Condition)

	w = e.do(t, http.MethodPost, fmt.Sprintf("/resources/%d/reviews", cp.ResourceID), token, map[string]any{"rating": 4})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rv := decode[models.Review](t, w)

	w = e.do(t, http.MethodPost, fmt.Sprintf("/resources/%d/reviews", cp.ResourceID), token, map[string]any{"rating": 9})
	requireError(t, w, http.StatusBadRequest, "bad_request")

	w = e.do(t, http.MethodGet, fmt.Sprintf("/resources/%d/reviews", cp.ResourceID), "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]models.Review](t, w), 1)

	w = e.do(t, http.MethodDelete, fmt.Sprintf("/reviews/%d", rv.ID), token, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/borrowings", token, map[string]any{"copyId": cp.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodDelete, fmt.Sprintf("/copies/%d", cp.ID), adminToken, nil)
	requireError(t, w, http.StatusBadRequest, "bad_request")
	w = e.do(t, http.MethodDelete, fmt.Sprintf("/resources/%d", cp.ResourceID), adminToken, nil)
	requireError(t, w, http.StatusBadRequest, "bad_request")
}

func TestContactRoutes(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.user(t, models.RoleAdmin)

	w := e.do(t, http.MethodPost, "/contact", "", map[string]any{"name": "Ada", "email": "ada@example.com", "subject": "Hours", "message": "When?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	c := decode[models.ContactRequest](t, w)

	w = e.do(t, http.MethodGet, "/contact", "", nil)
	requireError(t, w, http.StatusUnauthorized, "unauthorized")

	w = e.do(t, http.MethodPatch, fmt.Sprintf("/contact/%d", c.ID), adminToken, map[string]any{"status": "CLOSED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/contact?status=CLOSED", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[models.Page[models.ContactRequest]](t, w).Total)

	w = e.do(t, http.MethodDelete, fmt.Sprintf("/contact/%d", c.ID), adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestHealthMetricsAndNoRoute(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/nowhere", "", nil)
	requireError(t, w, http.StatusNotFound, "not_found")
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = e.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "lending_http_requests_total"))
}

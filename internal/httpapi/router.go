// Package httpapi is the REST surface of the lending service, built on gin.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mediaLending/internal/accounts"
	"mediaLending/internal/apperr"
	"mediaLending/internal/auth"
	"mediaLending/internal/catalog"
	"mediaLending/internal/contact"
	"mediaLending/internal/lending"
	"mediaLending/internal/metrics"
)

// Services are the domain services behind the handlers.
type Services struct {
	Lending  *lending.Service
	Catalog  *catalog.Service
	Accounts *accounts.Service
	Contact  *contact.Service
	// Users backs the admin check, which re-reads the caller's role.
	Users auth.UserLookup
	// Ping reports database health for /healthz. Optional.
	Ping func(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	JWTSecret string
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	// Gatherer is served on /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
}

type handler struct {
	svc Services
}

// NewRouter wires every route.
func NewRouter(svc Services, opts Options) *gin.Engine {
	registerValidators()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(loggingMiddleware(opts.Logger), recoveryMiddleware(), metricsMiddleware(opts.Metrics))
	r.NoRoute(func(c *gin.Context) {
		respondError(c, apperr.NotFound("route %s %s not found", c.Request.Method, c.Request.URL.Path))
	})

	h := &handler{svc: svc}
	authed := authenticate(opts.JWTSecret)
	admin := requireAdmin(svc.Users)

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	a := r.Group("/auth")
	a.POST("/register", h.register)
	a.POST("/login", h.login)
	a.GET("/me", authed, h.me)

	u := r.Group("/users", authed)
	u.GET("", admin, h.listUsers)
	u.PATCH("/me", h.updateProfile)
	u.GET("/:id", h.getUser)
	u.PATCH("/:id/role", admin, h.setRole)
	u.POST("/:id/unlock", admin, h.unlockUser)

	b := r.Group("/borrowings", authed)
	b.POST("", h.createBorrowing)
	b.GET("", admin, h.listBorrowings)
	b.GET("/my", h.myBorrowings)
	b.POST("/check-overdue", admin, h.checkOverdue)
	b.POST("/admin/create", admin, h.adminCreateBorrowing)
	b.GET("/:id", h.getBorrowing)
	b.PATCH("/:id", h.updateBorrowing)
	b.POST("/:id/return", h.returnBorrowing)

	res := r.Group("/resources")
	res.GET("", h.listResources)
	res.GET("/:id", h.getResource)
	res.POST("", authed, admin, h.createResource)
	res.PATCH("/:id", authed, admin, h.updateResource)
	res.DELETE("/:id", authed, admin, h.deleteResource)
	res.GET("/:id/copies", h.listCopies)
	res.POST("/:id/copies", authed, admin, h.createCopy)
	res.GET("/:id/reviews", h.listReviews)
	res.POST("/:id/reviews", authed, h.createReview)

	cp := r.Group("/copies", authed, admin)
	cp.PATCH("/:id", h.updateCopy)
	cp.DELETE("/:id", h.deleteCopy)

	rv := r.Group("/reviews", authed)
	rv.PATCH("/:id", h.updateReview)
	rv.DELETE("/:id", h.deleteReview)

	ct := r.Group("/contact")
	ct.POST("", h.createContact)
	ct.GET("", authed, admin, h.listContacts)
	ct.PATCH("/:id", authed, admin, h.updateContact)
	ct.DELETE("/:id", authed, admin, h.deleteContact)

	return r
}

func (h *handler) health(c *gin.Context) {
	if h.svc.Ping != nil {
		if err := h.svc.Ping(c.Request.Context()); err != nil {
			requestLogger(c).Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package httpapi

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediaLending/internal/apperr"
	"mediaLending/internal/auth"
	"mediaLending/internal/logger"
	"mediaLending/internal/metrics"
)

const (
	ctxLoggerKey    = "logger"
	requestIDHeader = "X-Request-ID"
)

// requestLogger returns the request-scoped logger set by loggingMiddleware.
func requestLogger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(ctxLoggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}

// loggingMiddleware tags each request with an id and logs its outcome.
func loggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		reqLog := logger.WithRequestID(log, requestID)
		c.Set(ctxLoggerKey, reqLog)

		start := time.Now()
		c.Next()

		reqLog.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// recoveryMiddleware turns a panic into a 500 with the standard error body.
func recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestLogger(c).Error("panic recovered",
					zap.Any("error", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
					Error: "internal server error",
					Code:  apperr.KindInternal.String(),
				})
			}
		}()
		c.Next()
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// authenticate requires a valid bearer token and stores the principal in the
// request context.
func authenticate(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := auth.ParseBearer(c.GetHeader("Authorization"), secret)
		if err != nil {
			respondError(c, apperr.Unauthorized("missing or invalid access token"))
			return
		}
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// requireAdmin lets the request through only when the caller is an admin
// according to the database, not just the token.
func requireAdmin(users auth.UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.RequireAdmin(c.Request.Context(), users); err != nil {
			respondError(c, err)
			return
		}
		c.Next()
	}
}

// principal returns the authenticated caller, or nil on public routes.
func principal(c *gin.Context) *auth.Principal {
	p, _ := auth.FromContext(c.Request.Context())
	return p
}

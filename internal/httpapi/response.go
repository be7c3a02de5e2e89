package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"mediaLending/internal/apperr"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "code"} and aborts the chain.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		requestLogger(c).Error("request failed", zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: apperr.Message(err), Code: kind.String()})
}

// bindError turns a binding failure into a BadRequest with a readable message.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			return apperr.BadRequest("field '%s' is required", field)
		case "email":
			return apperr.BadRequest("field '%s' must be a valid email address", field)
		case "min", "gte":
			return apperr.BadRequest("field '%s' must be at least %s", field, fe.Param())
		case "max", "lte":
			return apperr.BadRequest("field '%s' must be at most %s", field, fe.Param())
		case "gt":
			return apperr.BadRequest("field '%s' must be greater than %s", field, fe.Param())
		case "resourcetype", "borrowingstatus", "contactstatus", "role":
			return apperr.BadRequest("field '%s' has an unknown value %q", field, fmt.Sprint(fe.Value()))
		default:
			return apperr.BadRequest("field '%s' failed validation on '%s'", field, fe.Tag())
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "parsing time") {
		return apperr.BadRequest("dates must be RFC 3339 timestamps")
	}
	return apperr.BadRequest("invalid request: %s", msg)
}

func respondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

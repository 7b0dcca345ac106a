package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/and161185/retail-desk/internal/convert"
	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/service"
)

// statusOf maps a service error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyExists), errors.Is(err, errs.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	var fe service.FieldErrors
	if errors.As(err, &fe) {
		c.JSON(http.StatusBadRequest, convert.ValidationProblem{Message: fe.Summary(), Errors: fe})
		return
	}
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", RequestIDFrom(c)),
			zap.Error(err),
		)
		c.JSON(code, convert.Message{Message: "internal error"})
		return
	}
	c.JSON(code, convert.Message{Message: err.Error()})
}

// bindFailed reports a malformed or incomplete request body.
func (s *Server) bindFailed(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fe := service.FieldErrors{}
		for _, e := range ve {
			fe.Add(lowerFirst(e.Field()), e.Tag())
		}
		s.fail(c, fe)
		return
	}
	c.JSON(http.StatusBadRequest, convert.Message{Message: "malformed request body"})
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

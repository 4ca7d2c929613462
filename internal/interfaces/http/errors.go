package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// statusFor maps the workflow error taxonomy to an HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domainwf.ErrForbidden), errors.Is(err, domainwf.ErrGuardFailed):
		return http.StatusForbidden
	case errors.Is(err, domainwf.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domainwf.ErrConflict):
		return http.StatusPreconditionFailed
	case errors.Is(err, domainwf.ErrDependency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the detail callers need to recover:
// the actual status on an invalid transition and the field on a validation failure.
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	resp := Response{Success: false, Error: err.Error()}

	var transErr *domainwf.TransitionError
	if errors.As(err, &transErr) {
		resp.CurrentStatus = transErr.Current.String()
	}
	var valErr *domainwf.ValidationError
	if errors.As(err, &valErr) {
		resp.Field = valErr.Field
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "error", err, "path", c.Request.URL.Path)
		if status == http.StatusInternalServerError {
			resp.Error = "internal server error"
		}
	}

	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

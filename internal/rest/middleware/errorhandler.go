package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
)

// ErrorHandler renders the first error a handler attached with c.Error as the
// standard error response. Handlers never write error bodies themselves.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := httpStatus(err)
		if status >= http.StatusInternalServerError {
			log.Errorw("request failed", "path", c.Request.URL.Path, "error", err)
		}
		c.JSON(status, ierr.NewErrorResponse(err))
	}
}

func httpStatus(err error) int {
	switch {
	case ierr.IsValidation(err):
		return http.StatusBadRequest
	case ierr.IsNotFound(err):
		return http.StatusNotFound
	case ierr.IsAlreadyExists(err):
		return http.StatusConflict
	case ierr.IsInvalidOperation(err):
		return http.StatusConflict
	case ierr.IsPermissionDenied(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"servicemarket/internal/domain"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, statusCode int, code string, message string) {
	Error(c, statusCode, code, message)
	c.Abort()
}

// FromError maps a domain sentinel to its status and reason code. Anything
// unrecognised is a 500 and is attached to the context for the error logger.
func FromError(c *gin.Context, err error) {
	status, code := Classify(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		Error(c, status, code, "Internal server error")
		return
	}
	Error(c, status, code, err.Error())
}

func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrScheduleInPast),
		errors.Is(err, domain.ErrDeliveryBeforeSchedule):
		return http.StatusBadRequest, domain.CodeValidation
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, domain.CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, domain.CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.CodeNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, domain.CodeInvalidTransition
	case errors.Is(err, domain.ErrStaleWrite):
		return http.StatusConflict, domain.CodeStaleWrite
	case errors.Is(err, domain.ErrNoParticipant):
		return http.StatusConflict, domain.CodeNoParticipant
	}
	return http.StatusInternalServerError, domain.CodeInternal
}

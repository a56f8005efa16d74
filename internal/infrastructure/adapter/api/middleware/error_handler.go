package middleware

import (
	"errors"
	"net/http"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/dto"
	"github.com/gin-gonic/gin"
)

// ErrorHandler middleware recovers from panics and returns appropriate error responses
func ErrorHandler(logger coreport.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered in API request", map[string]any{
					"error":      err,
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
					"client_ip":  c.ClientIP(),
					"request_id": RequestID(c),
					"user_agent": c.Request.UserAgent(),
				})

				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
					Code:      errs.CodeInternalServer,
					Message:   "Internal server error",
					RequestID: RequestID(c),
				})
			}
		}()

		c.Next()
	}
}

// HTTPStatus maps a domain error onto an HTTP status code
func HTTPStatus(err error) int {
	switch errs.ErrorCode(err) {
	case errs.CodeValidation, errs.CodeMalformedPayload:
		return http.StatusBadRequest
	case errs.CodeSignatureInvalid:
		return http.StatusUnauthorized
	case errs.CodeForbidden:
		return http.StatusForbidden
	case errs.CodeTransactionNotFound:
		return http.StatusNotFound
	case errs.CodeInvalidTransition, errs.CodeAlreadyAccepted,
		errs.CodeConcurrencyConflict, errs.CodeDuplicateTransaction:
		return http.StatusConflict
	case errs.CodeCancellationWindowClosed:
		return http.StatusUnprocessableEntity
	case errs.CodeDatabaseConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the {code, message} body for err. Server-side failures
// are reported generically; the detail stays in the logs.
func RespondError(c *gin.Context, err error) {
	status := HTTPStatus(err)
	resp := dto.ErrorResponse{
		Code:      errs.ErrorCode(err),
		Message:   err.Error(),
		RequestID: RequestID(c),
	}

	var verr *errs.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		resp.Message = http.StatusText(status)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

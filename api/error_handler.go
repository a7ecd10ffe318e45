package api

import (
	goerrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"weatherdash.app/errors"
	"weatherdash.app/models"
)

// handleError translates application errors to HTTP responses. Rate-limit
// errors and open breakers carry a Retry-After header so clients can pace
// themselves.
func (s *Server) handleError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	message := "An unexpected error occurred. Please try again later."

	var appErr *errors.AppError
	if goerrors.As(err, &appErr) {
		switch appErr.Type {
		case errors.ErrorTypeValidation:
			statusCode = http.StatusBadRequest
			message = appErr.Message
		case errors.ErrorTypeNotFound:
			statusCode = http.StatusNotFound
			message = appErr.Message
		case errors.ErrorTypeRateLimit:
			statusCode = http.StatusTooManyRequests
			message = "Weather provider rate limit exceeded. Please try again later."
		case errors.ErrorTypeAPIKey, errors.ErrorTypeConfiguration:
			// Never leak key details to clients.
			statusCode = http.StatusBadGateway
			message = "Weather provider configuration problem."
		case errors.ErrorTypeNetwork, errors.ErrorTypeServiceUnavailable:
			statusCode = http.StatusServiceUnavailable
			message = "Weather data is temporarily unavailable."
		}

		if appErr.RetryAfter > 0 {
			secs := int(appErr.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
		}
	}

	c.JSON(statusCode, models.ErrorResponse{Error: message})
}

package middleware

import (
	"github.com/gin-gonic/gin"

	"flock-messaging/internal/transport/httpdto"
	"flock-messaging/pkg/logger"
)

// ErrorHandler turns errors attached to the gin context into the standard
// envelope, tagged with the request id so the reply matches the log line.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		requestID := c.Writer.Header().Get("X-Request-Id")
		if l != nil {
			l.Errorf("request %s failed: %s", requestID, err.Error())
		}
		body := httpdto.NewErrorResponse(err.Error(), "INTERNAL_ERROR").
			WithRequestID(requestID)
		c.JSON(c.Writer.Status(), body)
	}
}

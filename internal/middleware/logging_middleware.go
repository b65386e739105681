package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"flock-messaging/pkg/logger"
)

func LoggingMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log := l
		if log == nil {
			log = logger.GetGlobalLogger()
		}
		if log == nil {
			return
		}

		requestID, _ := c.Request.Context().Value(logger.RequestIdKey).(string)
		log.Infof("%s %s %d %s rid=%s", method, path, status, latency.String(), requestID)
	}
}

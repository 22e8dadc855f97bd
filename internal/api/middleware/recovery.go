package middleware

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns handler panics into 500 responses and logs them
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	log := logger.Component("api").Logger
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic in handler",
			zap.String("request_id", GetRequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// Logger writes one structured line per request
func Logger(logger *logging.Logger) gin.HandlerFunc {
	log := logger.Component("api").Logger
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Warn("request failed", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}

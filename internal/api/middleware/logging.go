package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		// Source updates arrive on every keystroke.
		if statusCode < 400 && c.Request.Method == http.MethodPut {
			logger.Debugf("[http] [%s] %s - %d (%v)", c.Request.Method, path, statusCode, latency)
			return
		}
		if statusCode >= 500 {
			logger.Warnf("[http] [%s] %s - %d (%v) %s", c.Request.Method, path, statusCode, latency, c.Errors.String())
			return
		}
		logger.Infof("[http] [%s] %s - %d (%v)", c.Request.Method, path, statusCode, latency)
	}
}

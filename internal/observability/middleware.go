package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// polledRoutes are hit on a schedule by supervisors and scrapers. Their
// successful requests log at Trace so they do not drown exchange logs.
var polledRoutes = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

// accessLevel picks the log level for a finished diagnostics request.
// An unhealthy /healthz answer is a worker state, not a server fault, so
// it stays at Warn.
func accessLevel(path string, status int) zerolog.Level {
	_, polled := polledRoutes[path]
	switch {
	case status >= 500 && !polled:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	case polled:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// diagnosticsAccess logs and counts every request against the worker's
// diagnostics router, tagging each line with the worker's current state.
func diagnosticsAccess(worker string, logger zerolog.Logger, health HealthFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		path := routePath(c)
		RecordHTTPRequest(worker, c.Request.Method, path, status, elapsed)

		state := "unknown"
		if health != nil {
			state, _ = health()
		}
		logger.WithLevel(accessLevel(path, status)).
			Str("worker", worker).
			Str("worker_state", state).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", elapsed).
			Int("bytes", c.Writer.Size()).
			Msg("diagnostics_request")
	}
}

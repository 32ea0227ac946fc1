package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sheets-etl/internal/service"
)

// unmatchedPath labels requests that hit no route, keeping arbitrary URLs out of the label set.
const unmatchedPath = "unmatched"

// MetricsOptions tunes the Metrics middleware.
type MetricsOptions struct {
	// Skip lists routes that are not observed, such as the scrape endpoint itself.
	Skip []string
	// TriggerRoute is the route whose POST results also feed etl_trigger_requests_total.
	TriggerRoute string
}

// Metrics returns middleware that records request metrics on the service.
func Metrics(metricsSvc *service.MetricsService, opts MetricsOptions) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(opts.Skip))
	for _, path := range opts.Skip {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if _, ok := skip[path]; ok {
			return
		}
		if path == "" {
			path = unmatchedPath
		}
		status := c.Writer.Status()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, time.Since(start))
		if opts.TriggerRoute != "" && path == opts.TriggerRoute && c.Request.Method == http.MethodPost {
			metricsSvc.ObserveTrigger(status)
		}
	}
}

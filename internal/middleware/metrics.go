package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/trato/pkg/metrics"
)

// Metrics collects request count and latency per route template
func Metrics() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if string(c.Path()) == "/metrics" {
			c.Next(ctx)
			return
		}

		start := time.Now()
		c.Next(ctx)

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := string(c.Method())
		status := strconv.Itoa(c.Response.StatusCode())

		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

package middleware

import (
	"strconv"
	"time"

	"campusdesk_go/metrics"

	"github.com/gofiber/fiber/v2"
)

// MetricsMiddleware counts requests and observes their latency.
func MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		metrics.HTTPRequests.WithLabelValues(c.Method(), strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Method()).Observe(time.Since(start).Seconds())
		return err
	}
}

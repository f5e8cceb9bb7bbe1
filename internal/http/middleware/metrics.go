package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnworld-backend/internal/observability"
)

// Metrics records latency per matched route. Routes listed in streaming stay
// open for the life of a client, so they only count as in-flight.
func Metrics(m *observability.Metrics, streaming ...string) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		for _, s := range streaming {
			if route == s {
				return
			}
		}
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	ping   Pinger
	queued func() int
}

// NewHealthHandler reports ping failures as 503. queued, when set, is the
// job backlog shown by ?verbose=1.
func NewHealthHandler(ping Pinger, queued func() int) *HealthHandler {
	return &HealthHandler{ping: ping, queued: queued}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	if c.Query("verbose") == "" {
		c.String(http.StatusOK, "ok")
		return
	}
	body := gin.H{"status": "ok"}
	if h.queued != nil {
		body["jobs_queued"] = h.queued()
	}
	c.JSON(http.StatusOK, body)
}

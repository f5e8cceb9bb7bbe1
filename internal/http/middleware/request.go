package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/learnworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"

	maxInboundIDLen = 128
)

// RequestContext tags each request with a trace and request id, echoes them
// back as headers and logs the request once it completes. The ids ride along
// into any generation job the request schedules.
func RequestContext(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		td := &ctxutil.TraceData{
			TraceID:   traceIDFor(c),
			RequestID: inboundID(c.GetHeader(headerRequestID)),
		}
		if td.RequestID == "" {
			td.RequestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Writer.Header().Set(headerTraceID, td.TraceID)
		c.Writer.Header().Set(headerRequestID, td.RequestID)

		c.Next()

		if log != nil {
			logRequest(log, c, td, time.Since(start))
		}
	}
}

// traceIDFor prefers the active span so log lines join up with exported traces.
func traceIDFor(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if id := inboundID(c.GetHeader(headerTraceID)); id != "" {
		return id
	}
	return uuid.NewString()
}

func inboundID(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxInboundIDLen {
		return ""
	}
	return raw
}

func logRequest(log *logger.Logger, c *gin.Context, td *ctxutil.TraceData, dur time.Duration) {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	status := c.Writer.Status()
	fields := append([]interface{}{
		"method", c.Request.Method,
		"route", route,
		"status", status,
		"duration_ms", dur.Milliseconds(),
	}, td.LogFields()...)
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.UserID != uuid.Nil {
		fields = append(fields, "owner_id", rd.UserID.String())
	}
	if len(c.Errors) > 0 {
		fields = append(fields, "errors", c.Errors.String())
	}

	switch {
	case status >= 500:
		log.Error("request", fields...)
	case status >= 400:
		log.Warn("request", fields...)
	default:
		log.Debug("request", fields...)
	}
}

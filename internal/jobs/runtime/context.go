package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

// Job is one unit of background work. Jobs live only in process memory; the durable
// state of the work they drive is owned by the handler.
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	OwnerID    uuid.UUID      `json:"owner_id"`
	Payload    map[string]any `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// NewJob stamps an id and enqueue time onto a job of the given type.
func NewJob(jobType string, ownerID uuid.UUID, payload map[string]any) Job {
	if payload == nil {
		payload = map[string]any{}
	}
	return Job{
		ID:         uuid.New(),
		Type:       jobType,
		OwnerID:    ownerID,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

/*
Context is the execution handle for a single job run.
	- Ctx: detached from the request that enqueued the job; canceled only on shutdown
	- Job: the job being executed
	- Log: logger scoped to job id and type
Handlers report their outcome through their own durable state, not through this object.
*/
type Context struct {
	Ctx context.Context
	Job Job
	Log *logger.Logger
}

func NewContext(ctx context.Context, job Job, baseLog *logger.Logger) *Context {
	c := &Context{
		Ctx: ctx,
		Job: job,
		Log: baseLog.With("job_id", job.ID.String(), "job_type", job.Type),
	}
	c.applyTraceData()
	return c
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	td := &ctxutil.TraceData{
		TraceID:   c.PayloadString("trace_id"),
		RequestID: c.PayloadString("request_id"),
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, td)
	if fields := td.LogFields(); len(fields) > 0 {
		c.Log = c.Log.With(fields...)
	}
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.Job.Payload == nil {
		c.Job.Payload = map[string]any{}
	}
	return c.Job.Payload
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// PayloadUUID returns (id, true) only for a present, parseable, non-nil uuid.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	if id, ok := v.(uuid.UUID); ok {
		return id, id != uuid.Nil
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

package ctxutil

import "context"

type traceDataKey struct{}

// TraceData follows a request into the jobs it schedules.
type TraceData struct {
	TraceID   string
	RequestID string
}

// LogFields returns the non-empty ids as logger key/value pairs.
func (td *TraceData) LogFields() []interface{} {
	if td == nil {
		return nil
	}
	var out []interface{}
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	return out
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	if td == nil || (td.TraceID == "" && td.RequestID == "") {
		return ctx
	}
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// TraceIDs is GetTraceData without the nil check.
func TraceIDs(ctx context.Context) (traceID, requestID string) {
	if td := GetTraceData(ctx); td != nil {
		return td.TraceID, td.RequestID
	}
	return "", ""
}

package runtime

import (
	"errors"
	"fmt"
	"sort"
)

// Handler executes one job type. Run owns reporting its outcome; the worker
// only logs the returned error.
type Handler interface {
	Type() string
	Run(jc *Context) error
}

// Registry maps job types to handlers. It is built once at startup and read
// concurrently afterwards, so it has no mutation methods.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	var errs []error
	for _, h := range handlers {
		if h == nil {
			errs = append(errs, errors.New("nil job handler"))
			continue
		}
		t := h.Type()
		switch _, dup := r.handlers[t]; {
		case t == "":
			errs = append(errs, fmt.Errorf("job handler %T has an empty type", h))
		case dup:
			errs = append(errs, fmt.Errorf("duplicate job handler for job_type=%s", t))
		default:
			r.handlers[t] = h
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[jobType]
	return h, ok
}

func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

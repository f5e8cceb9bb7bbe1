package steps

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
)

type fakeAI struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	text    string
	textErr error
	image   func(prompt string) (aigateway.Image, error)
	calls   []string
}

// phaseOf maps a rendered system prompt back to its phase.
func phaseOf(system string) string {
	switch {
	case strings.Contains(system, "You analyze"):
		return "analyze"
	case strings.Contains(system, "You design"):
		return "design"
	case strings.Contains(system, "interactive content"):
		return "content"
	default:
		return "other"
	}
}

func (f *fakeAI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAI) Invoke(ctx context.Context, system, user string, structured bool) (aigateway.Result, error) {
	if !structured {
		text, err := f.GenerateText(ctx, system, user)
		return aigateway.Result{Text: text}, err
	}
	phase := phaseOf(system)
	f.record(phase)
	if err := f.errs[phase]; err != nil {
		return aigateway.Result{}, err
	}
	raw, err := aigateway.ExtractJSON(f.replies[phase])
	if err != nil {
		return aigateway.Result{}, err
	}
	return aigateway.Result{Text: f.replies[phase], JSON: json.RawMessage(raw)}, nil
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user string, out any) error {
	res, err := f.Invoke(ctx, system, user, true)
	if err != nil {
		return err
	}
	return json.Unmarshal(res.JSON, out)
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.record("component")
	return f.text, f.textErr
}

func (f *fakeAI) GenerateImage(ctx context.Context, prompt string) (aigateway.Image, error) {
	f.record("image")
	if f.image == nil {
		return aigateway.Image{}, aigateway.ErrUpstream
	}
	return f.image(prompt)
}

package aigateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

func replyWith(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, h http.HandlerFunc, mutate func(*Config)) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := Config{
		URL:       srv.URL,
		APIKey:    "test-key",
		TextModel: "text-model",
		Timeout:   2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(logger.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateJSONFencedEqualsPlain(t *testing.T) {
	plain := `{"theme":"Weltraum","keywords":["Sonne","Stern"]}`
	fenced := "```json\n" + plain + "\n```"

	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization: want=Bearer test-key got=%s", got)
		}
		_, _ = w.Write([]byte(replyWith(body)))
	}, nil)

	type analysis struct {
		Theme    string   `json:"theme"`
		Keywords []string `json:"keywords"`
	}
	var a, b analysis
	body = plain
	if err := c.GenerateJSON(context.Background(), "sys", "user", &a); err != nil {
		t.Fatalf("plain: %v", err)
	}
	body = fenced
	if err := c.GenerateJSON(context.Background(), "sys", "user", &b); err != nil {
		t.Fatalf("fenced: %v", err)
	}
	if a.Theme != b.Theme || len(a.Keywords) != len(b.Keywords) || a.Keywords[1] != b.Keywords[1] {
		t.Fatalf("fenced parse differs: plain=%+v fenced=%+v", a, b)
	}
}

func TestInvokeMalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(replyWith("```json\n{\"theme\": \"Weltraum\",\n```")))
	}, nil)
	_, err := c.Invoke(context.Background(), "sys", "user", true)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("want ErrMalformedOutput got=%v", err)
	}
	var me *MalformedOutputError
	if !errors.As(err, &me) || me.Raw == "" {
		t.Fatalf("malformed error must carry raw output: %+v", me)
	}
}

func TestInvokeTextReturnsRaw(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages: %+v", req.Messages)
		}
		_, _ = w.Write([]byte(replyWith("export default function World() {}")))
	}, nil)
	got, err := c.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "export default function World() {}" {
		t.Fatalf("text: got=%q", got)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "payment required", status: http.StatusPaymentRequired, want: ErrPaymentRequired},
		{name: "server error", status: http.StatusBadGateway, want: ErrUpstream},
		{name: "bad request", status: http.StatusBadRequest, want: ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}, nil)
			_, err := c.Invoke(context.Background(), "sys", "user", true)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want=%v got=%v", tc.want, err)
			}
		})
	}
}

func TestUpstreamErrorCarriesStatusAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}, nil)
	_, err := c.GenerateText(context.Background(), "sys", "user")
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("want *UpstreamError got=%T %v", err, err)
	}
	if ue.Status != http.StatusServiceUnavailable || ue.Body != "overloaded" {
		t.Fatalf("upstream error: status=%d body=%q", ue.Status, ue.Body)
	}
}

func TestRateLimitMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, nil)
	_, err := c.GenerateText(context.Background(), "sys", "user")
	if err == nil || !containsFold(err.Error(), "rate limit") {
		t.Fatalf("rate limit message: got=%v", err)
	}
}

func TestTimeoutIsUpstream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })
	_, err := c.GenerateText(context.Background(), "sys", "user")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("timeout: want ErrUpstream got=%v", err)
	}
}

func TestBreakerOpensOnUpstreamFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(cfg *Config) {
		cfg.BreakerEnabled = true
		cfg.BreakerFailures = 2
		cfg.BreakerCooldown = time.Minute
	})
	for i := 0; i < 4; i++ {
		_, err := c.GenerateText(context.Background(), "sys", "user")
		if !errors.Is(err, ErrUpstream) {
			t.Fatalf("call %d: want ErrUpstream got=%v", i, err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("server calls with open breaker: want=2 got=%d", got)
	}
}

func TestBreakerIgnoresRateLimits(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, func(cfg *Config) {
		cfg.BreakerEnabled = true
		cfg.BreakerFailures = 1
	})
	for i := 0; i < 3; i++ {
		if _, err := c.GenerateText(context.Background(), "sys", "user"); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("call %d: want ErrRateLimited got=%v", i, err)
		}
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("rate limits must not trip the breaker: calls=%d", got)
	}
}

func TestGenerateImageDecodesDataURL(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Modalities) == 0 {
			t.Errorf("image request must set modalities")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{
				"content": "",
				"images":  []any{map[string]any{"image_url": map[string]any{"url": ref}}},
			}}},
		})
	}, nil)
	img, err := c.GenerateImage(context.Background(), "a bright star")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if img.MimeType != "image/png" || string(img.Bytes) != string(png) {
		t.Fatalf("image: mime=%s len=%d", img.MimeType, len(img.Bytes))
	}
}

func TestGenerateImageWithoutImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(replyWith("I cannot draw that.")))
	}, nil)
	if _, err := c.GenerateImage(context.Background(), "x"); !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("want ErrMalformedOutput got=%v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.NewNop(), Config{URL: "http://x"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

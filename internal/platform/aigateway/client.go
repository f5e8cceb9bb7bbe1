package aigateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

// Image is a decoded illustration returned by an image-modality request.
type Image struct {
	Bytes    []byte
	MimeType string
}

// Result is the reply of one model invocation. JSON is set only for structured requests.
type Result struct {
	Text string
	JSON json.RawMessage
}

// Client talks to an OpenAI-compatible chat completions gateway.
type Client interface {
	// Invoke sends one (system, user) prompt pair. With structured=true the reply is
	// unwrapped from code fences and validated as JSON.
	Invoke(ctx context.Context, system, user string, structured bool) (Result, error)

	// GenerateJSON invokes the text model and decodes the JSON reply into out.
	GenerateJSON(ctx context.Context, system, user string, out any) error

	// GenerateText invokes the text model and returns the raw reply.
	GenerateText(ctx context.Context, system, user string) (string, error)

	// GenerateImage requests an illustration from the image model.
	GenerateImage(ctx context.Context, prompt string) (Image, error)
}

type Config struct {
	URL        string
	APIKey     string
	TextModel  string
	ImageModel string
	Timeout    time.Duration

	BreakerEnabled  bool
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		URL:             envutil.String("AI_GATEWAY_URL", "https://ai.gateway.lovable.dev/v1/chat/completions"),
		APIKey:          envutil.String("AI_GATEWAY_API_KEY", ""),
		TextModel:       envutil.String("AI_TEXT_MODEL", "google/gemini-2.5-flash"),
		ImageModel:      envutil.String("AI_IMAGE_MODEL", "google/gemini-2.5-flash-image-preview"),
		Timeout:         envutil.Duration("AI_TIMEOUT_SECONDS", 120*time.Second),
		BreakerEnabled:  envutil.Bool("AI_BREAKER_ENABLED", true),
		BreakerFailures: uint32(envutil.Int("AI_BREAKER_FAILURES", 5)),
		BreakerCooldown: envutil.Duration("AI_BREAKER_COOLDOWN_SECONDS", 30*time.Second),
	}
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return nil, fmt.Errorf("missing AI_GATEWAY_URL")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing AI_GATEWAY_API_KEY")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "google/gemini-2.5-flash"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = cfg.TextModel
	}

	c := &client{
		log:        log.With("service", "AIGateway"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BreakerEnabled {
		failures := cfg.BreakerFailures
		if failures == 0 {
			failures = 5
		}
		cooldown := cfg.BreakerCooldown
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ai-gateway",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			// Only transport and 5xx style failures count against the gateway.
			IsSuccessful: func(err error) bool {
				return err == nil || !errors.Is(err, ErrUpstream)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Warn("AI gateway breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Modalities []string      `json:"modalities,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
			Images  []struct {
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) post(ctx context.Context, kind string, req chatRequest) (chatResponse, error) {
	start := time.Now()
	var out chatResponse
	call := func() (interface{}, error) {
		return c.doOnce(ctx, req)
	}

	var (
		res any
		err error
	)
	if c.breaker != nil {
		res, err = c.breaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &UpstreamError{Err: err}
		}
	} else {
		res, err = call()
	}
	if err == nil {
		out = res.(chatResponse)
	}
	c.observe(kind, err, time.Since(start))
	return out, err
}

func (c *client) observe(kind string, err error, dur time.Duration) {
	outcome := Outcome(err)
	if m := observability.Current(); m != nil {
		m.ObserveAIRequest(kind, outcome, dur)
	}
	if err != nil {
		c.log.Warn("AI gateway call failed", "kind", kind, "outcome", outcome, "duration", dur.String(), "error", err.Error())
		return
	}
	c.log.Debug("AI gateway call ok", "kind", kind, "duration", dur.String())
}

func (c *client) doOnce(ctx context.Context, body chatRequest) (chatResponse, error) {
	var out chatResponse
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return out, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, &buf)
	if err != nil {
		return out, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, &UpstreamError{Err: err}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return out, &UpstreamError{Status: resp.StatusCode, Err: readErr}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return out, ErrRateLimited
	case resp.StatusCode == http.StatusPaymentRequired:
		return out, ErrPaymentRequired
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return out, &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &UpstreamError{Status: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

// contentText flattens message.content, which gateways send either as a string
// or as a list of typed parts.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func (c *client) Invoke(ctx context.Context, system, user string, structured bool) (Result, error) {
	kind := "text"
	if structured {
		kind = "json"
	}
	resp, err := c.post(ctx, kind, chatRequest{
		Model: c.cfg.TextModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, ErrEmptyOutput
	}
	text := contentText(resp.Choices[0].Message.Content)
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyOutput
	}
	if !structured {
		return Result{Text: text}, nil
	}
	js, err := ExtractJSON(text)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, JSON: json.RawMessage(js)}, nil
}

func (c *client) GenerateJSON(ctx context.Context, system, user string, out any) error {
	res, err := c.Invoke(ctx, system, user, true)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.JSON, out); err != nil {
		return malformed(res.Text, err)
	}
	return nil
}

func (c *client) GenerateText(ctx context.Context, system, user string) (string, error) {
	res, err := c.Invoke(ctx, system, user, false)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (c *client) GenerateImage(ctx context.Context, prompt string) (Image, error) {
	resp, err := c.post(ctx, "image", chatRequest{
		Model:      c.cfg.ImageModel,
		Messages:   []chatMessage{{Role: "user", Content: prompt}},
		Modalities: []string{"image", "text"},
	})
	if err != nil {
		return Image{}, err
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.Images) == 0 {
		return Image{}, malformed("", errMissingImageData)
	}
	ref := resp.Choices[0].Message.Images[0].ImageURL.URL
	b, mime, err := DecodeDataURL(ref)
	if err != nil {
		return Image{}, malformed(truncateRef(ref), err)
	}
	return Image{Bytes: b, MimeType: mime}, nil
}

func truncateRef(ref string) string {
	if len(ref) > 64 {
		return ref[:64] + "..."
	}
	return ref
}

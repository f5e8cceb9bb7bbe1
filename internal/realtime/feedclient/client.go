// Package feedclient watches an owner's worlds over the HTTP API.
package feedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime"
	"github.com/yungbote/learnworld-backend/internal/realtime/reconcile"
)

var ErrStreamClosed = errors.New("feed stream closed")

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

func New(baseURL, token string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		log:     log.With("service", "FeedClient"),
	}
}

// Update is delivered after every fold. Event is nil for the bulk fetch and
// for a refetch of a partial row.
type Update struct {
	State reconcile.State
	Event *reconcile.Event
}

// ListWorlds performs the bulk fetch of the caller's worlds.
func (c *Client) ListWorlds(ctx context.Context) ([]reconcile.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var out struct {
		Worlds []reconcile.Row `json:"worlds"`
	}
	if err := c.getJSON(ctx, "/api/worlds", &out); err != nil {
		return nil, err
	}
	return out.Worlds, nil
}

// GetWorld fetches one world as a feed row.
func (c *Client) GetWorld(ctx context.Context, id string) (reconcile.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var out struct {
		World reconcile.Row `json:"world"`
	}
	if err := c.getJSON(ctx, "/api/worlds/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	if out.World.ID() == "" {
		return nil, fmt.Errorf("world %s: empty response", id)
	}
	delete(out.World, "source_content")
	return out.World, nil
}

// Watch opens the feed and the bulk fetch concurrently and folds both through
// the reconciler on a single goroutine. Rows the server trimmed to fit its
// transport are fetched whole and folded like a bulk fetch of one row. It
// returns when ctx ends or the stream closes.
func (c *Client) Watch(ctx context.Context, onUpdate func(Update)) error {
	if onUpdate == nil {
		return fmt.Errorf("onUpdate required")
	}
	g, gctx := errgroup.WithContext(ctx)
	events := make(chan reconcile.Event, 64)
	fetched := make(chan []reconcile.Row, 1)
	refetched := make(chan reconcile.Row, 16)

	g.Go(func() error {
		defer close(events)
		return c.stream(gctx, events)
	})
	g.Go(func() error {
		rows, err := c.ListWorlds(gctx)
		if err != nil {
			return fmt.Errorf("bulk fetch: %w", err)
		}
		fetched <- rows
		return nil
	})
	g.Go(func() error {
		var state reconcile.State
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case rows := <-fetched:
				state = reconcile.Load(state, rows)
				onUpdate(Update{State: state})
			case row := <-refetched:
				state = reconcile.Load(state, []reconcile.Row{row})
				onUpdate(Update{State: state})
			case ev, ok := <-events:
				if !ok {
					return ErrStreamClosed
				}
				partial := takePartial(ev.Row)
				state = reconcile.Apply(state, ev)
				onUpdate(Update{State: state, Event: &ev})
				if partial && ev.Type != worlds.ChangeDelete {
					id := ev.Row.ID()
					g.Go(func() error {
						c.refetch(gctx, id, refetched)
						return nil
					})
				}
			}
		}
	})
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// refetch failures are logged; the row keeps what the feed delivered.
func (c *Client) refetch(ctx context.Context, id string, out chan<- reconcile.Row) {
	row, err := c.GetWorld(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("partial row refetch failed", "world_id", id, "error", err)
		}
		return
	}
	select {
	case out <- row:
	case <-ctx.Done():
	}
}

// takePartial removes the partial marker from row and reports whether it was set.
func takePartial(row reconcile.Row) bool {
	v, ok := row[realtime.RowPartialKey]
	if !ok {
		return false
	}
	delete(row, realtime.RowPartialKey)
	b, _ := v.(bool)
	return b
}

func (c *Client) stream(ctx context.Context, out chan<- reconcile.Event) error {
	q := url.Values{}
	q.Set("token", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/worlds/feed?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("open feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return readSSE(resp.Body, func(_ string, data string) error {
		ev, ok := decodeEvent(data)
		if !ok {
			c.log.Debug("skipping feed message")
			return nil
		}
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func decodeEvent(data string) (reconcile.Event, bool) {
	var msg struct {
		Event realtime.SSEEvent `json:"event"`
		Data  struct {
			EventType worlds.ChangeType `json:"event_type"`
			Row       reconcile.Row     `json:"row"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return reconcile.Event{}, false
	}
	if msg.Event != realtime.SSEEventWorldChanged || msg.Data.Row.ID() == "" {
		return reconcile.Event{}, false
	}
	return reconcile.Event{Type: msg.Data.EventType, Row: msg.Data.Row}, true
}

// GenerateRequest mirrors the body accepted by POST /api/worlds/generate.
type GenerateRequest struct {
	Title         string `json:"title"`
	Subject       string `json:"subject,omitempty"`
	SourceContent string `json:"source_content"`
}

type GenerateResponse struct {
	JobID  string        `json:"job_id"`
	RunID  string        `json:"run_id"`
	Status worlds.Status `json:"status"`
}

// Generate starts a new world and returns once the run is scheduled.
func (c *Client) Generate(ctx context.Context, in GenerateRequest) (GenerateResponse, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return GenerateResponse{}, err
	}
	var out GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/worlds/generate", bytes.NewReader(raw), &out); err != nil {
		return GenerateResponse{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

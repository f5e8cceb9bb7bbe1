package feedclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
)

func TestReadSSE(t *testing.T) {
	in := ": connected\n\nevent: message\ndata: {\"a\":1}\n\n: ping\n\ndata: two\n"
	var got []string
	err := readSSE(strings.NewReader(in), func(ev, data string) error {
		got = append(got, ev+"|"+data)
		return nil
	})
	if err != nil {
		t.Fatalf("readSSE: %v", err)
	}
	if len(got) != 2 || got[0] != `message|{"a":1}` || got[1] != "|two" {
		t.Fatalf("events: got=%v", got)
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, ok := decodeEvent(`{"channel":"c","event":"WorldChanged","data":{"event_type":"update","row":{"id":"x","status":"images"}}}`)
	if !ok || ev.Type != worlds.ChangeUpdate || ev.Row.Status() != "images" {
		t.Fatalf("decodeEvent: ok=%v ev=%+v", ok, ev)
	}
	if _, ok := decodeEvent(`{"event":"Other","data":{"row":{"id":"x"}}}`); ok {
		t.Fatalf("foreign event should be skipped")
	}
	if _, ok := decodeEvent(`not json`); ok {
		t.Fatalf("garbage should be skipped")
	}
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/worlds", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// Let the live update win the race so the fetch lands second.
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"worlds":[{"id":"x","title":"Sterne","status":"pending"}]}`)
	})
	mux.HandleFunc("/api/worlds/feed", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = fmt.Fprint(w, ": connected\n\n")
		_, _ = fmt.Fprint(w, "event: message\ndata: {\"event\":\"WorldChanged\",\"data\":{\"event_type\":\"update\",\"row\":{\"id\":\"x\",\"status\":\"designing\"}}}\n\n")
		_, _ = fmt.Fprint(w, "event: message\ndata: {\"event\":\"WorldChanged\",\"data\":{\"event_type\":\"insert\",\"row\":{\"id\":\"y\",\"status\":\"pending\"}}}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	})
	return httptest.NewServer(mux)
}

func TestWatchFoldsFeedAndFetch(t *testing.T) {
	srv := feedServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := New(srv.URL, "tok", nil)
	var (
		fetchedSeen bool
		events      int
	)
	err := c.Watch(ctx, func(u Update) {
		if u.Event == nil {
			fetchedSeen = true
		} else {
			events++
		}
		x, okX := u.State.Get("x")
		_, okY := u.State.Get("y")
		if fetchedSeen && events == 2 && okX && okY {
			if x.Status() != "designing" || x["title"] != "Sterne" {
				t.Errorf("row x: got=%v", x)
			}
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Watch: want=context.Canceled got=%v", err)
	}
	if !fetchedSeen || events != 2 {
		t.Fatalf("folds: fetched=%v events=%d", fetchedSeen, events)
	}
}

func TestWatchSurfacesAuthFailure(t *testing.T) {
	srv := feedServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := New(srv.URL, "wrong", nil).Watch(ctx, func(Update) {})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("Watch: want 401 error got=%v", err)
	}
}

func TestGeneratePostsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/worlds/generate" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["title"] != "Sterne" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprint(w, `{"job_id":"j1","run_id":"r1","status":"pending"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", nil)
	out, err := c.Generate(context.Background(), GenerateRequest{Title: "Sterne", SourceContent: "notes"})
	require.NoError(t, err)
	require.Equal(t, "r1", out.RunID)
	require.Equal(t, worlds.StatusPending, out.Status)

	_, err = New(srv.URL, "bad", nil).Generate(context.Background(), GenerateRequest{Title: "Sterne"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestWatchRefetchesPartialRows(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/worlds", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"worlds":[{"id":"x","title":"Sterne","status":"generating","updated_at":"2026-01-01T00:00:00Z"}]}`)
	})
	mux.HandleFunc("/api/worlds/x", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = fmt.Fprint(w, `{"world":{"id":"x","title":"Sterne","status":"finalizing","source_content":"Die Sonne ist ein Stern.","design":{"modules":12},"updated_at":"2026-01-01T00:00:05Z"},"modules":[]}`)
	})
	mux.HandleFunc("/api/worlds/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Wait for the bulk fetch so the partial update merges into a known row.
		time.Sleep(50 * time.Millisecond)
		_, _ = fmt.Fprint(w, "data: {\"event\":\"WorldChanged\",\"data\":{\"event_type\":\"update\",\"row\":{\"id\":\"x\",\"status\":\"finalizing\",\"theme\":\"space\",\"partial\":true,\"updated_at\":\"2026-01-01T00:00:05Z\"}}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var final map[string]any
	err := New(srv.URL, "tok", nil).Watch(ctx, func(u Update) {
		x, ok := u.State.Get("x")
		if !ok {
			return
		}
		if _, hasDesign := x["design"]; hasDesign {
			final = x
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, final, "refetched design never folded in")
	require.Equal(t, "finalizing", final["status"])
	require.Equal(t, "space", final["theme"])
	require.NotContains(t, final, "partial")
	require.NotContains(t, final, "source_content")
}

func TestTakePartial(t *testing.T) {
	row := map[string]any{"id": "x", "partial": true}
	if !takePartial(row) {
		t.Fatalf("partial: want=true")
	}
	if _, ok := row["partial"]; ok {
		t.Fatalf("marker should be removed: %v", row)
	}
	if takePartial(map[string]any{"id": "x"}) {
		t.Fatalf("unmarked row: want=false")
	}
}

package bus

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/realtime"
)

func TestMemoryBusDeliversToForwarders(t *testing.T) {
	b := NewMemoryBus()
	var got []realtime.SSEMessage
	if err := b.StartForwarder(context.Background(), func(m realtime.SSEMessage) { got = append(got, m) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	msg := realtime.WorldChangedMessage(worlds.Change{Type: worlds.ChangeInsert, OwnerID: uuid.New(), Row: map[string]any{"id": "a"}})
	if err := b.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].Channel != msg.Channel {
		t.Fatalf("delivered: want=1 on %s got=%+v", msg.Channel, got)
	}

	_ = b.Close()
	_ = b.Publish(context.Background(), msg)
	if len(got) != 1 {
		t.Fatalf("publish after close delivered: got=%d", len(got))
	}
}

func TestMemoryBusRequiresCallback(t *testing.T) {
	if err := NewMemoryBus().StartForwarder(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}

func TestDecodeMessageRestoresWorldChanged(t *testing.T) {
	owner := uuid.New()
	msg := realtime.WorldChangedMessage(worlds.Change{
		Type:    worlds.ChangeUpdate,
		OwnerID: owner,
		Row:     map[string]any{"id": "w1", "status": "designing"},
	})
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := decodeMessage(raw)
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	d, ok := out.Data.(realtime.WorldChangedData)
	if !ok {
		t.Fatalf("data type: got=%T", out.Data)
	}
	if out.Channel != realtime.OwnerChannel(owner) || d.EventType != worlds.ChangeUpdate || d.Row["status"] != "designing" {
		t.Fatalf("decoded: got=%+v", out)
	}

	if _, err := decodeMessage([]byte("{")); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestEncodeForNotifyCompactsLargeRows(t *testing.T) {
	msg := realtime.WorldChangedMessage(worlds.Change{
		Type:    worlds.ChangeUpdate,
		OwnerID: uuid.New(),
		Row: map[string]any{
			"id":             "w1",
			"status":         "finalizing",
			"component_code": strings.Repeat("x", 20000),
		},
	})
	raw, err := encodeForNotify(msg)
	if err != nil {
		t.Fatalf("encodeForNotify: %v", err)
	}
	if len(raw) > pgPayloadLimit {
		t.Fatalf("payload: want<=%d got=%d", pgPayloadLimit, len(raw))
	}
	out, err := decodeMessage(raw)
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	row := out.Data.(realtime.WorldChangedData).Row
	if _, ok := row["component_code"]; ok {
		t.Fatalf("component_code should be dropped")
	}
	if row["status"] != "finalizing" || row[realtime.RowPartialKey] != true {
		t.Fatalf("compacted row: got=%v", row)
	}
}

func TestEncodeForNotifyKeepsSmallRows(t *testing.T) {
	msg := realtime.WorldChangedMessage(worlds.Change{
		Type:    worlds.ChangeUpdate,
		OwnerID: uuid.New(),
		Row:     map[string]any{"id": "w1", "component_code": "export default () => null"},
	})
	raw, err := encodeForNotify(msg)
	if err != nil {
		t.Fatalf("encodeForNotify: %v", err)
	}
	if !strings.Contains(string(raw), "component_code") || strings.Contains(string(raw), realtime.RowPartialKey) {
		t.Fatalf("small row should be sent whole: %s", raw)
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(context.Background(), nil, Config{Kind: "kafka"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	b, err := New(context.Background(), nil, Config{Kind: KindMemory})
	if err != nil || b == nil {
		t.Fatalf("memory bus: err=%v", err)
	}
}

func TestRedisOptions(t *testing.T) {
	if _, err := redisOptions("  "); err == nil {
		t.Fatalf("blank addr: want error")
	}
	opts, err := redisOptions("localhost:6379")
	if err != nil || opts.Addr != "localhost:6379" {
		t.Fatalf("host:port: got=%+v err=%v", opts, err)
	}
	opts, err = redisOptions("redis://:secret@cache:6380/2")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("url options: got addr=%s db=%d", opts.Addr, opts.DB)
	}
}

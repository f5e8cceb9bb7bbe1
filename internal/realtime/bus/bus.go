package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime"
)

// Bus fans SSE messages out across API instances. Every instance runs a
// forwarder that feeds received messages into its local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}

const (
	KindMemory   = "memory"
	KindRedis    = "redis"
	KindPostgres = "postgres"
)

type Config struct {
	Kind         string
	RedisAddr    string
	RedisChannel string
	PostgresDSN  string
	PgChannel    string
}

func ConfigFromEnv() Config {
	return Config{
		Kind:         strings.ToLower(envutil.String("REALTIME_BUS", KindMemory)),
		RedisAddr:    envutil.String("REDIS_ADDR", ""),
		RedisChannel: envutil.String("REDIS_CHANNEL", "sse"),
		PostgresDSN:  envutil.String("REALTIME_PG_DSN", ""),
		PgChannel:    envutil.String("REALTIME_PG_CHANNEL", "world_changes"),
	}
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (Bus, error) {
	switch cfg.Kind {
	case "", KindMemory:
		return NewMemoryBus(), nil
	case KindRedis:
		return NewRedisBus(ctx, log, cfg.RedisAddr, cfg.RedisChannel)
	case KindPostgres:
		return NewPgBus(ctx, log, cfg.PostgresDSN, cfg.PgChannel)
	default:
		return nil, fmt.Errorf("unknown REALTIME_BUS %q", cfg.Kind)
	}
}

const largeFieldLimit = 1024

// compact drops oversized fields from a WorldChanged row so the message fits
// transports with small payload limits, and marks the row partial. Clients
// merge rows, so a missing field keeps its previous value until they refetch.
func compact(msg realtime.SSEMessage) realtime.SSEMessage {
	return keepFields(msg, func(_ string, v any) bool { return fieldSize(v) <= largeFieldLimit })
}

// statusOnly keeps the fields a status transition carries.
func statusOnly(msg realtime.SSEMessage) realtime.SSEMessage {
	return keepFields(msg, func(k string, _ any) bool { return statusFields[k] })
}

var statusFields = map[string]bool{
	"id": true, "owner_id": true, "run_id": true, "status": true, "error_detail": true, "updated_at": true,
}

func keepFields(msg realtime.SSEMessage, keep func(k string, v any) bool) realtime.SSEMessage {
	d, ok := msg.Data.(realtime.WorldChangedData)
	if !ok {
		return msg
	}
	row := make(map[string]any, len(d.Row))
	dropped := false
	for k, v := range d.Row {
		if !keep(k, v) {
			dropped = true
			continue
		}
		row[k] = v
	}
	if dropped {
		row[realtime.RowPartialKey] = true
	}
	d.Row = row
	msg.Data = d
	return msg
}

func fieldSize(v any) int {
	switch t := v.(type) {
	case nil, bool, int, int64, float64:
		return 0
	case string:
		return len(t)
	case []byte:
		return len(t)
	case json.RawMessage:
		return len(t)
	case datatypes.JSON:
		return len(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return 0
		}
		return len(raw)
	}
}

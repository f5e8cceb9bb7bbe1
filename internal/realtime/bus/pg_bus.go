package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime"
)

// Postgres rejects NOTIFY payloads of 8000 bytes or more.
const pgPayloadLimit = 7900

// notifyListener is a connection that has issued LISTEN.
type notifyListener interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type pgBus struct {
	log     *logger.Logger
	pool    *pgxpool.Pool
	channel string
	listen  func(ctx context.Context) (notifyListener, error)

	// Reconnect delays double from minBackoff up to maxBackoff.
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPgBus(ctx context.Context, log *logger.Logger, dsn, channel string) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing REALTIME_PG_DSN")
	}
	if strings.TrimSpace(channel) == "" {
		channel = "world_changes"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	b := &pgBus{
		log:        log.With("service", "PgSSEBus"),
		pool:       pool,
		channel:    channel,
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
	b.listen = b.openListener
	return b, nil
}

func (b *pgBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if b == nil || b.pool == nil {
		return fmt.Errorf("postgres SSE bus not initialized")
	}
	raw, err := encodeForNotify(msg)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", b.channel, string(raw))
	return err
}

// encodeForNotify sends the row whole when it fits, then without its large
// fields, then with only its status fields.
func encodeForNotify(msg realtime.SSEMessage) ([]byte, error) {
	var size int
	for _, shrink := range []func(realtime.SSEMessage) realtime.SSEMessage{nil, compact, statusOnly} {
		m := msg
		if shrink != nil {
			m = shrink(msg)
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		if len(raw) <= pgPayloadLimit {
			return raw, nil
		}
		size = len(raw)
	}
	return nil, fmt.Errorf("notify payload too large: %d bytes", size)
}

// StartForwarder issues LISTEN and delivers notifications until ctx ends.
// A dropped connection is replaced and LISTEN reissued; notifications sent
// while disconnected are lost.
func (b *pgBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if b == nil || b.listen == nil {
		return fmt.Errorf("postgres SSE bus not initialized")
	}
	if onMsg == nil {
		return errOnMsgRequired
	}
	l, err := b.listen(ctx)
	if err != nil {
		return err
	}
	go b.forward(ctx, l, onMsg)
	return nil
}

func (b *pgBus) openListener(ctx context.Context) (notifyListener, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}
	// The listening connection is never returned to the pool in a LISTEN state.
	return conn.Hijack(), nil
}

func (b *pgBus) forward(ctx context.Context, l notifyListener, onMsg func(m realtime.SSEMessage)) {
	for {
		n, err := l.WaitForNotification(ctx)
		if err != nil {
			_ = l.Close(context.Background())
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("postgres SSE listener lost; reconnecting", "error", err)
			if l = b.relisten(ctx); l == nil {
				return
			}
			b.log.Info("postgres SSE listener reconnected")
			continue
		}
		msg, err := decodeMessage([]byte(n.Payload))
		if err != nil {
			b.log.Warn("bad postgres SSE payload", "error", err)
			continue
		}
		onMsg(msg)
	}
}

// relisten retries listen with backoff. It returns nil once ctx ends.
func (b *pgBus) relisten(ctx context.Context) notifyListener {
	delay := b.minBackoff
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	for {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		l, err := b.listen(ctx)
		if err == nil {
			return l
		}
		if ctx.Err() != nil {
			return nil
		}
		b.log.Warn("postgres SSE relisten failed", "error", err, "retry_in", delay)
		if delay *= 2; b.maxBackoff > 0 && delay > b.maxBackoff {
			delay = b.maxBackoff
		}
	}
}

func (b *pgBus) Close() error {
	if b == nil || b.pool == nil {
		return nil
	}
	b.pool.Close()
	return nil
}

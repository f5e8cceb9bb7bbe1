package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime"
)

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string

	mu   sync.Mutex
	subs []*goredis.PubSub
}

// redisOptions accepts a bare host:port or a redis:// / rediss:// URL.
func redisOptions(addr string) (*goredis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("missing REDIS_ADDR")
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		return goredis.ParseURL(addr)
	}
	return &goredis.Options{Addr: addr}, nil
}

func NewRedisBus(ctx context.Context, log *logger.Logger, addr, channel string) (Bus, error) {
	opts, err := redisOptions(addr)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = 5 * time.Second
	if strings.TrimSpace(channel) == "" {
		channel = "sse"
	}
	if log == nil {
		log = logger.NewNop()
	}

	rdb := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisBus{
		log:     log.With("service", "RedisBus", "channel", channel),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder returns once the subscription is confirmed. Messages are
// delivered from a single goroutine until ctx ends or the bus is closed.
func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return errOnMsgRequired
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	// Closing the PubSub closes its channel, which ends the delivery loop.
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	go func() {
		for m := range sub.Channel() {
			msg, err := decodeMessage([]byte(m.Payload))
			if err != nil {
				b.log.Warn("undecodable bus payload", "error", err)
				continue
			}
			onMsg(msg)
		}
		b.log.Debug("redis forwarder stopped")
	}()
	return nil
}

func (b *redisBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	return b.rdb.Close()
}

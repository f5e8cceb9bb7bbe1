package services

import (
	"context"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime"
	"github.com/yungbote/learnworld-backend/internal/realtime/bus"
)

// Emitter delivers a feed message toward connected clients.
type Emitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

type EmitFunc func(ctx context.Context, msg realtime.SSEMessage)

func (f EmitFunc) Emit(ctx context.Context, msg realtime.SSEMessage) { f(ctx, msg) }

// HubEmitter reaches only the clients connected to this instance.
func HubEmitter(hub *realtime.SSEHub) Emitter {
	return EmitFunc(func(_ context.Context, msg realtime.SSEMessage) { hub.Broadcast(msg) })
}

// BusEmitter publishes on the shared bus; each instance's forwarder feeds its own hub.
func BusEmitter(b bus.Bus, log *logger.Logger) Emitter {
	return EmitFunc(func(ctx context.Context, msg realtime.SSEMessage) {
		if err := b.Publish(ctx, msg); err != nil {
			log.Warn("feed publish failed", "channel", msg.Channel, "event", msg.Event, "error", err)
		}
	})
}

// WorldNotifier turns committed world changes into WorldChanged messages on
// the owner's channel.
type WorldNotifier struct {
	emitter Emitter
	log     *logger.Logger
}

func NewWorldNotifier(log *logger.Logger, emitter Emitter) *WorldNotifier {
	return &WorldNotifier{
		emitter: emitter,
		log:     log.With("service", "WorldNotifier"),
	}
}

func (n *WorldNotifier) WorldChanged(ctx context.Context, ch worlds.Change) {
	if n == nil || n.emitter == nil {
		return
	}
	n.log.Debug("world changed", "event_type", ch.Type, "owner_id", ch.OwnerID, "world_id", ch.Row["id"])
	// A canceled request or run must not swallow the change.
	n.emitter.Emit(context.WithoutCancel(ctx), realtime.WorldChangedMessage(ch))
}

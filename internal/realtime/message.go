package realtime

import (
	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
)

type SSEEvent string

const (
	SSEEventWorldChanged SSEEvent = "WorldChanged"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// WorldChangedData is the payload of a WorldChanged message.
type WorldChangedData struct {
	EventType worlds.ChangeType `json:"event_type"`
	Row       map[string]any    `json:"row"`
}

// RowPartialKey is set to true on a row that had fields dropped to fit a
// transport. Readers fetch the world to fill them in.
const RowPartialKey = "partial"

// OwnerChannel is the channel every change of an owner's worlds is published on.
func OwnerChannel(ownerID uuid.UUID) string {
	return "worlds:" + ownerID.String()
}

func WorldChangedMessage(ch worlds.Change) SSEMessage {
	return SSEMessage{
		Channel: OwnerChannel(ch.OwnerID),
		Event:   SSEEventWorldChanged,
		Data: WorldChangedData{
			EventType: ch.Type,
			Row:       ch.Row,
		},
	}
}

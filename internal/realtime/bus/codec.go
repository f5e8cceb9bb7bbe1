package bus

import (
	"encoding/json"
	"errors"

	"github.com/yungbote/learnworld-backend/internal/realtime"
)

var errOnMsgRequired = errors.New("onMsg callback required")

// decodeMessage restores typed WorldChanged payloads after a JSON round trip.
func decodeMessage(raw []byte) (realtime.SSEMessage, error) {
	var wire struct {
		Channel string            `json:"channel"`
		Event   realtime.SSEEvent `json:"event"`
		Data    json.RawMessage   `json:"data"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return realtime.SSEMessage{}, err
	}
	msg := realtime.SSEMessage{Channel: wire.Channel, Event: wire.Event}
	if len(wire.Data) == 0 {
		return msg, nil
	}
	var err error
	if wire.Event == realtime.SSEEventWorldChanged {
		var d realtime.WorldChangedData
		err = json.Unmarshal(wire.Data, &d)
		msg.Data = d
	} else {
		var d any
		err = json.Unmarshal(wire.Data, &d)
		msg.Data = d
	}
	if err != nil {
		return realtime.SSEMessage{}, err
	}
	return msg, nil
}

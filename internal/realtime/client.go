package realtime

import (
	"sync"

	"github.com/google/uuid"
)

const clientBuffer = 32

// SSEClient is one open feed stream for an owner. When Outbound is full the
// hub drops messages for this client instead of stalling other streams.
type SSEClient struct {
	ID       uuid.UUID
	OwnerID  uuid.UUID
	Outbound chan SSEMessage

	channels  map[string]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSSEClient(ownerID uuid.UUID) *SSEClient {
	return &SSEClient{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Outbound: make(chan SSEMessage, clientBuffer),
		channels: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Done is closed once the hub has closed the client.
func (c *SSEClient) Done() <-chan struct{} { return c.done }

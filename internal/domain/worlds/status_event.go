package worlds

import (
	"time"

	"github.com/google/uuid"
)

// WorldStatusEvent is an append-only ledger of persisted status transitions.
type WorldStatusEvent struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	WorldID   uuid.UUID `gorm:"type:uuid;not null;index" json:"world_id"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index" json:"run_id"`
	Status    Status    `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Message   string    `gorm:"column:message;type:text" json:"message,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (WorldStatusEvent) TableName() string { return "world_status_event" }

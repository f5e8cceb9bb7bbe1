package worlds

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WorldModule is one ordered unit of interactive content. Modules are written as a batch.
type WorldModule struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorldID            uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_world_module_order,priority:1" json:"world_id"`
	OrderIndex         int            `gorm:"column:order_index;not null;uniqueIndex:idx_world_module_order,priority:2" json:"order_index"`
	Title              string         `gorm:"column:title;not null" json:"title"`
	ModuleType         ModuleType     `gorm:"column:module_type;type:varchar(32);not null" json:"module_type"`
	InteractionPayload datatypes.JSON `gorm:"column:interaction_payload;not null" json:"interaction_payload"`
	ImagePrompt        string         `gorm:"column:image_prompt;type:text" json:"image_prompt,omitempty"`
	ImageURL           *string        `gorm:"column:image_url" json:"image_url"`
	CreatedAt          time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null" json:"updated_at"`
}

func (WorldModule) TableName() string { return "world_module" }

package worlds

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// World is one generated learning world. Status and ErrorDetail carry the run state;
// the remaining derived fields are written by the pipeline phases.
type World struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	RunID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"run_id"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Subject       string         `gorm:"column:subject" json:"subject"`
	SourceContent string         `gorm:"column:source_content;type:text;not null" json:"source_content,omitempty"`
	Status        Status         `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	ErrorDetail   *string        `gorm:"column:error_detail;type:text" json:"error_detail"`
	Theme         string         `gorm:"column:theme" json:"theme"`
	Keywords      datatypes.JSON `gorm:"column:keywords" json:"keywords,omitempty"`
	Difficulty    string         `gorm:"column:difficulty" json:"difficulty"`
	TargetAge     string         `gorm:"column:target_age" json:"target_age"`
	Summary       string         `gorm:"column:summary;type:text" json:"summary"`
	Design        datatypes.JSON `gorm:"column:design" json:"design,omitempty"`
	ComponentCode *string        `gorm:"column:component_code;type:text" json:"component_code"`
	CoverImageURL *string        `gorm:"column:cover_image_url" json:"cover_image_url"`
	ModuleCount   int            `gorm:"column:module_count;not null;default:0" json:"module_count"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (World) TableName() string { return "world" }

// Derived holds everything the required phases produce, written in one step at finalize.
type Derived struct {
	Theme         string
	Keywords      datatypes.JSON
	Difficulty    string
	TargetAge     string
	Summary       string
	Design        datatypes.JSON
	ComponentCode *string
}

// Row is the change-feed representation of a world. Source content is left out.
func (w *World) Row() map[string]any {
	if w == nil {
		return nil
	}
	return map[string]any{
		"id":              w.ID.String(),
		"owner_id":        w.OwnerID.String(),
		"run_id":          w.RunID.String(),
		"title":           w.Title,
		"subject":         w.Subject,
		"status":          string(w.Status),
		"error_detail":    derefOrNil(w.ErrorDetail),
		"theme":           w.Theme,
		"keywords":        rawOrNil(w.Keywords),
		"difficulty":      w.Difficulty,
		"target_age":      w.TargetAge,
		"summary":         w.Summary,
		"design":          rawOrNil(w.Design),
		"component_code":  derefOrNil(w.ComponentCode),
		"cover_image_url": derefOrNil(w.CoverImageURL),
		"module_count":    w.ModuleCount,
		"created_at":      w.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":      w.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// StatusRow is the partial row emitted for a status transition.
func StatusRow(id, runID uuid.UUID, status Status, errorDetail *string, updatedAt time.Time) map[string]any {
	return map[string]any{
		"id":           id.String(),
		"run_id":       runID.String(),
		"status":       string(status),
		"error_detail": derefOrNil(errorDetail),
		"updated_at":   updatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func rawOrNil(j datatypes.JSON) any {
	if len(j) == 0 {
		return nil
	}
	return j
}

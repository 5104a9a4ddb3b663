package models

import (
	"time"

	"gorm.io/gorm"
)

// Scene statuses mirror the latest generation: a scene is ready once its
// newest render attempt finished and the asset is archived.
const (
	SceneStatusQueued     = "queued"
	SceneStatusProcessing = "processing"
	SceneStatusReady      = "ready"
	SceneStatusError      = "error"
)

type Scene struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	UserID    uint `gorm:"not null;index" json:"user_id"`
	ProjectID uint `gorm:"not null;index;uniqueIndex:idx_scenes_project_ordinal" json:"project_id"`

	// Ordinal is the scene's position within its project, assigned exactly
	// once at creation from the project's atomic counter.
	Ordinal int `gorm:"not null;uniqueIndex:idx_scenes_project_ordinal" json:"ordinal"`

	// Version counts render attempts; it equals the number of generations.
	Version int `gorm:"not null;default:0" json:"version"`

	StartKey   string  `gorm:"not null" json:"start_key"`
	EndKey     *string `json:"end_key,omitempty"`
	ShotTypeID string  `gorm:"not null;index" json:"shot_type_id"`

	Status string `gorm:"default:queued" json:"status"`

	// Signed access grant for client-side reads of the keyframes. The URLs
	// are written back on every issue/refresh together with their expiry.
	StartURL     string     `json:"start_url,omitempty"`
	EndURL       string     `json:"end_url,omitempty"`
	URLExpiresAt *time.Time `json:"url_expires_at,omitempty"`

	LatestGenerationID *uint `json:"latest_generation_id,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Scene) TableName() string {
	return "scenes"
}

// GrantExpired reports whether the scene's signed keyframe URLs may no
// longer be handed out. A missing expiry counts as expired.
func (s *Scene) GrantExpired(now time.Time) bool {
	return s.URLExpiresAt == nil || !now.Before(*s.URLExpiresAt)
}

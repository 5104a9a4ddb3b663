package models

import (
	"time"

	"gorm.io/gorm"
)

type Project struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index;uniqueIndex:idx_projects_user_name" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`
	Name   string `gorm:"not null;uniqueIndex:idx_projects_user_name" json:"name"`

	// NextOrdinal is the counter backing per-project scene ordinals.
	// It is only ever advanced through scenes.NextOrdinal, never read-modify-written.
	NextOrdinal int `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Scene count (computed field, not persisted)
	SceneCount int `gorm:"-" json:"scene_count"`
}

func (Project) TableName() string {
	return "projects"
}

package models

import "time"

// MediaMirror caches the one-time copy of a private source object into
// the public bucket. The provider needs plainly dereferenceable URLs, so
// each unique source key is mirrored exactly once and the public URL is
// reused for every later submission.
type MediaMirror struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SourceKey string `gorm:"uniqueIndex;not null" json:"source_key"`
	PublicKey string `gorm:"not null" json:"public_key"`
	PublicURL string `gorm:"not null" json:"public_url"`

	CreatedAt time.Time `json:"created_at"`
}

func (MediaMirror) TableName() string {
	return "media_mirrors"
}

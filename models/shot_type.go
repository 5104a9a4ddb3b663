package models

import "time"

// ShotType is a named prompt template controlling camera framing and
// style. The template is used verbatim unless prompt enhancement is
// enabled, in which case it seeds the enhanced motion prompt.
type ShotType struct {
	ID             string `gorm:"primaryKey;size:64" json:"id"`
	Name           string `gorm:"not null" json:"name"`
	PromptTemplate string `gorm:"type:text;not null" json:"prompt_template"`
	DefaultModel   string `gorm:"not null" json:"default_model"`
	AspectRatio    string `gorm:"default:'16:9'" json:"aspect_ratio"`
	Loop           bool   `gorm:"default:false" json:"loop"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ShotType) TableName() string {
	return "shot_types"
}

// DefaultShotTypes seeds the catalogue on first boot.
func DefaultShotTypes() []ShotType {
	return []ShotType{
		{
			ID:             "wide",
			Name:           "Wide Establishing",
			PromptTemplate: "Slow wide establishing shot, smooth camera glide from the first frame to the last, cinematic lighting, natural motion",
			DefaultModel:   "ray-2",
		},
		{
			ID:             "closeup",
			Name:           "Close-up",
			PromptTemplate: "Intimate close-up, shallow depth of field, gentle push-in between the two frames, soft cinematic light",
			DefaultModel:   "ray-2",
			AspectRatio:    "9:16",
		},
		{
			ID:             "orbit",
			Name:           "Orbit",
			PromptTemplate: "Camera orbits the subject, seamless loop between matching frames, stable horizon, photoreal",
			DefaultModel:   "ray-flash-2",
			Loop:           true,
		},
	}
}

package models

import (
	"time"
)

// Generation statuses. Completed and error are terminal: once a row
// reaches either, no handler may move it back.
const (
	GenerationStatusQueued     = "queued"
	GenerationStatusProcessing = "processing"
	GenerationStatusCompleted  = "completed"
	GenerationStatusError      = "error"
)

// Generation is one render attempt for a scene. History per scene is
// append-only: a regenerate inserts a new row, it never mutates a
// terminal one.
type Generation struct {
	ID      uint  `gorm:"primaryKey" json:"id"`
	SceneID uint  `gorm:"not null;index" json:"scene_id"`
	Scene   Scene `gorm:"foreignKey:SceneID" json:"-"`

	ProviderJobID  string `gorm:"index" json:"provider_job_id,omitempty"`
	IdempotencyKey string `gorm:"size:64;not null;index" json:"-"`

	Prompt string `gorm:"type:text;not null" json:"prompt"`
	Model  string `gorm:"not null" json:"model"`

	Status   string `gorm:"default:queued;index" json:"status"`
	Progress int    `gorm:"default:0" json:"progress"`

	// VideoKey is set once the rendered asset is archived into our storage.
	VideoKey string `json:"video_key,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Generation) TableName() string {
	return "generations"
}

// IsTerminal reports whether the status admits no further transitions.
func (g *Generation) IsTerminal() bool {
	return IsTerminalStatus(g.Status)
}

// IsTerminalStatus reports whether a generation status is terminal.
func IsTerminalStatus(status string) bool {
	return status == GenerationStatusCompleted || status == GenerationStatusError
}

// CanTransition encodes the closed transition graph
// queued -> processing -> {completed, error}. Queued may also fail
// directly (submission errors). Everything out of a terminal state is
// rejected, as is skipping straight from queued to completed.
func CanTransition(from, to string) bool {
	switch from {
	case GenerationStatusQueued:
		return to == GenerationStatusProcessing || to == GenerationStatusError
	case GenerationStatusProcessing:
		return to == GenerationStatusCompleted || to == GenerationStatusError
	default:
		return false
	}
}

// NonTerminalStatuses is the guard list for conditional updates: a
// transition UPDATE is keyed on the row still holding one of these.
func NonTerminalStatuses() []string {
	return []string{GenerationStatusQueued, GenerationStatusProcessing}
}

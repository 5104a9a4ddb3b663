package tasks

import "encoding/json"

// ---
// QUEUE DEFINITIONS
// ---
const (
	// QueueStorageCleanup removes storage objects after a hard delete.
	QueueStorageCleanup = "q_storage_cleanup"

	// QueueMirrorPrune drops public mirror copies whose source objects
	// are gone.
	QueueMirrorPrune = "q_mirror_prune"

	// QueueDeadLetter collects payloads whose handler kept failing.
	QueueDeadLetter = "q_dead_letter"
)

// ---
// TASK PAYLOADS
// ---
// These are the structs that will be JSON-marshalled and sent to Redis.

// StorageCleanupPayload is the payload for QueueStorageCleanup. Keys
// are removed from the private bucket; ProjectID scopes the row purge.
type StorageCleanupPayload struct {
	ProjectID uint     `json:"project_id"`
	Keys      []string `json:"keys"`
}

// MirrorPrunePayload is the payload for QueueMirrorPrune.
type MirrorPrunePayload struct {
	SourceKeys []string `json:"source_keys"`
}

// ---
// HELPER FUNCTIONS
// ---

// Marshal creates a JSON payload for a task.
func Marshal(payload interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

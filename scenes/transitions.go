package scenes

import (
	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/models"
)

// allowedFrom lists the states a generation may be in for a transition
// into `to` to apply, derived from the closed transition graph.
func allowedFrom(to string) []string {
	var from []string
	for _, s := range models.NonTerminalStatuses() {
		if models.CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// transitionGeneration applies a conditional update moving a generation
// into `to`, keyed on the row still being in a state the transition
// graph admits. Whichever of the poller and the webhook path arrives
// first wins; the loser's update matches zero rows and is a no-op.
// Returns true when this caller performed the transition.
func transitionGeneration(db *gorm.DB, genID uint, to string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := db.Model(&models.Generation{}).
		Where("id = ? AND status IN ?", genID, allowedFrom(to)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// sceneStatusFor maps a generation status onto the parent scene.
func sceneStatusFor(generationStatus string) string {
	switch generationStatus {
	case models.GenerationStatusQueued:
		return models.SceneStatusQueued
	case models.GenerationStatusProcessing:
		return models.SceneStatusProcessing
	case models.GenerationStatusCompleted:
		return models.SceneStatusReady
	default:
		return models.SceneStatusError
	}
}

// syncSceneStatus mirrors a generation's status onto its scene, but
// only while that generation is still the scene's latest. A regenerate
// swaps the pointer, after which older attempts stop driving the scene.
func syncSceneStatus(db *gorm.DB, sceneID, genID uint, generationStatus string) error {
	return db.Model(&models.Scene{}).
		Where("id = ? AND latest_generation_id = ?", sceneID, genID).
		Update("status", sceneStatusFor(generationStatus)).Error
}

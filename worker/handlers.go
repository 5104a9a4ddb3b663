package worker

import (
	"context"
	"encoding/json"
	"log"

	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/tasks"
)

// HandleStorageCleanup processes tasks from QueueStorageCleanup: the
// cascade half of a hard project delete. The HTTP handler already
// removed the rows it could; this removes the backing objects and any
// public mirrors, then chains a mirror prune.
func (p *Processor) HandleStorageCleanup(ctx context.Context, payload string) error {
	var task tasks.StorageCleanupPayload
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return err
	}

	log.Printf("Cleaning up %d storage objects for project %d", len(task.Keys), task.ProjectID)

	if err := p.Storage.Remove(ctx, task.Keys); err != nil {
		return err
	}

	// Hard-delete the rows now that the objects are gone. Generations go
	// first inside one transaction: they hold the FK onto scenes, and the
	// cascade must cover them too.
	err := p.DB.Transaction(func(tx *gorm.DB) error {
		var sceneIDs []uint
		if err := tx.Unscoped().Model(&models.Scene{}).
			Where("project_id = ?", task.ProjectID).
			Pluck("id", &sceneIDs).Error; err != nil {
			return err
		}
		if len(sceneIDs) > 0 {
			if err := tx.Where("scene_id IN ?", sceneIDs).Delete(&models.Generation{}).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Where("project_id = ?", task.ProjectID).Delete(&models.Scene{}).Error
	})
	if err != nil {
		return err
	}

	// The prune is derivative cleanup: the objects and rows are already
	// gone, so an enqueue failure is logged rather than dead-lettering
	// the whole (idempotent) task.
	next := tasks.MirrorPrunePayload{SourceKeys: task.Keys}
	if err := p.Enqueue(ctx, tasks.QueueMirrorPrune, next); err != nil {
		log.Printf("Error queuing mirror prune for project %d: %v", task.ProjectID, err)
	}

	log.Printf("Storage cleanup complete for project %d", task.ProjectID)
	return nil
}

// HandleMirrorPrune processes tasks from QueueMirrorPrune, dropping
// public-bucket copies whose source objects no longer exist.
func (p *Processor) HandleMirrorPrune(ctx context.Context, payload string) error {
	var task tasks.MirrorPrunePayload
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return err
	}

	var mirrors []models.MediaMirror
	if err := p.DB.Where("source_key IN ?", task.SourceKeys).Find(&mirrors).Error; err != nil {
		return err
	}
	if len(mirrors) == 0 {
		return nil
	}

	publicKeys := make([]string, 0, len(mirrors))
	for _, m := range mirrors {
		publicKeys = append(publicKeys, m.PublicKey)
	}
	if err := p.Storage.RemovePublic(ctx, publicKeys); err != nil {
		return err
	}

	if err := p.DB.Where("source_key IN ?", task.SourceKeys).
		Delete(&models.MediaMirror{}).Error; err != nil {
		return err
	}

	log.Printf("Pruned %d mirrors", len(mirrors))
	return nil
}

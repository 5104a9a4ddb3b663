package scenes

import (
	"context"
	"log"

	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/provider"
)

// Regenerate starts a fresh render attempt for an existing scene. The
// history stays append-only: a new Generation row is created and the
// scene's version bumped; terminal attempts are never mutated. Rejected
// while a non-terminal attempt is still running.
func (s *Submitter) Regenerate(ctx context.Context, userID, sceneID uint) (*SubmitResult, error) {
	var scene models.Scene
	if err := s.DB.First(&scene, "id = ? AND user_id = ?", sceneID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.CodeNotFound, "scene not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeServer, "scene lookup failed", err)
	}

	var running int64
	if err := s.DB.Model(&models.Generation{}).
		Where("scene_id = ? AND status IN ?", scene.ID, models.NonTerminalStatuses()).
		Count(&running).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "generation lookup failed", err)
	}
	if running > 0 {
		return nil, apperrors.New(apperrors.CodeConflict, "a render attempt is already in progress for this scene")
	}

	var shotType models.ShotType
	if err := s.DB.First(&shotType, "id = ?", scene.ShotTypeID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "shot type lookup failed", err)
	}

	prompt := s.resolvePrompt(ctx, shotType)
	key := ComputeIdempotencyKey(scene.UserID, scene.ProjectID, scene.StartKey, scene.EndKey, scene.ShotTypeID, prompt)

	// Keyframes were mirrored on first submission; this hits the cache.
	startURL, err := s.Signer.EnsurePublic(ctx, scene.StartKey)
	if err != nil {
		return nil, err
	}
	var endURL string
	if scene.EndKey != nil {
		if endURL, err = s.Signer.EnsurePublic(ctx, *scene.EndKey); err != nil {
			return nil, err
		}
	}

	var gen models.Generation
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		gen = models.Generation{
			SceneID:        scene.ID,
			IdempotencyKey: key,
			Prompt:         prompt,
			Model:          shotType.DefaultModel,
			Status:         models.GenerationStatusQueued,
		}
		if err := tx.Create(&gen).Error; err != nil {
			return err
		}
		return tx.Model(&scene).Updates(map[string]interface{}{
			"latest_generation_id": gen.ID,
			"version":              gorm.Expr("version + 1"),
			"status":               models.SceneStatusQueued,
		}).Error
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "persist regeneration", err)
	}

	provReq := provider.SubmitRequest{
		Prompt:      prompt,
		Model:       shotType.DefaultModel,
		AspectRatio: shotType.AspectRatio,
		Loop:        shotType.Loop,
		Keyframes: provider.Keyframes{
			Frame0: provider.Keyframe{Type: "image", URL: startURL},
		},
	}
	if endURL != "" {
		provReq.Keyframes.Frame1 = &provider.Keyframe{Type: "image", URL: endURL}
	}

	jobID, err := s.Provider.Submit(ctx, provReq)
	if err != nil {
		ae := apperrors.From(err)
		if _, terr := transitionGeneration(s.DB, gen.ID, models.GenerationStatusError, map[string]interface{}{
			"error_code":    ae.Code,
			"error_message": ae.Message,
		}); terr != nil {
			log.Printf("failed to mark generation %d as error: %v", gen.ID, terr)
		}
		if serr := syncSceneStatus(s.DB, scene.ID, gen.ID, models.GenerationStatusError); serr != nil {
			log.Printf("failed to sync scene %d status: %v", scene.ID, serr)
		}
		return &SubmitResult{SceneID: scene.ID, GenerationID: gen.ID, Status: models.GenerationStatusError}, ae
	}

	if _, err := transitionGeneration(s.DB, gen.ID, models.GenerationStatusProcessing, map[string]interface{}{
		"provider_job_id": jobID,
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "record provider job id", err)
	}
	if err := syncSceneStatus(s.DB, scene.ID, gen.ID, models.GenerationStatusProcessing); err != nil {
		log.Printf("failed to sync scene %d status: %v", scene.ID, err)
	}

	log.Printf("scene %d regenerated as generation %d (provider job %s)", scene.ID, gen.ID, jobID)
	return &SubmitResult{SceneID: scene.ID, GenerationID: gen.ID, Status: models.GenerationStatusProcessing}, nil
}

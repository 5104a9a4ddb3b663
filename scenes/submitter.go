package scenes

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/provider"
	"github.com/Runetap54/edit-stream-manager-sub000/storage"
)

// ProviderAPI is the slice of the generation provider the submitter and
// poller need.
type ProviderAPI interface {
	Submit(ctx context.Context, req provider.SubmitRequest) (string, error)
	Status(ctx context.Context, jobID string) (*provider.JobStatus, error)
}

// EnhanceFunc optionally expands a shot-type template into a richer
// motion prompt. A nil func or an error falls back to the template.
type EnhanceFunc func(ctx context.Context, shotTypeName, template string) (string, error)

// Submitter validates a generation request and drives it to the
// provider, persisting a Scene and Generation along the way.
type Submitter struct {
	DB       *gorm.DB
	Provider ProviderAPI
	Signer   *storage.Signer
	Enhance  EnhanceFunc
}

// SubmitResult is what the client gets back from a successful (or
// error-persisted) submission.
type SubmitResult struct {
	SceneID      uint   `json:"scene_id"`
	GenerationID uint   `json:"generation_id"`
	Status       string `json:"status"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// SubmitRequest is the validated input to SubmitScene.
type SubmitRequest struct {
	UserID     uint
	ProjectID  uint
	StartKey   string
	EndKey     *string
	ShotTypeID string
}

// SubmitScene runs the full submission pipeline: ownership and approval
// checks, prompt resolution, atomic ordinal assignment, keyframe
// mirroring, idempotent persistence, then the provider call. A provider
// failure leaves the Scene visible in error status; rows are never
// rolled back once created.
func (s *Submitter) SubmitScene(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.StartKey == "" || req.ShotTypeID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "start_key and shot_type_id are required")
	}

	// Authorization by path prefix: keys must live under the caller's
	// own project directory.
	if !OwnsKey(req.UserID, req.ProjectID, req.StartKey) {
		return nil, apperrors.New(apperrors.CodeForbidden, "start_key does not belong to this project")
	}
	if req.EndKey != nil && !OwnsKey(req.UserID, req.ProjectID, *req.EndKey) {
		return nil, apperrors.New(apperrors.CodeForbidden, "end_key does not belong to this project")
	}

	var user models.User
	if err := s.DB.First(&user, req.UserID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAuth, "account not found", err)
	}
	if !user.IsApproved() {
		return nil, apperrors.New(apperrors.CodeForbidden, "account is not approved for generation")
	}

	var project models.Project
	if err := s.DB.First(&project, "id = ? AND user_id = ?", req.ProjectID, req.UserID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.CodeNotFound, "project not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeServer, "project lookup failed", err)
	}

	var shotType models.ShotType
	if err := s.DB.First(&shotType, "id = ?", req.ShotTypeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown shot type %q", req.ShotTypeID))
		}
		return nil, apperrors.Wrap(apperrors.CodeServer, "shot type lookup failed", err)
	}

	prompt := s.resolvePrompt(ctx, shotType)
	key := ComputeIdempotencyKey(req.UserID, req.ProjectID, req.StartKey, req.EndKey, req.ShotTypeID, prompt)

	// Idempotency at the submission boundary: an identical request with
	// a still-running generation is returned as-is instead of being
	// resubmitted to the provider.
	var inflight models.Generation
	err := s.DB.Joins("Scene").
		Where("generations.idempotency_key = ? AND generations.status IN ? AND \"Scene\".user_id = ?",
			key, models.NonTerminalStatuses(), req.UserID).
		First(&inflight).Error
	if err == nil {
		log.Printf("deduplicated submission for scene %d (generation %d still %s)", inflight.SceneID, inflight.ID, inflight.Status)
		return &SubmitResult{SceneID: inflight.SceneID, GenerationID: inflight.ID, Status: inflight.Status, Deduplicated: true}, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, apperrors.Wrap(apperrors.CodeServer, "idempotency lookup failed", err)
	}

	// Mirror keyframes into the public bucket before anything is
	// persisted; a copy failure aborts the whole submission.
	startURL, err := s.Signer.EnsurePublic(ctx, req.StartKey)
	if err != nil {
		return nil, err
	}
	var endURL string
	if req.EndKey != nil {
		if endURL, err = s.Signer.EnsurePublic(ctx, *req.EndKey); err != nil {
			return nil, err
		}
	}

	scene, gen, err := s.persistQueued(req, shotType, prompt, key)
	if err != nil {
		return nil, err
	}

	// Client-facing signed URLs; issuance failure here is not fatal,
	// the scene exists and the grant is refreshed on next access.
	s.Signer.Refresh(ctx, scene)

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
		// The failed scene stays visible rather than disappearing.
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

	log.Printf("scene %d generation %d submitted as provider job %s", scene.ID, gen.ID, jobID)
	return &SubmitResult{SceneID: scene.ID, GenerationID: gen.ID, Status: models.GenerationStatusProcessing}, nil
}

// resolvePrompt returns the shot type's template, optionally expanded
// by the prompt enhancer. Enhancement failures never block submission.
func (s *Submitter) resolvePrompt(ctx context.Context, shotType models.ShotType) string {
	if s.Enhance == nil {
		return shotType.PromptTemplate
	}
	enhanced, err := s.Enhance(ctx, shotType.Name, shotType.PromptTemplate)
	if err != nil {
		log.Printf("prompt enhancement failed for shot type %s, using template: %v", shotType.ID, err)
		return shotType.PromptTemplate
	}
	return enhanced
}

// persistQueued creates the Scene and its first Generation in one
// transaction, assigning the ordinal atomically from the project row.
func (s *Submitter) persistQueued(req SubmitRequest, shotType models.ShotType, prompt, key string) (*models.Scene, *models.Generation, error) {
	var scene models.Scene
	var gen models.Generation

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		ordinal, err := NextOrdinal(tx, req.ProjectID)
		if err != nil {
			return err
		}

		scene = models.Scene{
			UserID:     req.UserID,
			ProjectID:  req.ProjectID,
			Ordinal:    ordinal,
			Version:    1,
			StartKey:   req.StartKey,
			EndKey:     req.EndKey,
			ShotTypeID: shotType.ID,
			Status:     models.SceneStatusQueued,
		}
		if err := tx.Create(&scene).Error; err != nil {
			return err
		}

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

		return tx.Model(&scene).Update("latest_generation_id", gen.ID).Error
	})
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeServer, "persist scene", err)
	}
	scene.LatestGenerationID = &gen.ID
	return &scene, &gen, nil
}

// NextOrdinal advances the project's scene counter atomically. The
// single UPDATE ... RETURNING keeps concurrent submissions from ever
// observing the same ordinal.
func NextOrdinal(tx *gorm.DB, projectID uint) (int, error) {
	var ordinal int
	err := tx.Raw(
		"UPDATE projects SET next_ordinal = next_ordinal + 1 WHERE id = ? RETURNING next_ordinal",
		projectID,
	).Scan(&ordinal).Error
	if err != nil {
		return 0, err
	}
	if ordinal == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return ordinal, nil
}

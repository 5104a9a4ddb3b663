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

// Poller advances generations toward a terminal state. Polling is
// caller-driven: the client hits the tick endpoint on its own interval
// and stops whenever it loses interest, which never cancels the
// provider job. The webhook path reuses Complete/Fail so both racers
// go through the same conditional updates.
type Poller struct {
	DB       *gorm.DB
	Provider ProviderAPI
	Storage  *storage.Client
}

// Tick performs at most one provider status request and one local state
// update. Repeated ticks on an already-terminal generation short-circuit
// to the cached row without touching the provider.
func (p *Poller) Tick(ctx context.Context, userID, genID uint) (*models.Generation, error) {
	var gen models.Generation
	if err := p.DB.Preload("Scene").First(&gen, genID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.CodeNotFound, "generation not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeServer, "generation lookup failed", err)
	}
	if gen.Scene.UserID != userID {
		return nil, apperrors.New(apperrors.CodeForbidden, "generation belongs to another user")
	}

	if gen.IsTerminal() {
		return &gen, nil
	}
	if gen.ProviderJobID == "" {
		// Still queued locally; the submitter has not recorded a job yet.
		return &gen, nil
	}

	js, err := p.Provider.Status(ctx, gen.ProviderJobID)
	if err != nil {
		ae := apperrors.From(err)
		// Transient failures (and quota) leave the job processing for a
		// later tick; configuration and validation failures will never
		// resolve on their own, so the generation is failed now.
		if provider.Retryable(ae.Code) || ae.Code == apperrors.CodeQuotaExceeded {
			log.Printf("status poll for generation %d failed transiently (%s), leaving %s", gen.ID, ae.Code, gen.Status)
			return &gen, ae
		}
		return p.Fail(&gen, ae.Code, ae.Message)
	}

	switch js.State {
	case provider.StateQueued, provider.StateProcessing:
		if js.Progress != nil && *js.Progress != gen.Progress {
			if err := p.DB.Model(&gen).Where("status IN ?", models.NonTerminalStatuses()).
				Update("progress", *js.Progress).Error; err != nil {
				log.Printf("progress update for generation %d failed: %v", gen.ID, err)
			} else {
				gen.Progress = *js.Progress
			}
		}
		return &gen, nil

	case provider.StateCompleted:
		if js.Video == nil || js.Video.URL == "" {
			return p.Fail(&gen, apperrors.CodeAPI, "provider reported completion without a video URL")
		}
		return p.Complete(ctx, &gen, js.Video.URL)

	case provider.StateFailed:
		reason := "provider reported the job as failed"
		if js.FailureReason != nil && *js.FailureReason != "" {
			reason = *js.FailureReason
		}
		return p.Fail(&gen, apperrors.CodeUpstream, reason)

	default:
		return p.Fail(&gen, apperrors.CodeAPI, fmt.Sprintf("provider returned unknown state %q", js.State))
	}
}

// Complete downloads the rendered asset, archives it into durable
// storage, and conditionally moves the generation to completed. A
// download or archive failure marks the generation error even though
// the provider succeeded: that is a local archive failure, classified
// apart from the upstream codes.
func (p *Poller) Complete(ctx context.Context, gen *models.Generation, videoURL string) (*models.Generation, error) {
	data, err := p.Storage.Download(ctx, videoURL)
	if err != nil {
		ae := apperrors.From(err)
		return p.Fail(gen, apperrors.CodeArchive, ae.Message)
	}

	videoKey := fmt.Sprintf("%d/%d/renders/scene-%d/gen-%d.mp4",
		gen.Scene.UserID, gen.Scene.ProjectID, gen.SceneID, gen.ID)
	if err := p.Storage.Upload(ctx, videoKey, data, "video/mp4"); err != nil {
		return p.Fail(gen, apperrors.CodeArchive, "failed to archive rendered asset")
	}

	won, err := transitionGeneration(p.DB, gen.ID, models.GenerationStatusCompleted, map[string]interface{}{
		"video_key": videoKey,
		"progress":  100,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "complete generation", err)
	}
	if won {
		if err := syncSceneStatus(p.DB, gen.SceneID, gen.ID, models.GenerationStatusCompleted); err != nil {
			log.Printf("failed to sync scene %d status: %v", gen.SceneID, err)
		}
		log.Printf("generation %d completed, archived as %s", gen.ID, videoKey)
	}
	return p.reload(gen.ID)
}

// Fail conditionally moves the generation to error. A generation that
// already reached a terminal state is left untouched.
func (p *Poller) Fail(gen *models.Generation, code, message string) (*models.Generation, error) {
	won, err := transitionGeneration(p.DB, gen.ID, models.GenerationStatusError, map[string]interface{}{
		"error_code":    code,
		"error_message": message,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "fail generation", err)
	}
	if won {
		if err := syncSceneStatus(p.DB, gen.SceneID, gen.ID, models.GenerationStatusError); err != nil {
			log.Printf("failed to sync scene %d status: %v", gen.SceneID, err)
		}
		log.Printf("generation %d failed: %s (%s)", gen.ID, message, code)
	}
	return p.reload(gen.ID)
}

func (p *Poller) reload(genID uint) (*models.Generation, error) {
	var gen models.Generation
	if err := p.DB.Preload("Scene").First(&gen, genID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, "reload generation", err)
	}
	return &gen, nil
}

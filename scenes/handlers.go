package scenes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/storage"
)

type Handler struct {
	DB        *gorm.DB
	Submitter *Submitter
	Poller    *Poller
	Signer    *storage.Signer
}

func NewHandler(db *gorm.DB, submitter *Submitter, poller *Poller, signer *storage.Signer) *Handler {
	return &Handler{DB: db, Submitter: submitter, Poller: poller, Signer: signer}
}

type createSceneRequest struct {
	ProjectID  uint    `json:"project_id" binding:"required"`
	StartKey   string  `json:"start_key" binding:"required"`
	EndKey     *string `json:"end_key"`
	ShotTypeID string  `json:"shot_type_id" binding:"required"`
}

// CreateScene submits a new generation job.
func (h *Handler) CreateScene(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req createSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeValidation, "invalid request body", err))
		return
	}

	result, err := h.Submitter.SubmitScene(c.Request.Context(), SubmitRequest{
		UserID:     userID,
		ProjectID:  req.ProjectID,
		StartKey:   req.StartKey,
		EndKey:     req.EndKey,
		ShotTypeID: req.ShotTypeID,
	})
	if err != nil {
		// A provider failure still created the scene; surface both the
		// error and the row so the client can show it in error state.
		if result != nil {
			ae := apperrors.From(err)
			ae.Detail = "scene was created and is visible in error status"
			apperrors.Respond(c, ae)
			return
		}
		apperrors.Respond(c, err)
		return
	}

	apperrors.OK(c, http.StatusCreated, result)
}

// ListScenes returns the caller's scenes for one project, newest last.
func (h *Handler) ListScenes(c *gin.Context) {
	userID := c.GetUint("user_id")
	projectID, err := strconv.ParseUint(c.Query("project_id"), 10, 64)
	if err != nil {
		apperrors.Respond(c, apperrors.New(apperrors.CodeValidation, "project_id query parameter is required"))
		return
	}

	var scenes []models.Scene
	if err := h.DB.Where("project_id = ? AND user_id = ?", projectID, userID).
		Order("ordinal ASC").Find(&scenes).Error; err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "failed to list scenes", err))
		return
	}

	// Re-issue expired grants lazily so clients never receive a stale URL.
	now := time.Now()
	for i := range scenes {
		if scenes[i].GrantExpired(now) {
			h.Signer.Refresh(c.Request.Context(), &scenes[i])
		}
	}

	apperrors.OK(c, http.StatusOK, scenes)
}

// GetScene returns one scene with its full generation history.
func (h *Handler) GetScene(c *gin.Context) {
	userID := c.GetUint("user_id")
	scene, ok := h.loadOwnedScene(c, userID)
	if !ok {
		return
	}

	var generations []models.Generation
	if err := h.DB.Where("scene_id = ?", scene.ID).Order("id ASC").Find(&generations).Error; err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "failed to load generations", err))
		return
	}

	if scene.GrantExpired(time.Now()) {
		h.Signer.Refresh(c.Request.Context(), scene)
	}

	apperrors.OK(c, http.StatusOK, gin.H{"scene": scene, "generations": generations})
}

// Regenerate starts a new render attempt for a scene.
func (h *Handler) Regenerate(c *gin.Context) {
	userID := c.GetUint("user_id")
	sceneID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.Respond(c, apperrors.New(apperrors.CodeValidation, "invalid scene id"))
		return
	}

	result, regenErr := h.Submitter.Regenerate(c.Request.Context(), userID, uint(sceneID))
	if regenErr != nil {
		if result != nil {
			ae := apperrors.From(regenErr)
			ae.Detail = "generation was created and is visible in error status"
			apperrors.Respond(c, ae)
			return
		}
		apperrors.Respond(c, regenErr)
		return
	}

	apperrors.OK(c, http.StatusCreated, result)
}

// PollGeneration performs one poll tick for a generation.
func (h *Handler) PollGeneration(c *gin.Context) {
	userID := c.GetUint("user_id")
	genID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.Respond(c, apperrors.New(apperrors.CodeValidation, "invalid generation id"))
		return
	}

	gen, tickErr := h.Poller.Tick(c.Request.Context(), userID, uint(genID))
	if tickErr != nil && gen == nil {
		apperrors.Respond(c, tickErr)
		return
	}
	if tickErr != nil {
		// Transient poll failure: report the current state plus the error
		// so the client keeps its interval without losing the row.
		ae := apperrors.From(tickErr)
		ae.Detail = "current state returned; poll again later"
		apperrors.Respond(c, ae)
		return
	}

	apperrors.OK(c, http.StatusOK, gen)
}

// RefreshURLs explicitly re-issues the scene's signed keyframe URLs.
func (h *Handler) RefreshURLs(c *gin.Context) {
	userID := c.GetUint("user_id")
	scene, ok := h.loadOwnedScene(c, userID)
	if !ok {
		return
	}

	if err := h.Signer.Attach(c.Request.Context(), scene); err != nil {
		apperrors.Respond(c, err)
		return
	}
	apperrors.OK(c, http.StatusOK, scene)
}

// DeleteScene soft-deletes a scene. Storage objects survive until the
// project is hard-deleted and the cleanup worker sweeps them.
func (h *Handler) DeleteScene(c *gin.Context) {
	userID := c.GetUint("user_id")
	scene, ok := h.loadOwnedScene(c, userID)
	if !ok {
		return
	}

	if err := h.DB.Delete(scene).Error; err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "failed to delete scene", err))
		return
	}
	apperrors.OK(c, http.StatusOK, gin.H{"deleted": scene.ID})
}

// ListShotTypes returns the shot type catalogue.
func (h *Handler) ListShotTypes(c *gin.Context) {
	var shotTypes []models.ShotType
	if err := h.DB.Order("id ASC").Find(&shotTypes).Error; err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "failed to list shot types", err))
		return
	}
	apperrors.OK(c, http.StatusOK, shotTypes)
}

func (h *Handler) loadOwnedScene(c *gin.Context, userID uint) (*models.Scene, bool) {
	sceneID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.Respond(c, apperrors.New(apperrors.CodeValidation, "invalid scene id"))
		return nil, false
	}

	var scene models.Scene
	if err := h.DB.First(&scene, "id = ? AND user_id = ?", sceneID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			apperrors.Respond(c, apperrors.New(apperrors.CodeNotFound, "scene not found"))
		} else {
			apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "scene lookup failed", err))
		}
		return nil, false
	}
	return &scene, true
}

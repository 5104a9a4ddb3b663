package projects

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/storage"
	"github.com/Runetap54/edit-stream-manager-sub000/tasks"
)

type Handler struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Storage *storage.Client
}

func NewHandler(db *gorm.DB, rdb *redis.Client, stor *storage.Client) *Handler {
	return &Handler{DB: db, Redis: rdb, Storage: stor}
}

type createProjectRequest struct {
	Name string `json:"name" binding:"required,min=1,max=120"`
}

func (h *Handler) CreateProject(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeValidation, "invalid request body", err))
		return
	}

	project := models.Project{UserID: userID, Name: req.Name}
	if err := h.DB.Create(&project).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			apperrors.Respond(c, apperrors.New(apperrors.CodeConflict, "a project with this name already exists"))
			return
		}
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "failed to create project", err))
		return
	}

	apperrors.OK(c, http.StatusCreated, project)
}

func (h *Handler) ListProjects(c *gin.Context) {
	userID := c.GetUint("user_id")

	var projects []models.Project
	if err := h.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&projects).Error; err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "failed to list projects", err))
		return
	}

	for i := range projects {
		var count int64
		h.DB.Model(&models.Scene{}).Where("project_id = ?", projects[i].ID).Count(&count)
		projects[i].SceneCount = int(count)
	}

	apperrors.OK(c, http.StatusOK, projects)
}

// DeleteProject hard-deletes a project: the row goes now, the backing
// storage objects and scene rows follow asynchronously through the
// cleanup queue.
func (h *Handler) DeleteProject(c *gin.Context) {
	userID := c.GetUint("user_id")
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.Respond(c, apperrors.New(apperrors.CodeValidation, "invalid project id"))
		return
	}

	var project models.Project
	if err := h.DB.First(&project, "id = ? AND user_id = ?", projectID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			apperrors.Respond(c, apperrors.New(apperrors.CodeNotFound, "project not found"))
		} else {
			apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "project lookup failed", err))
		}
		return
	}

	prefix := fmt.Sprintf("%d/%d/", userID, project.ID)
	objects, err := h.Storage.List(c.Request.Context(), prefix)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, prefix+obj.Name)
	}

	if err := h.DB.Unscoped().Delete(&project).Error; err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "failed to delete project", err))
		return
	}

	payload, err := tasks.Marshal(tasks.StorageCleanupPayload{ProjectID: project.ID, Keys: keys})
	if err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "failed to enqueue cleanup", err))
		return
	}
	if err := h.Redis.LPush(c.Request.Context(), tasks.QueueStorageCleanup, payload).Err(); err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "failed to enqueue cleanup", err))
		return
	}

	apperrors.OK(c, http.StatusOK, gin.H{"deleted": project.ID, "objects_queued": len(keys)})
}

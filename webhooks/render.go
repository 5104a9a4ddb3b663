package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/internal/platform"
	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/scenes"
)

// SignatureHeader carries "sha256=<hex hmac>" over the exact raw body.
const SignatureHeader = "X-Render-Signature"

type Handler struct {
	DB     *gorm.DB
	Poller *scenes.Poller
	Secret string
}

func NewHandler(db *gorm.DB, poller *scenes.Poller) *Handler {
	return &Handler{
		DB:     db,
		Poller: poller,
		Secret: platform.Env("RENDER_WEBHOOK_SECRET", ""),
	}
}

// renderPayload is the push notification from the provider or the
// internal rendering pipeline.
type renderPayload struct {
	SceneID    uint            `json:"sceneId"`
	Version    int             `json:"version"`
	VideoURL   string          `json:"videoUrl"`
	RenderMeta json.RawMessage `json:"renderMeta,omitempty"`
	Status     string          `json:"status"`
}

// HandleRenderWebhook verifies the HMAC signature over the raw body and
// applies the same terminal transition as the poller. Any mismatch or
// missing header is rejected before a single row is touched.
func (h *Handler) HandleRenderWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeValidation, "invalid request body", err))
		return
	}

	if !VerifySignature(h.Secret, body, c.GetHeader(SignatureHeader)) {
		apperrors.Respond(c, apperrors.New(apperrors.CodeAuth, "invalid webhook signature"))
		return
	}

	var payload renderPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeValidation, "malformed webhook payload", err))
		return
	}

	var scene models.Scene
	if err := h.DB.First(&scene, payload.SceneID).Error; err != nil {
		apperrors.Respond(c, apperrors.New(apperrors.CodeNotFound, "scene not found"))
		return
	}
	if scene.Version != payload.Version || scene.LatestGenerationID == nil {
		// Stale callback for an attempt that has since been superseded.
		log.Printf("webhook for scene %d version %d ignored (current version %d)", scene.ID, payload.Version, scene.Version)
		c.JSON(http.StatusOK, gin.H{"received": true, "stale": true})
		return
	}

	var gen models.Generation
	if err := h.DB.Preload("Scene").First(&gen, *scene.LatestGenerationID).Error; err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.CodeServer, "generation lookup failed", err))
		return
	}

	// The poller may race this handler on the same row; both paths go
	// through the same conditional update, so the first writer wins and
	// the other observes a no-op.
	switch payload.Status {
	case "completed", "ready":
		if payload.VideoURL == "" {
			apperrors.Respond(c, apperrors.New(apperrors.CodeValidation, "completed webhook missing videoUrl"))
			return
		}
		if _, err := h.Poller.Complete(c.Request.Context(), &gen, payload.VideoURL); err != nil {
			apperrors.Respond(c, err)
			return
		}
	case "failed", "error":
		if _, err := h.Poller.Fail(&gen, apperrors.CodeUpstream, "rendering pipeline reported failure"); err != nil {
			apperrors.Respond(c, err)
			return
		}
	default:
		apperrors.Respond(c, apperrors.New(apperrors.CodeValidation, "unknown webhook status"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// VerifySignature checks an HMAC-SHA256 signature in the form
// "sha256=<hex>" against the raw body using a constant-time comparison.
// Missing secret, missing header, or malformed hex all reject.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign produces the signature header value for a body. Used by the
// internal rendering pipeline and by tests.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

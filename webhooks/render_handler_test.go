package webhooks

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/scenes"
	"github.com/Runetap54/edit-stream-manager-sub000/storage"
)

const testSecret = "test-webhook-secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Scene{}, &models.Generation{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedProcessing(t *testing.T, db *gorm.DB) (*models.Scene, *models.Generation) {
	t.Helper()
	scene := &models.Scene{
		UserID:     1,
		ProjectID:  1,
		Ordinal:    1,
		Version:    1,
		StartKey:   "1/1/scenes/uploads/start.png",
		ShotTypeID: "wide",
		Status:     models.SceneStatusProcessing,
	}
	if err := db.Create(scene).Error; err != nil {
		t.Fatalf("seed scene: %v", err)
	}
	gen := &models.Generation{
		SceneID:        scene.ID,
		ProviderJobID:  "job-1",
		IdempotencyKey: "test-key",
		Prompt:         "slow push in",
		Model:          "ray-2",
		Status:         models.GenerationStatusProcessing,
	}
	if err := db.Create(gen).Error; err != nil {
		t.Fatalf("seed generation: %v", err)
	}
	if err := db.Model(scene).Update("latest_generation_id", gen.ID).Error; err != nil {
		t.Fatalf("link generation: %v", err)
	}
	return scene, gen
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/render", h.HandleRenderWebhook)
	return r
}

func postWebhook(r *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/render", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRenderWebhookRejectsBadSignatureBeforeStateChange(t *testing.T) {
	db := newTestDB(t)
	scene, gen := seedProcessing(t, db)

	h := &Handler{DB: db, Poller: &scenes.Poller{DB: db}, Secret: testSecret}
	r := newTestRouter(h)

	body := fmt.Sprintf(`{"sceneId":%d,"version":1,"videoUrl":"http://assets/out.mp4","status":"completed"}`, scene.ID)
	w := postWebhook(r, body, Sign("wrong-secret", []byte(body)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	var reloaded models.Generation
	if err := db.First(&reloaded, gen.ID).Error; err != nil {
		t.Fatalf("reload generation: %v", err)
	}
	if reloaded.Status != models.GenerationStatusProcessing {
		t.Errorf("generation status = %q after rejected webhook, want %q", reloaded.Status, models.GenerationStatusProcessing)
	}
}

func TestRenderWebhookCompletedArchivesAsset(t *testing.T) {
	db := newTestDB(t)
	scene, gen := seedProcessing(t, db)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/renders/") {
			w.Write([]byte("mp4-bytes"))
		}
	}))
	t.Cleanup(srv.Close)
	stor := &storage.Client{
		BaseURL:       srv.URL,
		PrivateBucket: "media",
		PublicBucket:  "media-public",
		HTTPClient:    srv.Client(),
	}

	h := &Handler{DB: db, Poller: &scenes.Poller{DB: db, Storage: stor}, Secret: testSecret}
	r := newTestRouter(h)

	body := fmt.Sprintf(`{"sceneId":%d,"version":1,"videoUrl":"%s/renders/out.mp4","status":"completed"}`, scene.ID, srv.URL)
	w := postWebhook(r, body, Sign(testSecret, []byte(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var reloaded models.Generation
	if err := db.First(&reloaded, gen.ID).Error; err != nil {
		t.Fatalf("reload generation: %v", err)
	}
	if reloaded.Status != models.GenerationStatusCompleted {
		t.Errorf("generation status = %q, want %q", reloaded.Status, models.GenerationStatusCompleted)
	}
	if reloaded.VideoKey == "" {
		t.Error("video key not recorded")
	}
}

func TestRenderWebhookFailureIsTerminal(t *testing.T) {
	db := newTestDB(t)
	scene, gen := seedProcessing(t, db)

	h := &Handler{DB: db, Poller: &scenes.Poller{DB: db}, Secret: testSecret}
	r := newTestRouter(h)

	body := fmt.Sprintf(`{"sceneId":%d,"version":1,"status":"failed"}`, scene.ID)
	if w := postWebhook(r, body, Sign(testSecret, []byte(body))); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var reloaded models.Generation
	if err := db.First(&reloaded, gen.ID).Error; err != nil {
		t.Fatalf("reload generation: %v", err)
	}
	if reloaded.Status != models.GenerationStatusError {
		t.Fatalf("generation status = %q, want %q", reloaded.Status, models.GenerationStatusError)
	}
	if reloaded.ErrorCode != apperrors.CodeUpstream {
		t.Errorf("error code = %q, want %q", reloaded.ErrorCode, apperrors.CodeUpstream)
	}

	// A duplicate delivery lands on a terminal row and must change nothing.
	if w := postWebhook(r, body, Sign(testSecret, []byte(body))); w.Code != http.StatusOK {
		t.Fatalf("duplicate delivery status = %d, want %d", w.Code, http.StatusOK)
	}
	var again models.Generation
	if err := db.First(&again, gen.ID).Error; err != nil {
		t.Fatalf("reload generation: %v", err)
	}
	if again.Status != models.GenerationStatusError || !again.UpdatedAt.Equal(reloaded.UpdatedAt) {
		t.Errorf("terminal generation changed on duplicate delivery: status %q", again.Status)
	}
}

func TestRenderWebhookIgnoresStaleVersion(t *testing.T) {
	db := newTestDB(t)
	scene, gen := seedProcessing(t, db)

	h := &Handler{DB: db, Poller: &scenes.Poller{DB: db}, Secret: testSecret}
	r := newTestRouter(h)

	body := fmt.Sprintf(`{"sceneId":%d,"version":99,"status":"failed"}`, scene.ID)
	w := postWebhook(r, body, Sign(testSecret, []byte(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"stale":true`) {
		t.Errorf("response %s does not mark the delivery stale", w.Body.String())
	}
	var reloaded models.Generation
	if err := db.First(&reloaded, gen.ID).Error; err != nil {
		t.Fatalf("reload generation: %v", err)
	}
	if reloaded.Status != models.GenerationStatusProcessing {
		t.Errorf("generation status = %q after stale delivery, want %q", reloaded.Status, models.GenerationStatusProcessing)
	}
}

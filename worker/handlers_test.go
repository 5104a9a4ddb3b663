package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/storage"
	"github.com/Runetap54/edit-stream-manager-sub000/tasks"
)

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
	if err := db.AutoMigrate(&models.Scene{}, &models.Generation{}, &models.MediaMirror{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func newTestProcessor(t *testing.T, db *gorm.DB) *Processor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)
	stor := &storage.Client{
		BaseURL:       srv.URL,
		PrivateBucket: "media",
		PublicBucket:  "media-public",
		HTTPClient:    srv.Client(),
	}
	// No redis in unit tests; the prune enqueue fails and is logged.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { rdb.Close() })
	return NewProcessor(db, rdb, stor)
}

func TestStorageCleanupDeletesScenesAndGenerations(t *testing.T) {
	db := newTestDB(t)
	p := newTestProcessor(t, db)

	scene := &models.Scene{
		UserID:     1,
		ProjectID:  7,
		Ordinal:    1,
		StartKey:   "1/7/scenes/uploads/start.png",
		ShotTypeID: "wide",
	}
	if err := db.Create(scene).Error; err != nil {
		t.Fatalf("seed scene: %v", err)
	}
	gen := &models.Generation{
		SceneID:        scene.ID,
		IdempotencyKey: "test-key",
		Prompt:         "slow push in",
		Model:          "ray-2",
		Status:         models.GenerationStatusCompleted,
	}
	if err := db.Create(gen).Error; err != nil {
		t.Fatalf("seed generation: %v", err)
	}
	// Project deletion soft-deletes the scenes before queueing cleanup.
	if err := db.Delete(&models.Scene{}, scene.ID).Error; err != nil {
		t.Fatalf("soft-delete scene: %v", err)
	}

	payload, err := tasks.Marshal(tasks.StorageCleanupPayload{
		ProjectID: 7,
		Keys:      []string{scene.StartKey},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := p.HandleStorageCleanup(context.Background(), payload); err != nil {
		t.Fatalf("HandleStorageCleanup: %v", err)
	}

	var sceneCount, genCount int64
	if err := db.Unscoped().Model(&models.Scene{}).Where("project_id = ?", 7).Count(&sceneCount).Error; err != nil {
		t.Fatalf("count scenes: %v", err)
	}
	if err := db.Model(&models.Generation{}).Where("scene_id = ?", scene.ID).Count(&genCount).Error; err != nil {
		t.Fatalf("count generations: %v", err)
	}
	if sceneCount != 0 {
		t.Errorf("scenes left after cleanup = %d, want 0", sceneCount)
	}
	if genCount != 0 {
		t.Errorf("generations left after cleanup = %d, want 0", genCount)
	}
}

package scenes

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Runetap54/edit-stream-manager-sub000/models"
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
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Scene{}, &models.Generation{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedSceneWithGeneration(t *testing.T, db *gorm.DB, status string) (*models.Scene, *models.Generation) {
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
		Status:         status,
	}
	if err := db.Create(gen).Error; err != nil {
		t.Fatalf("seed generation: %v", err)
	}
	if err := db.Model(scene).Update("latest_generation_id", gen.ID).Error; err != nil {
		t.Fatalf("link generation: %v", err)
	}
	scene.LatestGenerationID = &gen.ID
	return scene, gen
}

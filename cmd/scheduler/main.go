package main

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/internal/platform"
	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/storage"
)

// refreshHorizon is how close to expiry a scene's signed URLs may get
// before the sweep re-issues them.
const refreshHorizon = 10 * time.Minute

func main() {
	// Use the shared initializers
	db := platform.NewDBConnection()
	storageClient := storage.NewClient()
	signer := storage.NewSigner(storageClient, db)

	c := cron.New()

	_, err := c.AddFunc("@every 5m", func() {
		refreshExpiringGrants(context.Background(), db, signer)
	})
	if err != nil {
		log.Fatalf("Error scheduling grant refresh: %v", err)
	}

	c.Start()
	defer c.Stop()

	log.Println("Scheduler started, sweeping for expiring signed URLs...")
	// Keep the main thread alive
	select {}
}

// refreshExpiringGrants re-issues keyframe URLs for live scenes whose
// grants expire inside the horizon. Failures are logged and retried on
// the next sweep; the stale URL stays in place meanwhile.
func refreshExpiringGrants(ctx context.Context, db *gorm.DB, signer *storage.Signer) {
	cutoff := time.Now().Add(refreshHorizon)

	var scenes []models.Scene
	if err := db.Where("url_expires_at IS NULL OR url_expires_at < ?", cutoff).
		Limit(200).Find(&scenes).Error; err != nil {
		log.Printf("Error querying scenes for grant refresh: %v", err)
		return
	}
	if len(scenes) == 0 {
		return
	}

	log.Printf("Refreshing signed URLs for %d scenes", len(scenes))
	for i := range scenes {
		signer.Refresh(ctx, &scenes[i])
	}
}

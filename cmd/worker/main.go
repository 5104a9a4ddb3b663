package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/Runetap54/edit-stream-manager-sub000/internal/platform"
	"github.com/Runetap54/edit-stream-manager-sub000/storage"
	"github.com/Runetap54/edit-stream-manager-sub000/tasks"
	"github.com/Runetap54/edit-stream-manager-sub000/worker"
)

func main() {
	// Use the shared initializers
	db := platform.NewDBConnection()
	rdb := platform.NewRedisClient()
	storageClient := storage.NewClient()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor := worker.NewProcessor(db, rdb, storageClient)
	processor.Register(tasks.QueueStorageCleanup, processor.HandleStorageCleanup)
	processor.Register(tasks.QueueMirrorPrune, processor.HandleMirrorPrune)

	log.Println("Worker started, waiting for queue tasks...")
	processor.Listen(ctx, tasks.QueueStorageCleanup, tasks.QueueMirrorPrune)
}

package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/storage"
	"github.com/Runetap54/edit-stream-manager-sub000/tasks"
)

// TaskHandler is a function that processes a task payload.
type TaskHandler func(ctx context.Context, payload string) error

// Processor holds dependencies and registered task handlers.
type Processor struct {
	DB       *gorm.DB
	RDB      *redis.Client
	Storage  *storage.Client
	handlers map[string]TaskHandler
}

// NewProcessor creates a new worker processor.
func NewProcessor(db *gorm.DB, rdb *redis.Client, stor *storage.Client) *Processor {
	return &Processor{
		DB:       db,
		RDB:      rdb,
		Storage:  stor,
		handlers: make(map[string]TaskHandler),
	}
}

// Register maps a queue name (task type) to a handler function.
func (p *Processor) Register(queueName string, handler TaskHandler) {
	p.handlers[queueName] = handler
	log.Printf("Registered handler for queue: %s", queueName)
}

// Enqueue is a helper to add a new task to a queue.
func (p *Processor) Enqueue(ctx context.Context, queueName string, payload interface{}) error {
	payloadStr, err := tasks.Marshal(payload)
	if err != nil {
		return err
	}
	return p.RDB.LPush(ctx, queueName, payloadStr).Err()
}

// deadLetter records a payload its handler could not process so it can
// be inspected and replayed by hand.
func (p *Processor) deadLetter(ctx context.Context, queueName, payload string, cause error) {
	entry, err := json.Marshal(map[string]string{
		"queue":   queueName,
		"payload": payload,
		"error":   cause.Error(),
	})
	if err != nil {
		log.Printf("Error marshalling dead letter for %s: %v", queueName, err)
		return
	}
	if err := p.RDB.LPush(ctx, tasks.QueueDeadLetter, entry).Err(); err != nil {
		log.Printf("Error pushing dead letter for %s: %v", queueName, err)
	}
}

// Listen starts the worker, listening on all registered queues until
// the context is cancelled.
func (p *Processor) Listen(ctx context.Context, queueNames ...string) {
	log.Printf("Worker listening on %d queues: %v", len(queueNames), queueNames)

	for {
		// BRPop blocks until a task is available on any of the listed
		// queues; the timeout lets cancellation interrupt the loop.
		result, err := p.RDB.BRPop(ctx, 5*time.Second, queueNames...).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Worker shutting down")
				return
			}
			log.Printf("Error popping from queue: %v", err)
			time.Sleep(time.Second)
			continue
		}

		// result[0] is the queue name, result[1] is the payload
		queueName := result[0]
		payload := result[1]

		handler, ok := p.handlers[queueName]
		if !ok {
			log.Printf("Error: No handler registered for queue %s", queueName)
			continue
		}

		log.Printf("Received task from queue %s", queueName)

		if err := handler(ctx, payload); err != nil {
			log.Printf("Error processing task from %s: %v", queueName, err)
			p.deadLetter(ctx, queueName, payload, err)
		}
	}
}

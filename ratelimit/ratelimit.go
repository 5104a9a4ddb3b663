package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
)

// Limiter is a fixed-window request counter. The in-memory
// implementation is only suitable for a single instance; multi-instance
// deployments must use the Redis one so the window is shared.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is the process-local fixed-window limiter.
type Memory struct {
	Limit  int
	Window time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemory(limit int, windowSize time.Duration) *Memory {
	return &Memory{Limit: limit, Window: windowSize, windows: make(map[string]*window)}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	w, ok := m.windows[key]
	if !ok || now.After(w.resetAt) {
		m.windows[key] = &window{count: 1, resetAt: now.Add(m.Window)}
		return true, nil
	}
	if w.count >= m.Limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Redis is the shared-store fixed-window limiter backed by INCR+EXPIRE.
type Redis struct {
	Client *redis.Client
	Limit  int
	Window time.Duration
}

func NewRedis(client *redis.Client, limit int, windowSize time.Duration) *Redis {
	return &Redis{Client: client, Limit: limit, Window: windowSize}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key
	count, err := r.Client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.Client.Expire(ctx, redisKey, r.Window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(r.Limit), nil
}

// Middleware rejects requests over the caller's window with a
// RATE_LIMITED envelope. Limiter failures fail open: losing Redis must
// not take submissions down with it.
func Middleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("user:%d", c.GetUint("user_id"))
		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			apperrors.Respond(c, apperrors.New(apperrors.CodeRateLimited, "too many requests, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}

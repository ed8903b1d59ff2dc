package middleware

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/quantsix/seqd/app/dto"
	"github.com/redis/go-redis/v9"
)

// Throttler enforces a minimum interval between requests per client IP.
// With a Redis client the marker is shared across instances via SET NX;
// without one it falls back to an in-process map.
type Throttler struct {
	rateLimit time.Duration
	redis     *redis.Client

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewThrottler creates a throttler; rc may be nil.
func NewThrottler(rateLimit time.Duration, rc *redis.Client) *Throttler {
	return &Throttler{
		rateLimit: rateLimit,
		redis:     rc,
		lastSeen:  make(map[string]time.Time),
	}
}

// Handle is the middleware function that rejects over-rate clients with 429
func (t *Throttler) Handle() fiber.Handler {
	return func(c fiber.Ctx) error {
		if t.rateLimit <= 0 {
			return c.Next()
		}

		if t.allowed(c.IP()) {
			return c.Next()
		}

		return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
			Success: false,
			Message: "Too many requests",
			Error:   dto.ErrorDetail{Code: "THROTTLED"},
		})
	}
}

func (t *Throttler) allowed(ip string) bool {
	if t.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		ok, err := t.redis.SetNX(ctx, "throttle:"+ip, 1, t.rateLimit).Result()
		if err == nil {
			return ok
		}
		// fall through to the in-memory path on Redis trouble
		log.Println("Throttle redis check failed", err)
	}

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastSeen[ip]; ok && now.Sub(last) < t.rateLimit {
		return false
	}
	if len(t.lastSeen) > 16384 {
		t.prune(now)
	}
	t.lastSeen[ip] = now
	return true
}

// prune drops entries old enough to be irrelevant; called with mu held.
func (t *Throttler) prune(now time.Time) {
	for ip, last := range t.lastSeen {
		if now.Sub(last) >= t.rateLimit {
			delete(t.lastSeen, ip)
		}
	}
}

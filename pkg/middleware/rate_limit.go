package middleware

import (
	"net/http"
	"sync"
	"time"

	"slotbook/pkg/logger"
)

// OwnerRateLimiter applies a sliding-window request limit per authenticated
// owner. Requests without an owner in context (health probes) pass through.
type OwnerRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	log      *logger.Logger
	stopCh   chan struct{}
}

func NewOwnerRateLimiter(limit int, window time.Duration, log *logger.Logger) *OwnerRateLimiter {
	limiter := &OwnerRateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		log:      log,
		stopCh:   make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *OwnerRateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for owner, timestamps := range rl.requests {
				if len(timestamps) == 0 || time.Since(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, owner)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *OwnerRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *OwnerRateLimiter) Allow(ownerID string) bool {
	if ownerID == "" {
		return true
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.requests[ownerID][:0:0]
	for _, ts := range rl.requests[ownerID] {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[ownerID] = valid
		return false
	}

	rl.requests[ownerID] = append(valid, now)
	return true
}

func OwnerRateLimit(limiter *OwnerRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := OwnerIDFrom(r.Context())

			if !limiter.Allow(ownerID) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", requestIDFrom(r.Context()),
					"owner_id", ownerID,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

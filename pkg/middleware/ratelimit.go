package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/waypoint/pkg/contextkeys"
	"github.com/platinummonkey/waypoint/pkg/httputil"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns the anonymous caller limits
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// ActorRateLimitConfig returns the limits for resolved actors
func ActorRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

func (c *RateLimitConfig) capacity() int {
	return c.RequestsPerWindow + c.BurstSize
}

// RateLimiter is a keyed token bucket limiter
type RateLimiter struct {
	config *RateLimitConfig
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a new rate limiter. A nil config uses
// DefaultRateLimitConfig.
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from key's bucket
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.config.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}

	refill := int(now.Sub(b.lastUpdate).Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if refill > 0 {
		b.tokens += refill
		if b.tokens > rl.config.capacity() {
			b.tokens = rl.config.capacity()
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the number of tokens left for key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, exists := rl.buckets[key]; exists {
		return b.tokens
	}
	return rl.config.capacity()
}

// Cleanup drops buckets idle for more than two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup once per window until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware limits resolved actors by user id and anonymous
// callers by client address. It must run after ActorMiddleware.
type RateLimitMiddleware struct {
	actorLimiter     *RateLimiter
	anonymousLimiter *RateLimiter
}

// NewRateLimitMiddleware creates a rate limit middleware. Nil configs use
// the defaults.
func NewRateLimitMiddleware(actor, anonymous *RateLimitConfig) *RateLimitMiddleware {
	if actor == nil {
		actor = ActorRateLimitConfig()
	}
	return &RateLimitMiddleware{
		actorLimiter:     NewRateLimiter(actor),
		anonymousLimiter: NewRateLimiter(anonymous),
	}
}

// StartCleanup starts bucket cleanup for both limiters
func (m *RateLimitMiddleware) StartCleanup(ctx context.Context) {
	m.actorLimiter.StartCleanup(ctx)
	m.anonymousLimiter.StartCleanup(ctx)
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limiter := m.limiterFor(r)

		if !limiter.Allow(key) {
			retryAfter := limiter.config.WindowDuration.Seconds()
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
			setRateLimitHeaders(w, limiter, 0)
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		setRateLimitHeaders(w, limiter, limiter.Remaining(key))
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) limiterFor(r *http.Request) (string, *RateLimiter) {
	if actor := contextkeys.GetUserID(r.Context()); actor != "" {
		return "user:" + actor, m.actorLimiter
	}
	return "ip:" + getClientIP(r), m.anonymousLimiter
}

func setRateLimitHeaders(w http.ResponseWriter, limiter *RateLimiter, remaining int) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", limiter.now().Add(limiter.config.WindowDuration).Unix()))
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

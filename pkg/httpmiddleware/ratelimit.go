package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window and key.
	Max int
	// Window is the length of one window.
	Window time.Duration
	// KeyFunc extracts the rate limit key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests, e.g. health probes.
	Skip func(*http.Request) bool
}

// counter approximates a sliding window from two fixed windows: the count of
// the previous window is weighted by how much of it still overlaps.
type counter struct {
	prev, curr float64
	currStart  time.Time
}

type rateLimiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	counters map[string]*counter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &rateLimiter{cfg: cfg, counters: make(map[string]*counter)}
}

// allow records a request for key if it fits the budget.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	window := rl.cfg.Window
	c, found := rl.counters[key]
	if !found {
		c = &counter{currStart: now.Truncate(window)}
		rl.counters[key] = c
	}

	switch elapsed := now.Sub(c.currStart); {
	case elapsed >= 2*window:
		c.prev, c.curr = 0, 0
		c.currStart = now.Truncate(window)
	case elapsed >= window:
		c.prev, c.curr = c.curr, 0
		c.currStart = c.currStart.Add(window)
	}

	overlap := math.Max(0, 1-now.Sub(c.currStart).Seconds()/window.Seconds())
	used := c.prev*overlap + c.curr
	resetAt = c.currStart.Add(window)

	if used >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}
	c.curr++
	return max(0, int(float64(rl.cfg.Max)-used-1)), resetAt, true
}

// evict drops counters idle for two full windows.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, c := range rl.counters {
		if now.Sub(c.currStart) >= 2*rl.cfg.Window {
			delete(rl.counters, key)
		}
	}
}

// RateLimit enforces a per-key sliding window limit. Rejected requests get
// 429 with a JSON error body; every response carries X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine evicting idle keys
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * rl.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.evict(now)
			}
		}
	}()
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(rl.cfg.Max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		remaining, resetAt, ok := rl.allow(rl.cfg.KeyFunc(r), time.Now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := max(0, time.Until(resetAt))
		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		h.Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    http.StatusTooManyRequests,
			"message": "rate limit exceeded",
		})
	})
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CredentialKeyFunc keys requests by the first present credential header so
// each caller has its own budget. Values are hashed before being used as
// keys. Requests without credentials fall back to ClientIP.
func CredentialKeyFunc(headers ...string) func(*http.Request) string {
	return func(r *http.Request) string {
		for _, name := range headers {
			if v := r.Header.Get(name); v != "" {
				sum := sha256.Sum256([]byte(v))
				return "cred:" + hex.EncodeToString(sum[:8])
			}
		}
		return ClientIP(r)
	}
}

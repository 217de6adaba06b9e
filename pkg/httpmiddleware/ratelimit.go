package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket limiter.
type RateLimitConfig struct {
	// Max is the bucket size: the burst a client may send at once, refilled
	// evenly over Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

type rateLimiter struct {
	max    int
	window time.Duration
	limit  rate.Limit
	key    func(*http.Request) string
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	return &rateLimiter{
		max:     cfg.Max,
		window:  cfg.Window,
		limit:   rate.Limit(float64(cfg.Max) / cfg.Window.Seconds()),
		key:     key,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (rl *rateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.max)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// evict forgets buckets idle for a whole window. Such a bucket has refilled
// completely, so a fresh one behaves the same.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.seen) >= rl.window {
			delete(rl.buckets, key)
		}
	}
}

// take spends one token of key's bucket. When the bucket is empty it reports
// how long until the next token.
func (rl *rateLimiter) take(key string) (remaining int, full time.Time, retry time.Duration, ok bool) {
	now := rl.now()
	lim := rl.limiter(key, now)

	ok = lim.AllowN(now, 1)
	if !ok {
		r := lim.ReserveN(now, 1)
		retry = r.DelayFrom(now)
		r.CancelAt(now)
	}

	tokens := max(lim.TokensAt(now), 0)
	missing := float64(rl.max) - tokens
	full = now.Add(time.Duration(missing / float64(rl.limit) * float64(time.Second)))
	return int(tokens), full, retry, ok
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, full, retry, ok := rl.take(rl.key(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(full.Unix(), 10))
		if !ok {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit limits every client to cfg.Max requests per cfg.Window, answering
// 429 RATE_LIMITED beyond that. A zero Max or Window disables the limit.
//
// Buckets are never evicted; long running servers use RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit that also evicts idle buckets once per
// window until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return RateLimit(cfg)
	}
	rl := newRateLimiter(cfg)
	go func() {
		ticker := time.NewTicker(cfg.Window)
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

// ClientIP keys requests by the first X-Forwarded-For hop, X-Real-IP, or the
// connection's remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CredentialKey keys requests by the first non-empty header among headers,
// so an authenticated client keeps its budget across addresses. Requests
// without credentials fall back to ClientIP. Header values are hashed and
// never kept in memory as-is.
func CredentialKey(headers ...string) func(*http.Request) string {
	return func(r *http.Request) string {
		for _, name := range headers {
			if v := r.Header.Get(name); v != "" {
				sum := sha256.Sum256([]byte(v))
				return name + ":" + hex.EncodeToString(sum[:8])
			}
		}
		return "ip:" + ClientIP(r)
	}
}

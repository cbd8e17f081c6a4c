package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/httputil"
)

// ipRateLimiter hands out one token-bucket limiter per client IP,
// adapted from the pack's per-IP rate limiter idiom onto
// golang.org/x/time/rate and this server's RateLimitConfig.
type ipRateLimiter struct {
	cfg config.RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*rateLimiterEntry
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const rateLimiterMaxIdle = 10 * time.Minute

func newIPRateLimiter(cfg config.RateLimitConfig) *ipRateLimiter {
	return &ipRateLimiter{cfg: cfg, limiters: make(map[string]*rateLimiterEntry)}
}

func (rl *ipRateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for addr, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rateLimiterMaxIdle {
			delete(rl.limiters, addr)
		}
	}

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// middleware rejects requests once a client IP exceeds its token
// bucket, reported through the same apierr taxonomy every other
// handler uses rather than a bare http.Error.
func (rl *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cfg.RequestsPerSecond <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.limiterFor(clientIP(r)).Allow() {
			httputil.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

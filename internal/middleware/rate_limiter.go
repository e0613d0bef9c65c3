package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an IP may stay silent before its limiter is dropped
const idleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP and blocks offenders for a while
type RateLimiter struct {
	ips           map[string]*visitor
	blockedIPs    map[string]time.Time
	mu            sync.Mutex
	limit         rate.Limit
	burst         int
	blockDuration time.Duration
	now           func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per second with burst
func NewRateLimiter(limit rate.Limit, burst int, blockDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		ips:           make(map[string]*visitor),
		blockedIPs:    make(map[string]time.Time),
		limit:         limit,
		burst:         burst,
		blockDuration: blockDuration,
		now:           time.Now,
	}
}

// NewLoginRateLimiter allows a burst of 5 attempts then one every 2 seconds
func NewLoginRateLimiter() *RateLimiter {
	return NewRateLimiter(rate.Every(2*time.Second), 5, 5*time.Minute)
}

// Run drops expired blocks and idle limiters until ctx is done
func (rl *RateLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, blockUntil := range rl.blockedIPs {
		if now.After(blockUntil) {
			delete(rl.blockedIPs, ip)
			// Also remove the limiter to reset its state
			delete(rl.ips, ip)
		}
	}
	for ip, v := range rl.ips {
		if _, blocked := rl.blockedIPs[ip]; blocked {
			continue
		}
		if now.Sub(v.lastSeen) > idleTTL {
			delete(rl.ips, ip)
		}
	}
}

// Limit wraps next with the limiter
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if retryAfter, blocked := rl.blocked(ip); blocked {
			w.Header().Set("Retry-After", retryAfter.Format(http.TimeFormat))
			writeError(w, http.StatusTooManyRequests, "IP address blocked due to too many requests")
			return
		}

		if !rl.allow(ip) {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) blocked(ip string) (time.Time, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	blockUntil, ok := rl.blockedIPs[ip]
	if !ok {
		return time.Time{}, false
	}
	if rl.now().Before(blockUntil) {
		return blockUntil, true
	}
	// Block has expired - remove it and reset the limiter
	delete(rl.blockedIPs, ip)
	delete(rl.ips, ip)
	return time.Time{}, false
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	v, ok := rl.ips[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.ips[ip] = v
	}
	v.lastSeen = now
	if v.limiter.AllowN(now, 1) {
		return true
	}
	rl.blockedIPs[ip] = now.Add(rl.blockDuration)
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
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

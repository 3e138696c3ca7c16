package devserver

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	idleVisitor  = 3 * time.Minute
	pruneEvery   = time.Minute
	rateLimitMsg = "too many requests - slow down"
)

type visitor struct {
	bucket *rate.Limiter
	seen   time.Time
}

// RateLimiter keeps one token bucket per remote IP. Buckets idle for
// idleVisitor are pruned in the background until Close.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor

	done chan struct{}
	once sync.Once
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		visitors: map[string]*visitor{},
		done:     make(chan struct{}),
	}
	go rl.pruneLoop()
	return rl
}

// reserve takes a token for ip. When none is left it reports how long
// until one is.
func (rl *RateLimiter) reserve(ip string) (bool, time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	v := rl.visitors[ip]
	if v == nil {
		v = &visitor{bucket: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.seen = now
	rl.mu.Unlock()

	if v.bucket.AllowN(now, 1) {
		return true, 0
	}
	missing := 1 - v.bucket.TokensAt(now)
	return false, time.Duration(missing / float64(rl.limit) * float64(time.Second))
}

func (rl *RateLimiter) prune() {
	cutoff := rl.now().Add(-idleVisitor)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if v.seen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *RateLimiter) pruneLoop() {
	t := time.NewTicker(pruneEvery)
	defer t.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-t.C:
			rl.prune()
		}
	}
}

func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

// Middleware answers 429 with a Retry-After hint once an IP is over
// budget.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, wait := rl.reserve(remoteIP(r))
		if !allowed {
			secs := math.Ceil(wait.Seconds())
			if secs < 1 || math.IsInf(secs, 0) || secs > 3600 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(secs)))
			fail(w, http.StatusTooManyRequests, rateLimitMsg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

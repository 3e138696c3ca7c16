package gateway

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// host wraps a limiter with the last time it was used so idle hosts can be
// pruned.
type host struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle keeps outgoing requests under a rate per destination host.
type Throttle struct {
	mu    sync.Mutex
	hosts map[string]*host
	r     rate.Limit
	b     int
	ttl   time.Duration
}

// NewThrottle allows rps requests per second per host with the given burst.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		hosts: make(map[string]*host),
		r:     rate.Limit(rps),
		b:     burst,
		ttl:   3 * time.Minute,
	}
}

func (t *Throttle) limiter(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for k, h := range t.hosts {
		if now.Sub(h.lastSeen) > t.ttl {
			delete(t.hosts, k)
		}
	}

	h, ok := t.hosts[key]
	if !ok {
		h = &host{limiter: rate.NewLimiter(t.r, t.b)}
		t.hosts[key] = h
	}
	h.lastSeen = now
	return h.limiter
}

// Wait blocks until a request to target may leave or ctx ends.
func (t *Throttle) Wait(ctx context.Context, target string) error {
	key := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		key = u.Host
	}
	return t.limiter(key).Wait(ctx)
}

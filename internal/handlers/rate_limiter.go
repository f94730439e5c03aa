package handlers

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hanko-field/handling-fee/internal/platform/httpx"
)

const limiterIdleTTL = 5 * time.Minute

// ipRateLimiter keeps one token bucket per client IP. A nil limiter allows everything.
type ipRateLimiter struct {
	limit rate.Limit
	burst int
	clock func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(perSecond float64, burst int, clock func() time.Time) *ipRateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(math.Ceil(perSecond))
	}
	if clock == nil {
		clock = time.Now
	}
	return &ipRateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clock:   clock,
		clients: make(map[string]*clientLimiter),
	}
}

// Reserve consumes a token for key and returns how long the caller must wait when none is left.
func (l *ipRateLimiter) Reserve(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	client, ok := l.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = client
	}
	client.lastSeen = now
	l.sweepLocked(now)
	l.mu.Unlock()

	res := client.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *ipRateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < limiterIdleTTL {
		return
	}
	l.lastSweep = now
	for key, client := range l.clients {
		if now.Sub(client.lastSeen) > limiterIdleTTL {
			delete(l.clients, key)
		}
	}
}

// Middleware answers 429 with Retry-After once the client's bucket is empty.
func (l *ipRateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, wait := l.Reserve(clientIP(r))
		if !allowed {
			seconds := int(math.Ceil(wait.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

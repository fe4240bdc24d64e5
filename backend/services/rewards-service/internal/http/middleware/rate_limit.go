package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"evrewards/backend/services/rewards-service/internal/address"
)

const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles mutating requests per verified signer. It must run after
// AuthMiddleware.
type RateLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	signers   map[address.Address]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows rps requests per second with the given burst per signer.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		signers: make(map[address.Address]*limiterEntry),
		now:     time.Now,
	}
}

// Middleware rejects requests over the signer's budget with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signer, ok := SignerFromContext(r.Context())
		if ok && !l.allow(signer) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(signer address.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdle {
		l.sweep(now)
	}

	entry, ok := l.signers[signer]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.signers[signer] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops signers idle for longer than limiterIdle. It runs at most once per
// limiterIdle.
func (l *RateLimiter) sweep(now time.Time) {
	for key, entry := range l.signers {
		if now.Sub(entry.lastSeen) > limiterIdle {
			delete(l.signers, key)
		}
	}
	l.lastSweep = now
}

package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ClientLimiter throttles requests per client IP. Each client gets its
// own token bucket, created on first sight and kept for the lifetime
// of the server.
type ClientLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	requestsPerSecond float64
	burst             int
}

// NewClientLimiter creates a per-client rate limiter allowing
// requestsPerSecond sustained with the given burst.
func NewClientLimiter(requestsPerSecond float64, burst int) *ClientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ClientLimiter{
		limiters:          make(map[string]*rate.Limiter),
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
	}
}

// Allow reports whether the client may proceed.
func (cl *ClientLimiter) Allow(clientID string) bool {
	return cl.limiterFor(clientID).Allow()
}

func (cl *ClientLimiter) limiterFor(clientID string) *rate.Limiter {
	cl.mu.RLock()
	limiter, exists := cl.limiters[clientID]
	cl.mu.RUnlock()

	if exists {
		return limiter
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := cl.limiters[clientID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(cl.requestsPerSecond), cl.burst)
	cl.limiters[clientID] = limiter
	return limiter
}

// Middleware enforces the limit, rejecting over-limit requests with
// 429. A nil receiver disables limiting and passes requests through.
func (cl *ClientLimiter) Middleware(next http.Handler) http.Handler {
	if cl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cl.Allow(clientIP(r)) {
			Error(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address set by the RealIP middleware,
// dropping the port when one is present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

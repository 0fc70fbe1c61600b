package validation

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

// RateLimiter implements a token bucket rate limiter per client
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	clients     map[string]*clientLimiter
	mu          deadlock.RWMutex
	cleanupTick *time.Ticker
	done        chan struct{}

	// Now is the clock used for refills; tests replace it
	Now func() time.Time
}

// clientLimiter tracks rate limiting state for a single client
type clientLimiter struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
	mu         deadlock.Mutex
}

// NewRateLimiter creates a new rate limiter with specified limits
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		clients:     make(map[string]*clientLimiter),
		done:        make(chan struct{}),
		Now:         time.Now,
	}

	// Inactive clients are dropped after a few windows
	rl.cleanupTick = time.NewTicker(max(window, time.Minute))
	go rl.cleanup()

	return rl
}

// Allow checks if a request should be allowed for the given client ID
func (rl *RateLimiter) Allow(clientID string) bool {
	now := rl.Now()

	rl.mu.RLock()
	limiter, exists := rl.clients[clientID]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		if limiter, exists = rl.clients[clientID]; !exists {
			limiter = &clientLimiter{tokens: rl.maxRequests, lastRefill: now}
			rl.clients[clientID] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter.consume(now, rl.maxRequests, rl.window)
}

// consume attempts to consume a token from the client's bucket
func (cl *clientLimiter) consume(now time.Time, maxTokens int, window time.Duration) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.lastSeen = now

	elapsed := now.Sub(cl.lastRefill)
	if elapsed > 0 && cl.tokens < maxTokens {
		tokensToAdd := int(float64(maxTokens) * float64(elapsed) / float64(window))
		if tokensToAdd > 0 {
			cl.tokens = min(maxTokens, cl.tokens+tokensToAdd)
			cl.lastRefill = now
		}
	}

	if cl.tokens > 0 {
		cl.tokens--
		return true
	}
	return false
}

// Forget drops the bucket of one client
func (rl *RateLimiter) Forget(clientID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, clientID)
}

// Len reports how many clients are tracked
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clients)
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.removeInactiveClients(rl.Now().Add(-2 * max(rl.window, time.Minute)))
		case <-rl.done:
			return
		}
	}
}

// removeInactiveClients removes clients not seen since cutoff
func (rl *RateLimiter) removeInactiveClients(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for clientID, limiter := range rl.clients {
		limiter.mu.Lock()
		stale := limiter.lastSeen.Before(cutoff)
		limiter.mu.Unlock()
		if stale {
			delete(rl.clients, clientID)
		}
	}
}

// Close stops the rate limiter and cleans up resources
func (rl *RateLimiter) Close() {
	close(rl.done)
	rl.cleanupTick.Stop()
}

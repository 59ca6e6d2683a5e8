// Package ratelimit throttles upstream publishes per outbound topic.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter lets one message per topic through every cooldown. It is a
// single-slot bucket refilled cooldown after the last allowed message.
//
// Allow records on success, so callers must only ask when they intend
// to forward. Entries are never evicted; outbound topic cardinality is
// small and fixed in this deployment.
type Limiter struct {
	cooldown    time.Duration
	lastForward map[string]time.Time
	mu          sync.Mutex
}

func NewLimiter(cooldown time.Duration) *Limiter {
	return &Limiter{
		cooldown:    cooldown,
		lastForward: make(map[string]time.Time),
	}
}

// Allow reports whether topic may be forwarded at now and, if so,
// records now as its last forward time. The check and the record happen
// under one lock so concurrent callers cannot both pass.
func (l *Limiter) Allow(topic string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastForward[topic]; ok && now.Sub(last) < l.cooldown {
		return false
	}

	l.lastForward[topic] = now
	return true
}

// Cooldown returns the configured window.
func (l *Limiter) Cooldown() time.Duration {
	return l.cooldown
}

// Len returns the number of topics with a recorded forward.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastForward)
}

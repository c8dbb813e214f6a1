package alerts

import (
	"sync"
	"time"
)

// Cooldown rate-limits noisy side effects. One instance is shared by every
// pipeline in the process.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	fired  bool
}

// NewCooldown returns a cooldown with the given window.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window}
}

// Allow reports whether the side effect may fire at now, and if so starts a
// new window.
func (c *Cooldown) Allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired && now.Sub(c.last) < c.window {
		return false
	}
	c.fired = true
	c.last = now
	return true
}

// Remaining returns how long until the next side effect is allowed.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fired {
		return 0
	}
	if d := c.window - now.Sub(c.last); d > 0 {
		return d
	}
	return 0
}

package access

import (
	"sync"
	"time"
)

const countdownStepMS = 1000

// Countdown ticks a remaining-time value down on a steady local
// interval, independent of network activity, clamped at zero. The
// expiry callback fires exactly once per crossing from >0 to 0; a
// Reset re-arms it. Two instances exist in practice: one for the
// session countdown, one for the spectator feed.
type Countdown struct {
	onExpire func()

	mu          sync.Mutex
	remainingMS int64
	fired       bool
	stopCh      chan struct{}
	running     bool
}

func NewCountdown(onExpire func()) *Countdown {
	return &Countdown{
		onExpire: onExpire,
		fired:    true, // nothing to expire until the first Reset
	}
}

// Start begins ticking. Safe to call once per instance.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(countdownStepMS * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				c.tick()
			}
		}
	}()
}

func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
}

// Reset installs a fresh authoritative remaining time and re-arms the
// expiry crossing. A non-positive value clamps to zero without firing.
func (c *Countdown) Reset(remainingMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remainingMS < 0 {
		remainingMS = 0
	}
	c.remainingMS = remainingMS
	c.fired = remainingMS == 0
}

func (c *Countdown) Remaining() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingMS
}

func (c *Countdown) tick() {
	c.mu.Lock()
	prev := c.remainingMS
	if c.remainingMS > 0 {
		c.remainingMS -= countdownStepMS
		if c.remainingMS < 0 {
			c.remainingMS = 0
		}
	}
	fire := prev > 0 && c.remainingMS == 0 && !c.fired
	if fire {
		c.fired = true
	}
	c.mu.Unlock()

	if fire && c.onExpire != nil {
		c.onExpire()
	}
}

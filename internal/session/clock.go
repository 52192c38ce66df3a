package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/codev612/hearnow/internal/transcript"
)

// Clock tracks elapsed recording time across pause and resume. Stopping keeps
// the start instant; only Reset clears it.
type Clock struct {
	interval time.Duration
	onTick   func(elapsed time.Duration)
	now      func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	ticking   bool
	stop      chan struct{}
}

// NewClock creates a stopped clock. While running, onTick is called every
// interval; onTick may be nil.
func NewClock(interval time.Duration, onTick func(elapsed time.Duration)) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	return &Clock{interval: interval, onTick: onTick, now: time.Now}
}

// Start begins ticking. If the clock has no start instant yet, it is seeded
// from the first bubble, then createdAt, then the current time.
func (c *Clock) Start(bubbles []transcript.Bubble, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticking {
		return
	}
	if c.startedAt.IsZero() {
		c.startedAt = c.seed(bubbles, createdAt)
	}
	c.ticking = true
	c.stop = make(chan struct{})
	go c.run(c.stop)
}

// Stop halts the ticker but keeps the start instant.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Restore sets the start instant from session history without ticking.
// Used when a saved session is loaded.
func (c *Clock) Restore(bubbles []transcript.Bubble, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedAt = c.seed(bubbles, createdAt)
}

// Reset clears the start instant. A running clock restarts from now.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticking {
		c.startedAt = c.now()
		return
	}
	c.startedAt = time.Time{}
}

// Running reports whether the clock is ticking.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticking
}

// StartedAt returns the start instant, if one is set.
func (c *Clock) StartedAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt, !c.startedAt.IsZero()
}

// Elapsed returns now minus the start instant, or zero when unset.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

// Display formats Elapsed for the status line.
func (c *Clock) Display() string {
	return FormatElapsed(c.Elapsed())
}

func (c *Clock) elapsedLocked() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	d := c.now().Sub(c.startedAt)
	if d < 0 {
		return 0
	}
	return d
}

func (c *Clock) seed(bubbles []transcript.Bubble, createdAt time.Time) time.Time {
	if len(bubbles) > 0 && !bubbles[0].Timestamp.IsZero() {
		return bubbles[0].Timestamp
	}
	if !createdAt.IsZero() {
		return createdAt
	}
	return c.now()
}

func (c *Clock) stopLocked() {
	if !c.ticking {
		return
	}
	close(c.stop)
	c.stop = nil
	c.ticking = false
}

func (c *Clock) run(stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.onTick != nil {
				c.onTick(c.Elapsed())
			}
		}
	}
}

// FormatElapsed renders d as HH:MM:SS from one hour on, MM:SS below.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

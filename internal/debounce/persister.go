// Package debounce schedules saves of free-text fields after a quiet period.
package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is the quiet period used by template editors.
const DefaultWindow = 800 * time.Millisecond

// FlushFunc persists value. A nil error confirms the value as flushed.
type FlushFunc func(value string) error

// Persister owns a single save timer for one editor field. A new edit always
// replaces the pending timer. Dispose cancels the timer and flushes whatever
// has not been confirmed yet.
type Persister struct {
	window time.Duration
	flush  FlushFunc

	flushMu sync.Mutex // serializes flush calls

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	value     string
	confirmed string
	disposed  bool
}

// New creates a Persister whose field currently holds initial, which counts
// as already flushed.
func New(window time.Duration, initial string, flush FlushFunc) *Persister {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Persister{window: window, flush: flush, value: initial, confirmed: initial}
}

// Edit records the latest field value and restarts the quiet window.
func (p *Persister) Edit(value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.value = value
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
	}
	gen := p.gen
	p.timer = time.AfterFunc(p.window, func() { p.fire(gen) })
}

// Pending reports whether a save is scheduled.
func (p *Persister) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Dispose cancels the pending timer and, if the value changed since the last
// confirmed flush, flushes it synchronously. Later calls are no-ops.
func (p *Persister) Dispose() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	value := p.value
	dirty := value != p.confirmed
	p.mu.Unlock()

	if !dirty {
		return nil
	}
	return p.run(value)
}

// fire runs when the quiet window elapses. A stale generation means a newer
// edit or Dispose superseded this timer.
func (p *Persister) fire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.disposed {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	value := p.value
	dirty := value != p.confirmed
	p.mu.Unlock()

	if dirty {
		_ = p.run(value)
	}
}

func (p *Persister) run(value string) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	done := value == p.confirmed
	p.mu.Unlock()
	if done {
		return nil
	}

	if err := p.flush(value); err != nil {
		return err
	}
	p.mu.Lock()
	p.confirmed = value
	p.mu.Unlock()
	return nil
}

package session

import "sync/atomic"

// Guard is the latch shared by the stream→session and session→stream
// propagation routines. One Guard exists per synchronizer.
type Guard struct {
	busy atomic.Bool
}

// Run executes fn while holding the latch and reports whether it ran. If the
// latch is already held, fn is skipped. The latch is released even if fn
// panics.
func (g *Guard) Run(fn func()) bool {
	if !g.busy.CompareAndSwap(false, true) {
		return false
	}
	defer g.busy.Store(false)
	fn()
	return true
}

// Busy reports whether a propagation is in progress.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}

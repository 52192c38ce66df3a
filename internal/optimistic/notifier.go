package optimistic

import "sync"

// Notifier is a small publish/subscribe hub owned by whoever owns the
// collection. Views that depend on the collection subscribe and drop their
// subscription when they go away.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// NewNotifier creates a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func())}
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func()) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Publish calls every subscriber. Subscribers run outside the lock so they
// may read the collection.
func (n *Notifier) Publish() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

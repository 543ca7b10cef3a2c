package subscription

import "sync/atomic"

// Registry is an append-only, insertion-ordered collection of accepted
// subscriptions. Writers never block readers: each Add publishes a new
// slice with a compare-and-swap, and List returns the published snapshot.
type Registry struct {
	subs atomic.Pointer[[]Subscription]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := make([]Subscription, 0)
	r.subs.Store(&empty)
	return r
}

// Add appends a subscription. Duplicates are kept.
func (r *Registry) Add(sub Subscription) {
	for {
		old := r.subs.Load()
		next := make([]Subscription, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, sub)
		if r.subs.CompareAndSwap(old, &next) {
			return
		}
	}
}

// List returns the subscriptions in insertion order. The returned slice is
// a copy and safe to modify.
func (r *Registry) List() []Subscription {
	cur := *r.subs.Load()
	out := make([]Subscription, len(cur))
	copy(out, cur)
	return out
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	return len(*r.subs.Load())
}

package dispatch

import (
	"context"
	"sync"
)

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns the task handle of every live movement loop, keyed by order
// id, so assignments can be cancelled and joined deterministically instead
// of living as untracked background timers.
type Registry struct {
	mu      sync.Mutex
	parent  context.Context
	stop    context.CancelFunc
	handles map[string]*handle
}

func NewRegistry() *Registry {
	parent, stop := context.WithCancel(context.Background())
	return &Registry{
		parent:  parent,
		stop:    stop,
		handles: make(map[string]*handle),
	}
}

// Start launches run on its own goroutine under a cancellable context.
// Returns false if a loop for this order is already live.
func (r *Registry) Start(orderID string, run func(ctx context.Context)) bool {
	r.mu.Lock()
	if _, exists := r.handles[orderID]; exists {
		r.mu.Unlock()
		return false
	}

	ctx, cancel := context.WithCancel(r.parent)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	r.handles[orderID] = h
	r.mu.Unlock()

	go func() {
		defer func() {
			close(h.done)
			r.remove(orderID, h)
		}()
		run(ctx)
	}()
	return true
}

// Cancel stops the loop for orderID and waits for it to finish. Returns
// false if no loop was live.
func (r *Registry) Cancel(orderID string) bool {
	r.mu.Lock()
	h, ok := r.handles[orderID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	h.cancel()
	<-h.done
	return true
}

// Active returns the order ids with a live loop.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cancels every live loop and waits for all of them.
func (r *Registry) Shutdown() {
	r.stop()

	r.mu.Lock()
	waiting := make([]*handle, 0, len(r.handles))
	for _, h := range r.handles {
		waiting = append(waiting, h)
	}
	r.mu.Unlock()

	for _, h := range waiting {
		<-h.done
	}
}

func (r *Registry) remove(orderID string, h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.handles[orderID]; ok && cur == h {
		delete(r.handles, orderID)
	}
}

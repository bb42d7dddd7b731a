package orderstore

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed   breakerState = iota // normal operation
	stateOpen                         // rejecting calls
	stateHalfOpen                     // allowing one probe call
)

// breaker guards outbound calls to a collaborator so a stalled store fails
// fast instead of wedging every simulator tick on a timeout.
type breaker struct {
	mu              sync.Mutex
	state           breakerState
	failures        int
	threshold       int
	cooldown        time.Duration
	lastFailureTime time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		state:     stateClosed,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(b.lastFailureTime) > b.cooldown {
			b.state = stateHalfOpen
			return true
		}
		return false
	case stateHalfOpen:
		return false // only one probe at a time
	}
	return true
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = stateClosed
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = time.Now()
	if b.failures >= b.threshold {
		b.state = stateOpen
	}
}

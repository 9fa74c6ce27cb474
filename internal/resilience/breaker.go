package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrOpen is returned while a breaker rejects calls.
var ErrOpen = eris.New("resilience: endpoint temporarily disabled after repeated failures")

// BreakerState is the state of a Breaker.
type BreakerState int

// Breaker states.
const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker opens after Threshold consecutive counted failures and rejects
// calls for Cooldown; then one trial call decides whether it closes again.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	counts    func(error) bool
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
}

// NewBreaker creates a breaker. counts selects the errors that count as
// failures (IsTransient when nil); other errors leave the state unchanged.
func NewBreaker(threshold int, cooldown time.Duration, counts func(error) bool) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	if counts == nil {
		counts = IsTransient
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, counts: counts, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = HalfOpen
		b.trial = true
		return nil
	case HalfOpen:
		if b.trial {
			return ErrOpen
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) release(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	failed := err != nil && b.counts(err)
	if b.state == HalfOpen {
		b.trial = false
		if failed {
			b.state = Open
			b.openedAt = b.now()
			return
		}
		b.state = Closed
		b.failures = 0
		return
	}
	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = Open
		b.openedAt = b.now()
	}
}

// Guard runs fn unless the breaker is open and records its outcome.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	if err := b.acquire(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	b.release(err)
	return v, err
}

package dispatch

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = 0 // normal operation, calls pass through
	BreakerOpen     BreakerState = 1 // tripped, calls rejected immediately
	BreakerHalfOpen BreakerState = 2 // cooling down, one probe allowed through
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call without
// invoking it. It signals deliberate load-shedding, not a delivery failure.
var ErrCircuitOpen = errors.New("dispatch: circuit open")

// Breaker guards one delivery channel. After threshold consecutive failures
// it opens and rejects all calls for the configured timeout. Once the
// timeout elapses it admits exactly one probe: success closes the breaker,
// failure reopens it. Safe for concurrent use by the worker pool.
type Breaker struct {
	mu       sync.Mutex
	state    BreakerState
	gen      uint64 // bumped on every transition; stale in-flight results are discarded
	failures int
	openedAt time.Time
	probing  bool

	threshold int
	timeout   time.Duration

	// OnStateChange, when set, is called under the breaker lock on every
	// transition. Keep it cheap.
	OnStateChange func(from, to BreakerState)
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Breaker{
		state:     BreakerClosed,
		threshold: threshold,
		timeout:   timeout,
	}
}

// Call runs fn through the breaker. When the breaker is open and the
// timeout has not elapsed, fn is never invoked and ErrCircuitOpen is
// returned immediately so a degraded channel cannot pin a worker.
func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	isProbe := false
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.timeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		isProbe = true
	case BreakerHalfOpen:
		if b.probing {
			// A probe is already in flight; only one is permitted.
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
		isProbe = true
	}
	gen := b.gen
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if isProbe {
		// Only the probe settles the half-open state.
		b.probing = false
		if err != nil {
			b.open()
			return err
		}
		b.transition(BreakerClosed)
		return nil
	}

	if b.gen != gen {
		// The breaker transitioned while this call was in flight. Its
		// result belongs to the era it was admitted under and must not
		// touch the current state: a stale success would close a breaker
		// whose probe is still out, a stale failure would double-count.
		return err
	}

	if err != nil {
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
		return err
	}
	b.failures = 0
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// open moves to Open and stamps the cooldown start. Caller holds the lock.
func (b *Breaker) open() {
	b.openedAt = time.Now()
	b.transition(BreakerOpen)
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.gen++
	if to == BreakerClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}

package reconciler

import (
	"math/rand"
	"sync"
	"time"
)

// backoff produces capped exponential delays with equal jitter: half the
// exponential window is guaranteed, the other half randomized so that a
// fleet of agents regaining connectivity does not stampede the server.
type backoff struct {
	base time.Duration
	cap  time.Duration

	mu      sync.Mutex
	attempt int
}

func newBackoff(base, cap time.Duration) *backoff {
	return &backoff{base: base, cap: cap}
}

func (b *backoff) window(attempt int) time.Duration {
	d := b.base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.cap {
			return b.cap
		}
	}
	return d
}

// Next returns the delay before the next attempt and advances the
// counter.
func (b *backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	window := b.window(b.attempt)
	b.attempt++

	half := window / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// Peek returns the current delay without advancing.
func (b *backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	window := b.window(b.attempt)
	half := window / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// Reset clears the counter after a successful round.
func (b *backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}

package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_WindowDoublesUpToCap(t *testing.T) {
	b := newBackoff(time.Second, 10*time.Second)

	assert.Equal(t, time.Second, b.window(0))
	assert.Equal(t, 2*time.Second, b.window(1))
	assert.Equal(t, 4*time.Second, b.window(2))
	assert.Equal(t, 8*time.Second, b.window(3))
	assert.Equal(t, 10*time.Second, b.window(4))
	assert.Equal(t, 10*time.Second, b.window(20))
}

func TestBackoff_NextStaysWithinJitterBounds(t *testing.T) {
	b := newBackoff(time.Second, time.Minute)

	for i := 0; i < 50; i++ {
		window := b.window(i % 7)
		b.attempt = i % 7
		d := b.Next()
		assert.GreaterOrEqual(t, d, window/2, "at least half the window is guaranteed")
		assert.LessOrEqual(t, d, window)
	}
}

func TestBackoff_PeekDoesNotAdvance(t *testing.T) {
	b := newBackoff(time.Second, time.Minute)

	b.Peek()
	b.Peek()
	assert.Equal(t, 0, b.attempt)

	b.Next()
	assert.Equal(t, 1, b.attempt)

	b.Reset()
	assert.Equal(t, 0, b.attempt)
}

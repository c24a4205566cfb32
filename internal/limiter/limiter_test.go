package limiter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOneJobPerChannel(t *testing.T) {
	l := NewChannelLimiter(0)

	assert.True(t, l.TryAcquire("a"))
	assert.False(t, l.TryAcquire("a"))
	assert.True(t, l.IsActive("a"))
	assert.True(t, l.TryAcquire("b"))
	assert.Equal(t, 2, l.ActiveCount())

	l.Release("a")
	assert.False(t, l.IsActive("a"))
	assert.True(t, l.TryAcquire("a"))
}

func TestGlobalCap(t *testing.T) {
	l := NewChannelLimiter(2)

	assert.True(t, l.TryAcquire("a"))
	assert.True(t, l.TryAcquire("b"))
	assert.False(t, l.TryAcquire("c"))
	assert.False(t, l.IsActive("c"))

	l.Release("b")
	assert.True(t, l.TryAcquire("c"))
}

func TestReleaseUnknownChannel(t *testing.T) {
	l := NewChannelLimiter(1)
	l.Release("nobody")
	assert.Equal(t, 0, l.ActiveCount())
	assert.True(t, l.TryAcquire("a"))
}

func TestConcurrentAcquire(t *testing.T) {
	l := NewChannelLimiter(5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if l.TryAcquire(fmt.Sprintf("channel-%d", i)) {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, acquired)
	assert.Equal(t, 5, l.ActiveCount())
}

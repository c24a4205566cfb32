package limiter

import (
	"sync"
)

// ChannelLimiter limits concurrent jobs per client channel
type ChannelLimiter struct {
	mu          sync.Mutex
	active      map[string]struct{}
	maxGlobal   int
	globalCount int
}

// NewChannelLimiter creates a new channel limiter
// maxGlobalConcurrent of 0 means unlimited global concurrent jobs
func NewChannelLimiter(maxGlobalConcurrent int) *ChannelLimiter {
	return &ChannelLimiter{
		active:    make(map[string]struct{}),
		maxGlobal: maxGlobalConcurrent,
	}
}

// TryAcquire attempts to acquire a slot for a channel
// Returns false if the channel already has an active job or global limit reached
func (l *ChannelLimiter) TryAcquire(channelID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.active[channelID]; exists {
		return false
	}

	// Check global limit (0 means unlimited)
	if l.maxGlobal > 0 && l.globalCount >= l.maxGlobal {
		return false
	}

	l.active[channelID] = struct{}{}
	l.globalCount++
	return true
}

// Release releases a channel's slot
func (l *ChannelLimiter) Release(channelID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.active[channelID]; exists {
		delete(l.active, channelID)
		l.globalCount--
	}
}

// ActiveCount returns the number of running jobs
func (l *ChannelLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.globalCount
}

// IsActive checks if a channel has a running job
func (l *ChannelLimiter) IsActive(channelID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.active[channelID]
	return exists
}

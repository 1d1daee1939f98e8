package websocket

import (
	"sync"
	"time"
)

// typingTracker debounces typing signals. Each (conversation, user) pair
// owns one timer; activity resets it, expiry fires the supplied callback.
// The signal is best-effort with no delivery guarantee.
type typingTracker struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	ttl    time.Duration
}

func newTypingTracker(ttl time.Duration) *typingTracker {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &typingTracker{
		timers: make(map[string]*time.Timer),
		ttl:    ttl,
	}
}

// touch marks the pair active and returns true when this call started a
// new typing burst (no live timer existed).
func (t *typingTracker) touch(conversationID, userID string, expire func()) bool {
	key := conversationID + ":" + userID

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.ttl)
		return false
	}

	t.timers[key] = time.AfterFunc(t.ttl, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		expire()
	})
	return true
}

package realtime

import (
	"context"
	"sync"

	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

// Subscriber opens a change feed for one conversation's messages. The feed
// carries no payload: onChange fires whenever the message set changed and
// the consumer re-queries. The returned function tears the feed down; it
// must be safe to call exactly once.
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string, onChange func()) (func(), error)
}

// Manager tracks live subscriptions, one per conversation id at most.
// Opening a second feed for an id already live is a programming error the
// bookkeeping rejects; teardown is synchronous so every exit path can
// release its handle deterministically.
type Manager struct {
	subscriber Subscriber

	mu     sync.Mutex
	active map[string]func()
}

func NewManager(subscriber Subscriber) *Manager {
	return &Manager{
		subscriber: subscriber,
		active:     make(map[string]func()),
	}
}

func (m *Manager) Subscribe(ctx context.Context, conversationID string, onChange func()) error {
	m.mu.Lock()
	if _, exists := m.active[conversationID]; exists {
		m.mu.Unlock()
		return errors.Conflict("Conversation already has a live subscription")
	}
	// Reserve the slot before the feed opens so a concurrent Subscribe for
	// the same id fails fast instead of opening a second feed.
	m.active[conversationID] = func() {}
	m.mu.Unlock()

	cancel, err := m.subscriber.Subscribe(ctx, conversationID, onChange)
	if err != nil {
		m.mu.Lock()
		delete(m.active, conversationID)
		m.mu.Unlock()
		return errors.Repository("Failed to open subscription", err)
	}

	m.mu.Lock()
	m.active[conversationID] = cancel
	m.mu.Unlock()

	logger.Debug("realtime: subscribed to conversation %s", conversationID)
	return nil
}

// Unsubscribe tears down the feed for the conversation, synchronously. A
// second call for the same id is a no-op.
func (m *Manager) Unsubscribe(conversationID string) {
	m.mu.Lock()
	cancel, exists := m.active[conversationID]
	delete(m.active, conversationID)
	m.mu.Unlock()

	if exists {
		cancel()
		logger.Debug("realtime: unsubscribed from conversation %s", conversationID)
	}
}

func (m *Manager) IsSubscribed(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.active[conversationID]
	return exists
}

// UnsubscribeAll releases every live feed; used on service dispose.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	cancels := make([]func(), 0, len(m.active))
	for id, cancel := range m.active {
		cancels = append(cancels, cancel)
		delete(m.active, id)
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

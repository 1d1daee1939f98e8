package usecase

import (
	"context"
	"sync"

	"tradepost/internal/domain/repository"
)

// UnreadCounter keeps per-user, per-conversation unread tallies. Counts
// are always recomputed from the message store rather than incremented
// locally, so a missed or duplicated change signal can never skew them.
type UnreadCounter struct {
	messages repository.MessageRepository

	mu     sync.RWMutex
	counts map[string]map[string]int // userID -> conversationID -> count
}

func NewUnreadCounter(messages repository.MessageRepository) *UnreadCounter {
	return &UnreadCounter{
		messages: messages,
		counts:   make(map[string]map[string]int),
	}
}

// Recompute queries the store for userID's unread count in the
// conversation and records it. On query failure the previous tally is
// kept and the error returned.
func (u *UnreadCounter) Recompute(ctx context.Context, userID, conversationID string) (int, error) {
	count, err := u.messages.CountUnread(ctx, conversationID, userID)
	if err != nil {
		return u.Count(userID, conversationID), err
	}

	u.mu.Lock()
	perConv, ok := u.counts[userID]
	if !ok {
		perConv = make(map[string]int)
		u.counts[userID] = perConv
	}
	perConv[conversationID] = count
	u.mu.Unlock()

	return count, nil
}

// OnMarkRead zeroes the tally immediately; the next recompute confirms it
// against the store.
func (u *UnreadCounter) OnMarkRead(userID, conversationID string) {
	u.mu.Lock()
	if perConv, ok := u.counts[userID]; ok {
		delete(perConv, conversationID)
	}
	u.mu.Unlock()
}

func (u *UnreadCounter) Count(userID, conversationID string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counts[userID][conversationID]
}

// Total sums the user's unread tallies across all known conversations.
func (u *UnreadCounter) Total(userID string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	total := 0
	for _, count := range u.counts[userID] {
		total += count
	}
	return total
}

// Snapshot returns a copy of the user's per-conversation tallies.
func (u *UnreadCounter) Snapshot(userID string) map[string]int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	snapshot := make(map[string]int, len(u.counts[userID]))
	for conversationID, count := range u.counts[userID] {
		snapshot[conversationID] = count
	}
	return snapshot
}

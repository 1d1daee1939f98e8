package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/domain/entity"
	"tradepost/pkg/errors"
)

func seedUnread(t *testing.T, repo *memoryMessageRepo, conversationID, senderID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := repo.Append(context.Background(), &entity.Message{
			ID:             conversationID + "-m" + string(rune('a'+i)),
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        "hello",
			Type:           entity.MessageText,
		})
		require.NoError(t, err)
	}
}

func TestUnreadCounterRecompute(t *testing.T) {
	repo := newMemoryMessageRepo()
	counter := NewUnreadCounter(repo)
	seedUnread(t, repo, "c1", "seller", 3)

	count, err := counter.Recompute(context.Background(), "buyer", "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, counter.Count("buyer", "c1"))

	// The sender's own messages never count against them.
	count, err = counter.Recompute(context.Background(), "seller", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUnreadCounterTotalAcrossConversations(t *testing.T) {
	repo := newMemoryMessageRepo()
	counter := NewUnreadCounter(repo)
	seedUnread(t, repo, "c1", "seller", 2)
	seedUnread(t, repo, "c2", "other", 3)

	_, err := counter.Recompute(context.Background(), "buyer", "c1")
	require.NoError(t, err)
	_, err = counter.Recompute(context.Background(), "buyer", "c2")
	require.NoError(t, err)

	assert.Equal(t, 5, counter.Total("buyer"))
	assert.Equal(t, map[string]int{"c1": 2, "c2": 3}, counter.Snapshot("buyer"))
}

func TestUnreadCounterMarkReadZeroes(t *testing.T) {
	repo := newMemoryMessageRepo()
	counter := NewUnreadCounter(repo)
	seedUnread(t, repo, "c1", "seller", 2)

	_, err := counter.Recompute(context.Background(), "buyer", "c1")
	require.NoError(t, err)

	counter.OnMarkRead("buyer", "c1")
	assert.Equal(t, 0, counter.Count("buyer", "c1"))
	assert.Equal(t, 0, counter.Total("buyer"))
}

func TestUnreadCounterKeepsTallyOnQueryFailure(t *testing.T) {
	repo := newMemoryMessageRepo()
	broken := NewUnreadCounter(failingCountRepo{repo})
	broken.mu.Lock()
	broken.counts["buyer"] = map[string]int{"c1": 2}
	broken.mu.Unlock()

	count, err := broken.Recompute(context.Background(), "buyer", "c1")
	assert.Error(t, err)
	assert.Equal(t, 2, count, "failed recompute keeps the previous tally")
}

type failingCountRepo struct {
	*memoryMessageRepo
}

func (failingCountRepo) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	return 0, errors.Internal("store down", nil)
}

func TestUnreadCounterSystemMessagesExcluded(t *testing.T) {
	repo := newMemoryMessageRepo()
	counter := NewUnreadCounter(repo)

	err := repo.Append(context.Background(), &entity.Message{
		ID: "m1", ConversationID: "c1", SenderID: entity.SenderSystem,
		Content: "offer accepted", Type: entity.MessageSystem,
	})
	require.NoError(t, err)

	count, err := counter.Recompute(context.Background(), "buyer", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

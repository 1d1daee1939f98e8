package repository

import (
	"context"

	"tradepost/internal/domain/entity"
)

type ConversationRepository interface {
	// FindOrCreate returns the active conversation between the pair,
	// creating it when none exists. The product id is not part of the dedup
	// key; on reuse the conversation's product anchor is moved to productID
	// when one is given. The store has no uniqueness constraint, so a
	// concurrent-create race can leave a duplicate; callers get whichever
	// conversation the query surfaces first.
	FindOrCreate(ctx context.Context, buyerID, sellerID, productID string) (*entity.Conversation, error)

	GetByID(ctx context.Context, id string) (*entity.Conversation, error)

	// ListForUser returns the user's active conversations, most recently
	// updated first.
	ListForUser(ctx context.Context, userID string) ([]*entity.Conversation, error)

	TouchLastMessage(ctx context.Context, id string, summary entity.MessageSummary) error

	// SetUnread records the given user's unread count on the conversation.
	SetUnread(ctx context.Context, id, userID string, count int) error

	Archive(ctx context.Context, id string) error
}

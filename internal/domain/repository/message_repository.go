package repository

import (
	"context"

	"tradepost/internal/domain/entity"
)

type MessageRepository interface {
	// Append persists the message. The caller assigns the id so an
	// optimistic local copy and its durable twin stay the same record.
	Append(ctx context.Context, message *entity.Message) error

	GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error)

	// List returns up to limit of the newest messages, sorted ascending by
	// createdAt (id as tiebreak) regardless of store return order. A
	// limit <= 0 means no cap.
	List(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error)

	// MarkRead marks every message not sent by readerID as read.
	// Idempotent.
	MarkRead(ctx context.Context, conversationID, readerID string) error

	Edit(ctx context.Context, conversationID, messageID, newContent string) error

	// Delete soft-deletes: the record stays but is flagged and its content
	// cleared. Deleted messages are immutable afterwards.
	Delete(ctx context.Context, conversationID, messageID string) error

	// CountUnread counts live messages not sent by userID and not yet read.
	CountUnread(ctx context.Context, conversationID, userID string) (int, error)
}

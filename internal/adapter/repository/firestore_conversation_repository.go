package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) conversations() *firestore.CollectionRef {
	return r.client.Collection("conversations")
}

// FindOrCreate reuses the active conversation between the pair regardless
// of product; the product anchor moves to the latest product discussed.
// Firestore enforces no uniqueness here, so two concurrent first-contact
// calls can each create a conversation. We re-query right before the
// insert to shrink the window and otherwise accept the duplicate: later
// lookups return whichever the query surfaces first.
func (r *firestoreConversationRepository) FindOrCreate(ctx context.Context, buyerID, sellerID, productID string) (*entity.Conversation, error) {
	existing, err := r.findActiveBetween(ctx, buyerID, sellerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if productID != "" && existing.ProductID != productID {
			existing.ProductID = productID
			existing.UpdatedAt = time.Now()
			if _, err := r.conversations().Doc(existing.ID).Set(ctx, existing); err != nil {
				logger.Warn("FindOrCreate: failed to move product anchor on conversation %s: %v", existing.ID, err)
			}
		}
		return existing, nil
	}

	now := time.Now()
	conversation := &entity.Conversation{
		ID:            uuid.New().String(),
		BuyerID:       buyerID,
		SellerID:      sellerID,
		Participants:  []string{buyerID, sellerID},
		ProductID:     productID,
		Status:        entity.ConversationActive,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
		UnreadCount:   make(map[string]int),
	}

	if _, err := r.conversations().Doc(conversation.ID).Set(ctx, conversation); err != nil {
		return nil, errors.Repository("Failed to create conversation", err)
	}

	return conversation, nil
}

func (r *firestoreConversationRepository) findActiveBetween(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	query := r.conversations().
		Where("participants", "array-contains", userA).
		Where("status", "==", string(entity.ConversationActive))

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Repository("Failed to query conversations", err)
	}

	for _, doc := range docs {
		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			logger.Warn("findActiveBetween: skipping malformed conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		if conversation.HasParticipant(userB) {
			return &conversation, nil
		}
	}

	return nil, nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Repository("Failed to get conversation", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Repository("Failed to parse conversation data", err)
	}

	return &conversation, nil
}

func (r *firestoreConversationRepository) ListForUser(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	query := r.conversations().
		Where("participants", "array-contains", userID).
		Where("status", "==", string(entity.ConversationActive)).
		OrderBy("updatedAt", firestore.Desc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Repository("Failed to list conversations", err)
	}

	conversations := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			logger.Warn("ListForUser: skipping malformed conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		conversations = append(conversations, &conversation)
	}

	return conversations, nil
}

func (r *firestoreConversationRepository) TouchLastMessage(ctx context.Context, id string, summary entity.MessageSummary) error {
	_, err := r.conversations().Doc(id).Update(ctx, []firestore.Update{
		{Path: "lastMessage", Value: summary},
		{Path: "lastMessageAt", Value: summary.SentAt},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.Repository("Failed to touch last message", err)
	}
	return nil
}

func (r *firestoreConversationRepository) SetUnread(ctx context.Context, id, userID string, count int) error {
	_, err := r.conversations().Doc(id).Update(ctx, []firestore.Update{
		{Path: "unreadCount." + userID, Value: count},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.Repository("Failed to update unread count", err)
	}
	return nil
}

func (r *firestoreConversationRepository) Archive(ctx context.Context, id string) error {
	_, err := r.conversations().Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(entity.ConversationArchived)},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.Repository("Failed to archive conversation", err)
	}
	return nil
}

package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.client.Collection("conversations").Doc(conversationID).Collection("messages")
}

func (r *firestoreMessageRepository) Append(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	message.UpdatedAt = message.CreatedAt

	_, err := r.messages(message.ConversationID).Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Repository("Failed to append message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(conversationID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Repository("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Repository("Failed to parse message data", err)
	}
	return &message, nil
}

// List queries newest-first (so the limit keeps the most recent messages)
// and re-sorts ascending before returning: callers always see
// non-decreasing createdAt, whatever order the store yields.
func (r *firestoreMessageRepository) List(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error) {
	query := r.messages(conversationID).OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Repository("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Warn("List: skipping malformed message %s in conversation %s: %v", doc.Ref.ID, conversationID, err)
			continue
		}
		messages = append(messages, &message)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	return messages, nil
}

// MarkRead flags every message not sent by readerID. Re-running it finds
// nothing left unread and writes nothing, so the operation is idempotent.
func (r *firestoreMessageRepository) MarkRead(ctx context.Context, conversationID, readerID string) error {
	docs, err := r.messages(conversationID).Where("isRead", "==", false).Documents(ctx).GetAll()
	if err != nil {
		return errors.Repository("Failed to query unread messages", err)
	}

	batch := r.client.Batch()
	dirty := false
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Warn("MarkRead: skipping malformed message %s: %v", doc.Ref.ID, err)
			continue
		}
		if message.SenderID == readerID {
			continue
		}
		batch.Update(doc.Ref, []firestore.Update{{Path: "isRead", Value: true}})
		dirty = true
	}

	if !dirty {
		return nil
	}
	if _, err := batch.Commit(ctx); err != nil {
		return errors.Repository("Failed to mark messages read", err)
	}
	return nil
}

func (r *firestoreMessageRepository) Edit(ctx context.Context, conversationID, messageID, newContent string) error {
	docRef := r.messages(conversationID).Doc(messageID)
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Repository("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return errors.Repository("Failed to parse message data", err)
	}
	if message.IsDeleted {
		return errors.Conflict("Deleted messages cannot be edited")
	}

	_, err = docRef.Update(ctx, []firestore.Update{
		{Path: "content", Value: newContent},
		{Path: "isEdited", Value: true},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.Repository("Failed to edit message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) Delete(ctx context.Context, conversationID, messageID string) error {
	_, err := r.messages(conversationID).Doc(messageID).Update(ctx, []firestore.Update{
		{Path: "isDeleted", Value: true},
		{Path: "content", Value: ""},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Repository("Failed to delete message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	docs, err := r.messages(conversationID).Where("isRead", "==", false).Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Repository("Failed to count unread messages", err)
	}

	count := 0
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			continue
		}
		if message.CountsTowardUnread(userID) {
			count++
		}
	}
	return count, nil
}

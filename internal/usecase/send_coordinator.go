package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

// SendState describes a conversation projection's write status.
type SendState string

const (
	// SendClean means the projection matches the durable store.
	SendClean SendState = "clean"
	// SendPending means an optimistic message is visible locally while its
	// durable write is in flight.
	SendPending SendState = "pending_send"
	// SendRolledBack means the last optimistic message was removed because
	// its durable write failed.
	SendRolledBack SendState = "rolled_back"
)

type projection struct {
	messages []*entity.Message
	state    SendState
}

// SendCoordinator owns the in-memory message projections and runs the
// optimistic send protocol: append locally first, persist, and roll the
// local copy back if persistence fails. The provisional message and its
// durable twin share one id, so the change-feed refresh that follows a
// successful write replaces the optimistic entry with itself instead of
// duplicating it.
type SendCoordinator struct {
	messages repository.MessageRepository

	mu          sync.Mutex
	projections map[string]*projection
}

func NewSendCoordinator(messages repository.MessageRepository) *SendCoordinator {
	return &SendCoordinator{
		messages:    messages,
		projections: make(map[string]*projection),
	}
}

// Send appends message to the conversation's projection, persists it, and
// rolls the projection back on failure. Sends are serialized: a second
// Send waits for the first to settle, so the projection never holds two
// in-flight messages at once.
func (s *SendCoordinator) Send(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	now := time.Now()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}
	message.UpdatedAt = message.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.projectionFor(message.ConversationID)
	prior := p.messages
	p.messages = append(append([]*entity.Message(nil), prior...), message)
	p.state = SendPending

	if err := s.messages.Append(ctx, message); err != nil {
		p.messages = prior
		p.state = SendRolledBack
		logger.Warn("send rolled back for conversation %s message %s: %v",
			message.ConversationID, message.ID, err)
		return errors.Reconciliation("Message could not be delivered", err)
	}

	p.state = SendClean
	return nil
}

// Replace swaps the conversation's projection for the authoritative list
// from the store. An in-flight send keeps the lock until it settles, so a
// refresh can never interleave with the optimistic window.
func (s *SendCoordinator) Replace(conversationID string, messages []*entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.projectionFor(conversationID)
	p.messages = append([]*entity.Message(nil), messages...)
	p.state = SendClean
}

// Messages returns a copy of the conversation's current projection.
func (s *SendCoordinator) Messages(conversationID string) []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projections[conversationID]
	if !ok {
		return nil
	}
	return append([]*entity.Message(nil), p.messages...)
}

func (s *SendCoordinator) State(conversationID string) SendState {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projections[conversationID]
	if !ok {
		return SendClean
	}
	return p.state
}

// Drop forgets the conversation's projection; used when the last watcher
// leaves.
func (s *SendCoordinator) Drop(conversationID string) {
	s.mu.Lock()
	delete(s.projections, conversationID)
	s.mu.Unlock()
}

func (s *SendCoordinator) projectionFor(conversationID string) *projection {
	p, ok := s.projections[conversationID]
	if !ok {
		p = &projection{state: SendClean}
		s.projections[conversationID] = p
	}
	return p
}

package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradepost/internal/domain/entity"
	"tradepost/pkg/errors"
)

type memoryConversationRepo struct {
	mu      sync.Mutex
	convs   map[string]*entity.Conversation
	created int
}

func newMemoryConversationRepo() *memoryConversationRepo {
	return &memoryConversationRepo{convs: make(map[string]*entity.Conversation)}
}

func (r *memoryConversationRepo) FindOrCreate(ctx context.Context, buyerID, sellerID, productID string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conv := range r.convs {
		if conv.Status != entity.ConversationActive {
			continue
		}
		if conv.HasParticipant(buyerID) && conv.HasParticipant(sellerID) {
			if productID != "" && conv.ProductID != productID {
				conv.ProductID = productID
				conv.UpdatedAt = time.Now()
			}
			return conv, nil
		}
	}

	now := time.Now()
	conv := &entity.Conversation{
		ID:           uuid.New().String(),
		BuyerID:      buyerID,
		SellerID:     sellerID,
		Participants: []string{buyerID, sellerID},
		ProductID:    productID,
		Status:       entity.ConversationActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		UnreadCount:  map[string]int{buyerID: 0, sellerID: 0},
	}
	r.convs[conv.ID] = conv
	r.created++
	return conv, nil
}

func (r *memoryConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return conv, nil
}

func (r *memoryConversationRepo) ListForUser(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Conversation
	for _, conv := range r.convs {
		if conv.Status == entity.ConversationActive && conv.HasParticipant(userID) {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memoryConversationRepo) TouchLastMessage(ctx context.Context, id string, summary entity.MessageSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	conv.LastMessage = &summary
	conv.LastMessageAt = summary.SentAt
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *memoryConversationRepo) SetUnread(ctx context.Context, id, userID string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	conv.UnreadCount[userID] = count
	return nil
}

func (r *memoryConversationRepo) Archive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	conv.Status = entity.ConversationArchived
	return nil
}

type memoryMessageRepo struct {
	mu        sync.Mutex
	byConv    map[string][]*entity.Message
	appendErr error
	listErr   error
}

func newMemoryMessageRepo() *memoryMessageRepo {
	return &memoryMessageRepo{byConv: make(map[string][]*entity.Message)}
}

func (r *memoryMessageRepo) Append(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	stored := *message
	r.byConv[message.ConversationID] = append(r.byConv[message.ConversationID], &stored)
	return nil
}

func (r *memoryMessageRepo) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.byConv[conversationID] {
		if msg.ID == messageID {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, errors.NotFound("Message", nil)
}

func (r *memoryMessageRepo) List(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}

	msgs := append([]*entity.Message(nil), r.byConv[conversationID]...)
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*entity.Message, 0, len(msgs))
	for _, msg := range msgs {
		copied := *msg
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memoryMessageRepo) MarkRead(ctx context.Context, conversationID, readerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.byConv[conversationID] {
		if msg.SenderID != readerID && !msg.IsRead {
			msg.IsRead = true
		}
	}
	return nil
}

func (r *memoryMessageRepo) Edit(ctx context.Context, conversationID, messageID, newContent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.byConv[conversationID] {
		if msg.ID == messageID {
			if msg.IsDeleted {
				return errors.Conflict("Message has been deleted")
			}
			msg.Content = newContent
			msg.IsEdited = true
			msg.UpdatedAt = time.Now()
			return nil
		}
	}
	return errors.NotFound("Message", nil)
}

func (r *memoryMessageRepo) Delete(ctx context.Context, conversationID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.byConv[conversationID] {
		if msg.ID == messageID {
			msg.IsDeleted = true
			msg.Content = ""
			msg.UpdatedAt = time.Now()
			return nil
		}
	}
	return errors.NotFound("Message", nil)
}

func (r *memoryMessageRepo) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, msg := range r.byConv[conversationID] {
		if msg.CountsTowardUnread(userID) {
			count++
		}
	}
	return count, nil
}

type memoryProfileRepo struct {
	mu        sync.Mutex
	profiles  map[string]*entity.Participant
	lookupErr error
	lookups   int
}

func newMemoryProfileRepo() *memoryProfileRepo {
	return &memoryProfileRepo{profiles: make(map[string]*entity.Participant)}
}

func (r *memoryProfileRepo) Lookup(ctx context.Context, userID string) (*entity.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	profile, ok := r.profiles[userID]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	copied := *profile
	return &copied, nil
}

func (r *memoryProfileRepo) lookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

// fakeFeed is an in-process Subscriber; tests trigger change signals by
// calling fire.
type fakeFeed struct {
	mu        sync.Mutex
	onChange  map[string]func()
	canceled  map[string]bool
	failNext  bool
	subscribe int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		onChange: make(map[string]func()),
		canceled: make(map[string]bool),
	}
}

func (f *fakeFeed) Subscribe(ctx context.Context, conversationID string, onChange func()) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribe++
	if f.failNext {
		f.failNext = false
		return nil, errors.Internal("feed unavailable", nil)
	}
	f.onChange[conversationID] = onChange
	delete(f.canceled, conversationID)
	return func() {
		f.mu.Lock()
		delete(f.onChange, conversationID)
		f.canceled[conversationID] = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeFeed) fire(conversationID string) {
	f.mu.Lock()
	onChange := f.onChange[conversationID]
	f.mu.Unlock()
	if onChange != nil {
		onChange()
	}
}

func (f *fakeFeed) isLive(conversationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.onChange[conversationID]
	return ok
}

func (f *fakeFeed) wasCanceled(conversationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled[conversationID]
}

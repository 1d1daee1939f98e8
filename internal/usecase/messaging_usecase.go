package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/internal/domain/service"
	"tradepost/internal/infrastructure/ratelimit"
	"tradepost/internal/infrastructure/realtime"
	ws "tradepost/internal/infrastructure/websocket"
	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

// defaultMessageLimit caps how many messages an activation loads. Older
// history stays queryable but is not part of the live projection.
const defaultMessageLimit = 100

const refreshTimeout = 10 * time.Second

// ConversationView is a conversation enriched with the counterpart's
// display identity for the requesting user.
type ConversationView struct {
	*entity.Conversation
	Counterpart *entity.Participant `json:"counterpart,omitempty"`
}

// MessageView is a message enriched with its sender's display identity.
type MessageView struct {
	*entity.Message
	Sender *entity.Participant `json:"sender,omitempty"`
}

type StartConversationInput struct {
	SellerID       string `json:"seller_id" validate:"required"`
	ProductID      string `json:"product_id"`
	InitialMessage string `json:"initial_message"`
}

type SendMessageInput struct {
	ConversationID string                 `json:"conversation_id" validate:"required"`
	Content        string                 `json:"content"`
	Type           entity.MessageType     `json:"type" validate:"required"`
	Metadata       map[string]interface{} `json:"metadata"`
	AttachmentURL  string                 `json:"attachment_url"`
}

// MessagingUseCase orchestrates conversations, messages, offers, change
// subscriptions and unread bookkeeping. One instance serves all users;
// per-user state is keyed by user id.
type MessagingUseCase struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	participants  *ParticipantCache
	offers        *service.OfferCodec
	unread        *UnreadCounter
	coordinator   *SendCoordinator
	realtime      *realtime.Manager
	hub           *ws.Manager
	limiter       *ratelimit.Limiter

	activateTimeout time.Duration

	// baseCtx outlives individual requests; change feeds are bound to it so
	// they survive the request that opened them.
	baseCtx context.Context

	mu           sync.Mutex
	activeByUser map[string]string // userID -> conversationID
	watchers     map[string]int    // conversationID -> active user count
}

func NewMessagingUseCase(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	profiles repository.ProfileRepository,
	rt *realtime.Manager,
	hub *ws.Manager,
	limiter *ratelimit.Limiter,
	activateTimeout time.Duration,
) *MessagingUseCase {
	if activateTimeout <= 0 {
		activateTimeout = 5 * time.Second
	}
	return &MessagingUseCase{
		conversations:   conversations,
		messages:        messages,
		participants:    NewParticipantCache(profiles),
		offers:          service.NewOfferCodec(),
		unread:          NewUnreadCounter(messages),
		coordinator:     NewSendCoordinator(messages),
		realtime:        rt,
		hub:             hub,
		limiter:         limiter,
		activateTimeout: activateTimeout,
		baseCtx:         context.Background(),
		activeByUser:    make(map[string]string),
		watchers:        make(map[string]int),
	}
}

// Init wires the hub's typing callback and anchors change feeds to ctx.
// Call once at startup.
func (uc *MessagingUseCase) Init(ctx context.Context) {
	uc.baseCtx = ctx
	uc.hub.TypingFunc = uc.Typing
}

// Dispose tears down every live change feed. Used on shutdown.
func (uc *MessagingUseCase) Dispose() {
	uc.realtime.UnsubscribeAll()
}

// StartConversation finds or creates the active conversation between the
// buyer and seller, optionally sending an opening message. The product id
// anchors the conversation but does not split it: a second product with
// the same seller reuses the existing thread.
func (uc *MessagingUseCase) StartConversation(ctx context.Context, buyerID string, input StartConversationInput) (*ConversationView, error) {
	if allowed, wait := uc.limiter.Allow(buyerID, ratelimit.ActionStartConversation); !allowed {
		return nil, errors.TooManyRequests("You are starting conversations too quickly", wait.Seconds())
	}
	if buyerID == input.SellerID {
		return nil, errors.BadRequest("Cannot start a conversation with yourself", nil)
	}

	conv, err := uc.conversations.FindOrCreate(ctx, buyerID, input.SellerID, input.ProductID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.InitialMessage) != "" {
		view, err := uc.SendMessage(ctx, buyerID, SendMessageInput{
			ConversationID: conv.ID,
			Content:        input.InitialMessage,
			Type:           entity.MessageText,
		})
		if err != nil {
			return nil, err
		}
		summary := view.Message.Summary()
		conv.LastMessage = &summary
		conv.LastMessageAt = view.Message.CreatedAt
	}

	return uc.conversationView(ctx, buyerID, conv), nil
}

// ListConversations returns the user's conversations, most recently
// active first, each carrying the counterpart's identity.
func (uc *MessagingUseCase) ListConversations(ctx context.Context, userID string) ([]*ConversationView, error) {
	convs, err := uc.conversations.ListForUser(ctx, userID)
	if err != nil {
		logger.Error("failed to list conversations for %s: %v", userID, err)
		return nil, err
	}

	views := make([]*ConversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, uc.conversationView(ctx, userID, conv))
	}
	return views, nil
}

func (uc *MessagingUseCase) GetConversation(ctx context.Context, userID, conversationID string) (*ConversationView, error) {
	conv, err := uc.requireParticipant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	return uc.conversationView(ctx, userID, conv), nil
}

// Activate makes conversationID the user's open conversation: it loads
// the recent history into the projection and ensures a change feed is
// live. A user has at most one active conversation; activating a new one
// deactivates the previous. The history fetch is bounded by the activate
// timeout — on timeout the conversation opens empty rather than hanging,
// and the first change signal backfills it.
func (uc *MessagingUseCase) Activate(ctx context.Context, userID, conversationID string) ([]*MessageView, error) {
	conv, err := uc.requireParticipant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	uc.mu.Lock()
	prev := uc.activeByUser[userID]
	if prev != "" && prev != conversationID {
		uc.detachLocked(userID, prev)
	}
	if prev != conversationID {
		uc.activeByUser[userID] = conversationID
		uc.watchers[conversationID]++
	}
	needFeed := !uc.realtime.IsSubscribed(conversationID)
	uc.mu.Unlock()

	if needFeed {
		id := conv.ID
		if err := uc.realtime.Subscribe(uc.baseCtx, id, func() { uc.refresh(id) }); err != nil {
			// Leave the activation in place; the next Activate retries the
			// feed and sends still work without it.
			logger.Warn("change feed unavailable for conversation %s: %v", id, err)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, uc.activateTimeout)
	defer cancel()

	msgs, err := uc.messages.List(fetchCtx, conversationID, defaultMessageLimit)
	if err != nil {
		// Open empty instead of failing: the projection backfills on the
		// next change signal.
		logger.Warn("initial history fetch failed for conversation %s: %v", conversationID, err)
		uc.coordinator.Replace(conversationID, nil)
		return []*MessageView{}, nil
	}

	uc.coordinator.Replace(conversationID, msgs)
	return uc.messageViews(ctx, msgs), nil
}

// Deactivate closes the user's active conversation. The change feed stays
// up while any other user still has the conversation open.
func (uc *MessagingUseCase) Deactivate(userID, conversationID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.activeByUser[userID] != conversationID {
		return
	}
	delete(uc.activeByUser, userID)
	uc.detachLocked(userID, conversationID)
}

// detachLocked drops one watcher and tears the feed down when none
// remain. Caller holds uc.mu.
func (uc *MessagingUseCase) detachLocked(userID, conversationID string) {
	if uc.watchers[conversationID] > 0 {
		uc.watchers[conversationID]--
	}
	if uc.watchers[conversationID] == 0 {
		delete(uc.watchers, conversationID)
		uc.realtime.Unsubscribe(conversationID)
		uc.coordinator.Drop(conversationID)
	}
}

// ActiveConversation returns the user's currently open conversation id,
// or "".
func (uc *MessagingUseCase) ActiveConversation(userID string) string {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.activeByUser[userID]
}

// Messages returns the live projection for a conversation the user has
// open.
func (uc *MessagingUseCase) Messages(ctx context.Context, userID, conversationID string) ([]*MessageView, error) {
	if _, err := uc.requireParticipant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return uc.messageViews(ctx, uc.coordinator.Messages(conversationID)), nil
}

// refresh runs on every change signal: the signal itself carries nothing,
// so the projection, conversation record and unread tallies are all
// re-read from the store.
func (uc *MessagingUseCase) refresh(conversationID string) {
	ctx, cancel := context.WithTimeout(uc.baseCtx, refreshTimeout)
	defer cancel()

	msgs, err := uc.messages.List(ctx, conversationID, defaultMessageLimit)
	if err != nil {
		logger.Warn("refresh fetch failed for conversation %s: %v", conversationID, err)
		return
	}
	uc.coordinator.Replace(conversationID, msgs)

	conv, err := uc.conversations.GetByID(ctx, conversationID)
	if err != nil {
		logger.Warn("refresh conversation read failed for %s: %v", conversationID, err)
		return
	}

	for _, participantID := range conv.Participants {
		if _, err := uc.unread.Recompute(ctx, participantID, conversationID); err != nil {
			logger.Warn("unread recompute failed for %s in %s: %v", participantID, conversationID, err)
		}
	}

	payload := ws.NewEvent(ws.EventConversationUpdate, conversationID, nil).Marshal()
	uc.hub.SendToConversation(conversationID, payload, "")
	for _, participantID := range conv.Participants {
		uc.hub.SendToUser(participantID, payload)
	}
}

// SendMessage validates and sends a message through the optimistic
// coordinator, then settles the conversation's denormalized state and
// notifies the counterpart.
func (uc *MessagingUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*MessageView, error) {
	if allowed, wait := uc.limiter.Allow(senderID, ratelimit.ActionSendMessage); !allowed {
		uc.hub.SendToUser(senderID, ws.NewEvent(ws.EventError, input.ConversationID,
			map[string]string{"message": "You are sending messages too quickly"}).Marshal())
		return nil, errors.TooManyRequests("You are sending messages too quickly", wait.Seconds())
	}

	conv, err := uc.requireParticipant(ctx, senderID, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != entity.ConversationActive {
		return nil, errors.Conflict("Conversation is archived")
	}
	if !input.Type.Valid() {
		return nil, errors.Validation("Unknown message type", nil)
	}
	if input.Type.RequiresContent() && strings.TrimSpace(input.Content) == "" {
		return nil, errors.Validation("Message content is required", nil)
	}

	message := &entity.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        input.Content,
		Type:           input.Type,
		Metadata:       input.Metadata,
		AttachmentURL:  input.AttachmentURL,
	}

	if err := uc.coordinator.Send(ctx, message); err != nil {
		return nil, err
	}

	uc.settleAfterSend(ctx, conv, message)

	return &MessageView{Message: message, Sender: uc.participants.Resolve(ctx, senderID)}, nil
}

// settleAfterSend updates the denormalized conversation record and unread
// counts, and pushes realtime events. The message is already durable;
// failures here are logged, not surfaced, because the next change signal
// reconverges everything.
func (uc *MessagingUseCase) settleAfterSend(ctx context.Context, conv *entity.Conversation, message *entity.Message) {
	if err := uc.conversations.TouchLastMessage(ctx, conv.ID, message.Summary()); err != nil {
		logger.Warn("failed to update last message on conversation %s: %v", conv.ID, err)
	}

	if message.SenderID != entity.SenderSystem {
		counterpart := conv.CounterpartOf(message.SenderID)
		if counterpart != "" {
			count, err := uc.unread.Recompute(ctx, counterpart, conv.ID)
			if err != nil {
				logger.Warn("unread recompute failed for %s in %s: %v", counterpart, conv.ID, err)
			} else if err := uc.conversations.SetUnread(ctx, conv.ID, counterpart, count); err != nil {
				logger.Warn("failed to persist unread count on conversation %s: %v", conv.ID, err)
			}
			uc.hub.SendToUser(counterpart, ws.NewEvent(ws.EventConversationUpdate, conv.ID, nil).Marshal())
		}
	}

	view := &MessageView{Message: message, Sender: uc.participants.Resolve(ctx, message.SenderID)}
	uc.hub.SendToConversation(conv.ID,
		ws.NewEvent(ws.EventNewMessage, conv.ID, view).Marshal(), message.SenderID)
}

// SendSystemMessage appends a service-generated message. System messages
// skip rate limiting and participant checks but still go through the
// coordinator so open projections see them immediately.
func (uc *MessagingUseCase) SendSystemMessage(ctx context.Context, conversationID, content string, metadata map[string]interface{}) error {
	conv, err := uc.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}

	message := &entity.Message{
		ConversationID: conversationID,
		SenderID:       entity.SenderSystem,
		Content:        content,
		Type:           entity.MessageSystem,
		Metadata:       metadata,
	}
	if err := uc.coordinator.Send(ctx, message); err != nil {
		return err
	}

	uc.settleAfterSend(ctx, conv, message)
	return nil
}

// SendOffer sends a new offer message. The offer always starts pending
// regardless of what the caller put in the payload.
func (uc *MessagingUseCase) SendOffer(ctx context.Context, senderID, conversationID string, offer entity.OfferPayload) (*MessageView, error) {
	offer.Status = entity.OfferPending

	content, metadata, err := uc.offers.Encode(offer)
	if err != nil {
		return nil, err
	}

	return uc.SendMessage(ctx, senderID, SendMessageInput{
		ConversationID: conversationID,
		Content:        content,
		Type:           entity.MessageOffer,
		Metadata:       metadata,
	})
}

func (uc *MessagingUseCase) AcceptOffer(ctx context.Context, userID, conversationID, messageID string) (*MessageView, error) {
	return uc.resolveOffer(ctx, userID, conversationID, messageID, entity.OfferAccepted)
}

func (uc *MessagingUseCase) RejectOffer(ctx context.Context, userID, conversationID, messageID string) (*MessageView, error) {
	return uc.resolveOffer(ctx, userID, conversationID, messageID, entity.OfferRejected)
}

// resolveOffer records an accept/reject decision. The original offer
// message is never mutated; the decision is a new offer message with the
// final status, and the latest offer message is authoritative.
func (uc *MessagingUseCase) resolveOffer(ctx context.Context, userID, conversationID, messageID string, status entity.OfferStatus) (*MessageView, error) {
	if _, err := uc.requireParticipant(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	original, err := uc.messages.GetByID(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}

	offer := uc.offers.Decode(original)
	if offer == nil {
		return nil, errors.BadRequest("Message is not an offer", nil)
	}
	if offer.Status != entity.OfferPending {
		return nil, errors.Conflict("Offer has already been resolved")
	}
	resolvedBy, err := uc.findResolution(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if resolvedBy != "" {
		return nil, errors.Conflict("Offer has already been resolved")
	}
	if original.SenderID == userID {
		return nil, errors.Forbidden("Only the offer recipient can accept or reject it", nil)
	}

	resolved := *offer
	resolved.Status = status

	content, metadata, err := uc.offers.Encode(resolved)
	if err != nil {
		return nil, err
	}
	metadata["resolves_message_id"] = messageID

	view, err := uc.SendMessage(ctx, userID, SendMessageInput{
		ConversationID: conversationID,
		Content:        content,
		Type:           entity.MessageOffer,
		Metadata:       metadata,
	})
	if err != nil {
		return nil, err
	}

	verb := "accepted"
	if status == entity.OfferRejected {
		verb = "rejected"
	}
	deciderName := uc.participants.Resolve(ctx, userID).DisplayName
	if err := uc.SendSystemMessage(ctx, conversationID,
		deciderName+" "+verb+" the offer for "+resolved.ProductName,
		map[string]interface{}{"offer_message_id": messageID}); err != nil {
		logger.Warn("failed to record offer decision note in %s: %v", conversationID, err)
	}

	uc.hub.SendToConversation(conversationID, ws.NewEvent(ws.EventOfferUpdate, conversationID, map[string]interface{}{
		"message_id":     messageID,
		"new_message_id": view.Message.ID,
		"status":         status,
		"decided_by":     userID,
	}).Marshal(), "")

	return view, nil
}

// EditMessage rewrites the content of the caller's own message.
func (uc *MessagingUseCase) EditMessage(ctx context.Context, userID, conversationID, messageID, newContent string) error {
	if _, err := uc.requireParticipant(ctx, userID, conversationID); err != nil {
		return err
	}
	if strings.TrimSpace(newContent) == "" {
		return errors.Validation("Message content is required", nil)
	}

	message, err := uc.messages.GetByID(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != userID {
		return errors.Forbidden("You can only edit your own messages", nil)
	}
	if message.Type != entity.MessageText {
		return errors.BadRequest("Only text messages can be edited", nil)
	}

	if err := uc.messages.Edit(ctx, conversationID, messageID, newContent); err != nil {
		return err
	}

	uc.refresh(conversationID)
	return nil
}

// DeleteMessage soft-deletes the caller's own message.
func (uc *MessagingUseCase) DeleteMessage(ctx context.Context, userID, conversationID, messageID string) error {
	if _, err := uc.requireParticipant(ctx, userID, conversationID); err != nil {
		return err
	}

	message, err := uc.messages.GetByID(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != userID {
		return errors.Forbidden("You can only delete your own messages", nil)
	}

	if err := uc.messages.Delete(ctx, conversationID, messageID); err != nil {
		return err
	}

	uc.refresh(conversationID)
	return nil
}

// MarkRead marks everything the counterpart sent as read and zeroes the
// caller's unread count. Safe to call repeatedly.
func (uc *MessagingUseCase) MarkRead(ctx context.Context, userID, conversationID string) error {
	if _, err := uc.requireParticipant(ctx, userID, conversationID); err != nil {
		return err
	}

	if err := uc.messages.MarkRead(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := uc.conversations.SetUnread(ctx, conversationID, userID, 0); err != nil {
		logger.Warn("failed to persist unread reset on conversation %s: %v", conversationID, err)
	}
	uc.unread.OnMarkRead(userID, conversationID)

	uc.hub.SendToConversation(conversationID,
		ws.NewEvent(ws.EventReadReceipt, conversationID, ws.ReadReceiptData{ReaderID: userID}).Marshal(),
		userID)
	return nil
}

// ArchiveConversation closes the thread. A later StartConversation for
// the same pair creates a fresh one.
func (uc *MessagingUseCase) ArchiveConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := uc.requireParticipant(ctx, userID, conversationID); err != nil {
		return err
	}
	return uc.conversations.Archive(ctx, conversationID)
}

// UnreadSummary recomputes and returns the user's unread counts per
// conversation plus the total.
func (uc *MessagingUseCase) UnreadSummary(ctx context.Context, userID string) (map[string]int, int, error) {
	convs, err := uc.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	for _, conv := range convs {
		if _, err := uc.unread.Recompute(ctx, userID, conv.ID); err != nil {
			logger.Warn("unread recompute failed for %s in %s: %v", userID, conv.ID, err)
		}
	}

	return uc.unread.Snapshot(userID), uc.unread.Total(userID), nil
}

// Typing forwards a typing signal into the conversation room, throttled
// per user. Signals are best-effort; a dropped one only delays the
// indicator.
func (uc *MessagingUseCase) Typing(conversationID, userID string) {
	if allowed, _ := uc.limiter.Allow(userID, ratelimit.ActionTyping); !allowed {
		return
	}
	uc.hub.NotifyTyping(conversationID, userID)
}

// findResolution returns the id of the message that resolved the given
// offer, or "". Offers are resolved by new messages rather than in-place
// edits, so the original always reads as pending on its own.
func (uc *MessagingUseCase) findResolution(ctx context.Context, conversationID, offerMessageID string) (string, error) {
	msgs, err := uc.messages.List(ctx, conversationID, 0)
	if err != nil {
		return "", err
	}
	for _, msg := range msgs {
		if msg.Type != entity.MessageOffer || msg.Metadata == nil {
			continue
		}
		if ref, ok := msg.Metadata["resolves_message_id"].(string); ok && ref == offerMessageID {
			return msg.ID, nil
		}
	}
	return "", nil
}

func (uc *MessagingUseCase) requireParticipant(ctx context.Context, userID, conversationID string) (*entity.Conversation, error) {
	conv, err := uc.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.Forbidden("You are not part of this conversation", nil)
	}
	return conv, nil
}

func (uc *MessagingUseCase) conversationView(ctx context.Context, userID string, conv *entity.Conversation) *ConversationView {
	view := &ConversationView{Conversation: conv}
	if counterpart := conv.CounterpartOf(userID); counterpart != "" {
		view.Counterpart = uc.participants.Resolve(ctx, counterpart)
	}
	return view
}

func (uc *MessagingUseCase) messageViews(ctx context.Context, msgs []*entity.Message) []*MessageView {
	views := make([]*MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, &MessageView{Message: msg, Sender: uc.participants.Resolve(ctx, msg.SenderID)})
	}
	return views
}

package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/domain/entity"
	"tradepost/internal/infrastructure/ratelimit"
	"tradepost/internal/infrastructure/realtime"
	ws "tradepost/internal/infrastructure/websocket"
	"tradepost/pkg/errors"
)

type messagingFixture struct {
	uc       *MessagingUseCase
	convs    *memoryConversationRepo
	msgs     *memoryMessageRepo
	profiles *memoryProfileRepo
	feed     *fakeFeed
}

func newMessagingFixture(t *testing.T) *messagingFixture {
	t.Helper()
	f := &messagingFixture{
		convs:    newMemoryConversationRepo(),
		msgs:     newMemoryMessageRepo(),
		profiles: newMemoryProfileRepo(),
		feed:     newFakeFeed(),
	}
	f.uc = NewMessagingUseCase(
		f.convs, f.msgs, f.profiles,
		realtime.NewManager(f.feed),
		ws.NewManager(time.Second),
		ratelimit.NewLimiter(),
		time.Second,
	)
	f.uc.Init(context.Background())
	return f
}

func (f *messagingFixture) startConversation(t *testing.T, buyerID, sellerID, productID string) *ConversationView {
	t.Helper()
	view, err := f.uc.StartConversation(context.Background(), buyerID, StartConversationInput{
		SellerID:  sellerID,
		ProductID: productID,
	})
	require.NoError(t, err)
	return view
}

func TestStartConversationReusesThreadAcrossProducts(t *testing.T) {
	f := newMessagingFixture(t)

	first := f.startConversation(t, "buyer", "seller", "prod-1")
	second := f.startConversation(t, "buyer", "seller", "prod-2")

	assert.Equal(t, first.ID, second.ID, "same pair shares one active thread")
	assert.Equal(t, "prod-2", second.ProductID, "anchor follows the latest product")
	assert.Equal(t, 1, f.convs.created)
}

func TestStartConversationWithSelfRejected(t *testing.T) {
	f := newMessagingFixture(t)

	_, err := f.uc.StartConversation(context.Background(), "buyer", StartConversationInput{SellerID: "buyer"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestStartConversationSendsInitialMessage(t *testing.T) {
	f := newMessagingFixture(t)

	view, err := f.uc.StartConversation(context.Background(), "buyer", StartConversationInput{
		SellerID:       "seller",
		ProductID:      "prod-1",
		InitialMessage: "Is this still available?",
	})
	require.NoError(t, err)
	require.NotNil(t, view.LastMessage)
	assert.Equal(t, "Is this still available?", view.LastMessage.Content)

	stored, err := f.msgs.List(context.Background(), view.ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "buyer", stored[0].SenderID)

	conv, err := f.convs.GetByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount["seller"])
	assert.Equal(t, 0, conv.UnreadCount["buyer"])
}

func TestSendMessageRequiresParticipation(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	_, err := f.uc.SendMessage(context.Background(), "intruder", SendMessageInput{
		ConversationID: conv.ID,
		Content:        "hello",
		Type:           entity.MessageText,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestSendMessageValidation(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	_, err := f.uc.SendMessage(context.Background(), "buyer", SendMessageInput{
		ConversationID: conv.ID,
		Content:        "   ",
		Type:           entity.MessageText,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))

	_, err = f.uc.SendMessage(context.Background(), "buyer", SendMessageInput{
		ConversationID: conv.ID,
		Content:        "hello",
		Type:           entity.MessageType("carrier_pigeon"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))
}

func TestSendMessageRollsBackOnStoreFailure(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	_, err := f.uc.Activate(context.Background(), "buyer", conv.ID)
	require.NoError(t, err)

	f.msgs.mu.Lock()
	f.msgs.appendErr = errors.Internal("write failed", nil)
	f.msgs.mu.Unlock()

	_, err = f.uc.SendMessage(context.Background(), "buyer", SendMessageInput{
		ConversationID: conv.ID,
		Content:        "hello",
		Type:           entity.MessageText,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "RECONCILIATION_FAILED"))
	assert.Empty(t, f.uc.coordinator.Messages(conv.ID), "optimistic copy rolled back")
	assert.Equal(t, SendRolledBack, f.uc.coordinator.State(conv.ID))
}

func TestActivateLoadsHistoryAndOpensFeed(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	for _, content := range []string{"one", "two", "three"} {
		_, err := f.uc.SendMessage(context.Background(), "buyer", SendMessageInput{
			ConversationID: conv.ID, Content: content, Type: entity.MessageText,
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	views, err := f.uc.Activate(context.Background(), "buyer", conv.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "one", views[0].Content, "history is ascending")
	assert.Equal(t, "three", views[2].Content)
	assert.True(t, f.feed.isLive(conv.ID))
	assert.Equal(t, conv.ID, f.uc.ActiveConversation("buyer"))
}

func TestActivateSwitchesConversations(t *testing.T) {
	f := newMessagingFixture(t)
	convA := f.startConversation(t, "buyer", "seller", "prod-1")
	convB := f.startConversation(t, "buyer", "other-seller", "prod-2")

	_, err := f.uc.Activate(context.Background(), "buyer", convA.ID)
	require.NoError(t, err)
	_, err = f.uc.Activate(context.Background(), "buyer", convB.ID)
	require.NoError(t, err)

	assert.Equal(t, convB.ID, f.uc.ActiveConversation("buyer"))
	assert.True(t, f.feed.wasCanceled(convA.ID), "previous feed torn down")
	assert.True(t, f.feed.isLive(convB.ID))
}

func TestActivateOpensEmptyWhenHistoryFetchFails(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	f.msgs.mu.Lock()
	f.msgs.listErr = errors.Internal("store down", nil)
	f.msgs.mu.Unlock()

	views, err := f.uc.Activate(context.Background(), "buyer", conv.ID)
	require.NoError(t, err, "slow or failing history must not block activation")
	assert.Empty(t, views)
	assert.True(t, f.feed.isLive(conv.ID), "feed still opens")
}

func TestActivateRetriesFeedAfterFailure(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	f.feed.mu.Lock()
	f.feed.failNext = true
	f.feed.mu.Unlock()

	_, err := f.uc.Activate(context.Background(), "buyer", conv.ID)
	require.NoError(t, err, "feed failure is not fatal")
	assert.False(t, f.feed.isLive(conv.ID))

	_, err = f.uc.Activate(context.Background(), "buyer", conv.ID)
	require.NoError(t, err)
	assert.True(t, f.feed.isLive(conv.ID), "next activation retries the feed")
}

func TestDeactivateKeepsFeedWhileOthersWatch(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	_, err := f.uc.Activate(context.Background(), "buyer", conv.ID)
	require.NoError(t, err)
	_, err = f.uc.Activate(context.Background(), "seller", conv.ID)
	require.NoError(t, err)

	f.uc.Deactivate("buyer", conv.ID)
	assert.True(t, f.feed.isLive(conv.ID), "seller still has it open")

	f.uc.Deactivate("seller", conv.ID)
	assert.True(t, f.feed.wasCanceled(conv.ID))
	assert.Empty(t, f.uc.ActiveConversation("seller"))
}

func TestChangeSignalRefreshesProjection(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	_, err := f.uc.Activate(context.Background(), "buyer", conv.ID)
	require.NoError(t, err)

	// A write that bypasses this process, as a second instance would.
	require.NoError(t, f.msgs.Append(context.Background(), &entity.Message{
		ID: "external", ConversationID: conv.ID, SenderID: "seller",
		Content: "out-of-band", Type: entity.MessageText, CreatedAt: time.Now(),
	}))
	f.feed.fire(conv.ID)

	views, err := f.uc.Messages(context.Background(), "buyer", conv.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "external", views[0].ID)
	assert.Equal(t, 1, f.uc.unread.Count("buyer", conv.ID))
}

func TestOfferLifecycle(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	offerView, err := f.uc.SendOffer(context.Background(), "buyer", conv.ID, entity.OfferPayload{
		OfferType:        entity.OfferCash,
		OfferValue:       150000,
		OfferDescription: "Cash, pickup today",
		ProductID:        "prod-1",
		ProductName:      "Road Bike",
		Status:           entity.OfferAccepted, // caller cannot pre-accept
	})
	require.NoError(t, err)

	sent := f.uc.offers.Decode(offerView.Message)
	require.NotNil(t, sent)
	assert.Equal(t, entity.OfferPending, sent.Status)

	resolved, err := f.uc.AcceptOffer(context.Background(), "seller", conv.ID, offerView.Message.ID)
	require.NoError(t, err)

	decision := f.uc.offers.Decode(resolved.Message)
	require.NotNil(t, decision)
	assert.Equal(t, entity.OfferAccepted, decision.Status)
	assert.NotEqual(t, offerView.Message.ID, resolved.Message.ID, "resolution is a new message")

	original, err := f.msgs.GetByID(context.Background(), conv.ID, offerView.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OfferPending, f.uc.offers.Decode(original).Status, "original never mutated")

	all, err := f.msgs.List(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	var system *entity.Message
	for _, msg := range all {
		if msg.Type == entity.MessageSystem {
			system = msg
		}
	}
	require.NotNil(t, system, "decision leaves a system note")
	assert.Equal(t, entity.SenderSystem, system.SenderID)
}

func TestOfferCannotBeResolvedTwice(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	offerView, err := f.uc.SendOffer(context.Background(), "buyer", conv.ID, entity.OfferPayload{
		OfferType: entity.OfferBarter, OfferItems: "Two vintage cameras",
		OfferDescription: "Straight swap", ProductID: "prod-1", ProductName: "Road Bike",
	})
	require.NoError(t, err)

	_, err = f.uc.AcceptOffer(context.Background(), "seller", conv.ID, offerView.Message.ID)
	require.NoError(t, err)

	_, err = f.uc.RejectOffer(context.Background(), "seller", conv.ID, offerView.Message.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "CONFLICT"))
}

func TestOfferSenderCannotResolveOwnOffer(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	offerView, err := f.uc.SendOffer(context.Background(), "buyer", conv.ID, entity.OfferPayload{
		OfferType: entity.OfferCash, OfferValue: 100,
		OfferDescription: "deal", ProductID: "prod-1", ProductName: "Road Bike",
	})
	require.NoError(t, err)

	_, err = f.uc.AcceptOffer(context.Background(), "buyer", conv.ID, offerView.Message.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestResolveNonOfferRejected(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	view, err := f.uc.SendMessage(context.Background(), "buyer", SendMessageInput{
		ConversationID: conv.ID, Content: "just chatting", Type: entity.MessageText,
	})
	require.NoError(t, err)

	_, err = f.uc.AcceptOffer(context.Background(), "seller", conv.ID, view.Message.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	for i := 0; i < 3; i++ {
		_, err := f.uc.SendMessage(context.Background(), "seller", SendMessageInput{
			ConversationID: conv.ID, Content: "ping", Type: entity.MessageText,
		})
		require.NoError(t, err)
	}

	count, err := f.uc.unread.Recompute(context.Background(), "buyer", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, f.uc.MarkRead(context.Background(), "buyer", conv.ID))
	require.NoError(t, f.uc.MarkRead(context.Background(), "buyer", conv.ID))

	assert.Equal(t, 0, f.uc.unread.Count("buyer", conv.ID))
	stored, err := f.convs.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UnreadCount["buyer"])

	msgs, err := f.msgs.List(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	for _, msg := range msgs {
		assert.True(t, msg.IsRead)
	}
}

func TestEditAndDeleteOwnMessagesOnly(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	view, err := f.uc.SendMessage(context.Background(), "buyer", SendMessageInput{
		ConversationID: conv.ID, Content: "typo here", Type: entity.MessageText,
	})
	require.NoError(t, err)

	err = f.uc.EditMessage(context.Background(), "seller", conv.ID, view.Message.ID, "hijacked")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	require.NoError(t, f.uc.EditMessage(context.Background(), "buyer", conv.ID, view.Message.ID, "fixed"))
	edited, err := f.msgs.GetByID(context.Background(), conv.ID, view.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Content)
	assert.True(t, edited.IsEdited)

	err = f.uc.DeleteMessage(context.Background(), "seller", conv.ID, view.Message.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	require.NoError(t, f.uc.DeleteMessage(context.Background(), "buyer", conv.ID, view.Message.ID))
	deleted, err := f.msgs.GetByID(context.Background(), conv.ID, view.Message.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Empty(t, deleted.Content)
}

func TestUnreadSummaryAcrossConversations(t *testing.T) {
	f := newMessagingFixture(t)
	convA := f.startConversation(t, "buyer", "seller", "prod-1")
	convB := f.startConversation(t, "buyer", "other-seller", "prod-2")

	for i := 0; i < 2; i++ {
		_, err := f.uc.SendMessage(context.Background(), "seller", SendMessageInput{
			ConversationID: convA.ID, Content: "hey", Type: entity.MessageText,
		})
		require.NoError(t, err)
	}
	_, err := f.uc.SendMessage(context.Background(), "other-seller", SendMessageInput{
		ConversationID: convB.ID, Content: "hey", Type: entity.MessageText,
	})
	require.NoError(t, err)

	perConv, total, err := f.uc.UnreadSummary(context.Background(), "buyer")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, perConv[convA.ID])
	assert.Equal(t, 1, perConv[convB.ID])
}

func TestArchivedConversationRejectsSends(t *testing.T) {
	f := newMessagingFixture(t)
	conv := f.startConversation(t, "buyer", "seller", "prod-1")

	require.NoError(t, f.uc.ArchiveConversation(context.Background(), "buyer", conv.ID))

	_, err := f.uc.SendMessage(context.Background(), "buyer", SendMessageInput{
		ConversationID: conv.ID, Content: "anyone there?", Type: entity.MessageText,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "CONFLICT"))

	// A fresh start after archiving opens a new thread.
	fresh := f.startConversation(t, "buyer", "seller", "prod-1")
	assert.NotEqual(t, conv.ID, fresh.ID)
}

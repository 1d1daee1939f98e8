package entity

import "time"

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

// MessageSummary is the denormalized last-message preview stored on the
// conversation record.
type MessageSummary struct {
	Content  string      `json:"content" firestore:"content"`
	SenderID string      `json:"sender_id" firestore:"senderId"`
	Type     MessageType `json:"type" firestore:"type"`
	SentAt   time.Time   `json:"sent_at" firestore:"sentAt"`
}

// Conversation is a thread between exactly one buyer and one seller,
// optionally anchored to a product. At most one active conversation exists
// per (buyer, seller) pair; the product anchor tracks the latest product
// discussed rather than splitting the thread.
type Conversation struct {
	ID            string             `json:"id" firestore:"id"`
	BuyerID       string             `json:"buyer_id" firestore:"buyerId"`
	SellerID      string             `json:"seller_id" firestore:"sellerId"`
	Participants  []string           `json:"participants" firestore:"participants"`
	ProductID     string             `json:"product_id,omitempty" firestore:"productId,omitempty"`
	OfferID       string             `json:"offer_id,omitempty" firestore:"offerId,omitempty"`
	Status        ConversationStatus `json:"status" firestore:"status"`
	CreatedAt     time.Time          `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time          `json:"updated_at" firestore:"updatedAt"`
	LastMessageAt time.Time          `json:"last_message_at" firestore:"lastMessageAt"`
	LastMessage   *MessageSummary    `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	UnreadCount   map[string]int     `json:"unread_count" firestore:"unreadCount"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// CounterpartOf returns the other participant's id, or "" when userID is
// not part of the conversation.
func (c *Conversation) CounterpartOf(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	if userID == c.BuyerID {
		return c.SellerID
	}
	return c.BuyerID
}

package entity

import "time"

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageOffer  MessageType = "offer"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageOffer, MessageSystem:
		return true
	}
	return false
}

// RequiresContent reports whether messages of this type must carry a
// non-empty body. Attachments may ship with empty text.
func (t MessageType) RequiresContent() bool {
	return t == MessageText || t == MessageOffer
}

// SenderSystem is the reserved sender id for service-generated messages.
// System messages never count toward anyone's unread total.
const SenderSystem = "system"

type Message struct {
	ID             string                 `json:"id" firestore:"id"`
	ConversationID string                 `json:"conversation_id" firestore:"conversationId"`
	SenderID       string                 `json:"sender_id" firestore:"senderId"`
	Content        string                 `json:"content" firestore:"content"`
	Type           MessageType            `json:"type" firestore:"type"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" firestore:"metadata,omitempty"`
	AttachmentURL  string                 `json:"attachment_url,omitempty" firestore:"attachmentUrl,omitempty"`
	IsRead         bool                   `json:"is_read" firestore:"isRead"`
	IsEdited       bool                   `json:"is_edited" firestore:"isEdited"`
	IsDeleted      bool                   `json:"is_deleted" firestore:"isDeleted"`
	CreatedAt      time.Time              `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time              `json:"updated_at" firestore:"updatedAt"`
}

// CountsTowardUnread reports whether this message adds to readerID's unread
// count: only live, unread messages authored by someone else, and never
// system messages.
func (m *Message) CountsTowardUnread(readerID string) bool {
	if m.IsRead || m.IsDeleted {
		return false
	}
	if m.SenderID == readerID || m.SenderID == SenderSystem {
		return false
	}
	return true
}

func (m *Message) Summary() MessageSummary {
	return MessageSummary{
		Content:  m.Content,
		SenderID: m.SenderID,
		Type:     m.Type,
		SentAt:   m.CreatedAt,
	}
}

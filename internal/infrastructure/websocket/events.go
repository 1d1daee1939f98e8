package websocket

import (
	"encoding/json"
	"time"

	"tradepost/pkg/logger"
)

// Event types pushed to clients. conversation_update is content-free by
// design: the receiver re-queries instead of merging a delta.
const (
	EventPing               = "ping"
	EventPong               = "pong"
	EventNewMessage         = "new_message"
	EventConversationUpdate = "conversation_update"
	EventOfferUpdate        = "offer_update"
	EventTypingIndicator    = "typing_indicator"
	EventReadReceipt        = "read_receipt"
	EventJoinConversation   = "join_conversation"
	EventLeaveConversation  = "leave_conversation"
	EventTyping             = "typing"
	EventError              = "error"
)

type Event struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

func NewEvent(eventType, conversationID string, data interface{}) Event {
	return Event{
		Type:           eventType,
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

func (e Event) Marshal() []byte {
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Error("ws: failed to marshal %s event: %v", e.Type, err)
		return nil
	}
	return payload
}

type TypingData struct {
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

type ReadReceiptData struct {
	ReaderID string `json:"reader_id"`
}

// HandleClientMessage processes one inbound frame. Only lightweight
// signals travel over the socket; durable operations go through HTTP.
func (m *Manager) HandleClientMessage(client *Client, payload []byte) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Warn("ws: malformed frame from %s: %v", client.UserID, err)
		m.sendError(client, "Invalid message format")
		return
	}

	switch event.Type {
	case EventPing:
		m.SendToUser(client.UserID, NewEvent(EventPong, "", nil).Marshal())

	case EventJoinConversation:
		if event.ConversationID == "" {
			m.sendError(client, "Missing conversation id")
			return
		}
		m.JoinRoom(client, event.ConversationID)

	case EventLeaveConversation:
		if event.ConversationID == "" {
			m.sendError(client, "Missing conversation id")
			return
		}
		m.LeaveRoom(client, event.ConversationID)

	case EventTyping:
		if event.ConversationID == "" {
			return
		}
		if m.TypingFunc != nil {
			m.TypingFunc(event.ConversationID, client.UserID)
		}

	default:
		logger.Debug("ws: unknown frame type %q from %s", event.Type, client.UserID)
		m.sendError(client, "Unknown message type")
	}
}

func (m *Manager) sendError(client *Client, message string) {
	m.SendToUser(client.UserID, NewEvent(EventError, "", map[string]string{"message": message}).Marshal())
}

// NotifyTyping lights the typing indicator for userID in the conversation
// room and schedules its self-clearing expiry. Repeated calls within the
// TTL only push the expiry out; the "typing" broadcast is sent once per
// burst, which bounds event volume.
func (m *Manager) NotifyTyping(conversationID, userID string) {
	started := m.typing.touch(conversationID, userID, func() {
		m.SendToConversation(conversationID,
			NewEvent(EventTypingIndicator, conversationID, TypingData{UserID: userID, Typing: false}).Marshal(),
			userID)
	})

	if started {
		m.SendToConversation(conversationID,
			NewEvent(EventTypingIndicator, conversationID, TypingData{UserID: userID, Typing: true}).Marshal(),
			userID)
	}
}

package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradepost/pkg/logger"
)

// Client represents one connected user.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Manager is the hub for connected clients and their conversation rooms.
// A room holds the clients that currently have that conversation open;
// events addressed to a room reach them immediately, everything else goes
// through per-user delivery.
type Manager struct {
	Register   chan *Client
	Unregister chan *Client

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client // conversationID -> userID -> client

	typing *typingTracker

	// TypingFunc is invoked when a client reports typing activity; wired by
	// the host so the hub stays free of usecase imports.
	TypingFunc func(conversationID, userID string)
}

func NewManager(typingTTL time.Duration) *Manager {
	return &Manager{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		typing:     newTypingTracker(typingTTL),
	}
}

func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mu.Lock()
				m.clients[client.UserID] = client
				m.mu.Unlock()
				logger.Info("ws: client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.mu.Lock()
				if _, ok := m.clients[client.UserID]; ok {
					delete(m.clients, client.UserID)
					for _, room := range m.rooms {
						delete(room, client.UserID)
					}
					close(client.Send)
				}
				m.mu.Unlock()
				logger.Info("ws: client unregistered: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) JoinRoom(client *Client, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[conversationID]
	if !ok {
		room = make(map[string]*Client)
		m.rooms[conversationID] = room
	}
	room[client.UserID] = client
}

func (m *Manager) LeaveRoom(client *Client, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[conversationID]; ok {
		delete(room, client.UserID)
		if len(room) == 0 {
			delete(m.rooms, conversationID)
		}
	}
}

func (m *Manager) SendToUser(userID string, payload []byte) {
	m.mu.RLock()
	client, ok := m.clients[userID]
	m.mu.RUnlock()

	if ok {
		select {
		case client.Send <- payload:
		default:
			logger.Warn("ws: dropping event for slow client %s", userID)
		}
	}
}

// SendToConversation delivers to every room member except excludeUserID.
func (m *Manager) SendToConversation(conversationID string, payload []byte, excludeUserID string) {
	m.mu.RLock()
	room := m.rooms[conversationID]
	targets := make([]*Client, 0, len(room))
	for userID, client := range room {
		if userID != excludeUserID {
			targets = append(targets, client)
		}
	}
	m.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.Send <- payload:
		default:
			logger.Warn("ws: dropping event for slow client %s", client.UserID)
		}
	}
}

// ReadPump consumes client frames until the connection dies.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("ws: read error from %s: %v", c.UserID, err)
			}
			break
		}

		m.HandleClientMessage(c, payload)
	}
}

// WritePump drains the client's send channel onto the connection.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		payload, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warn("ws: write error to %s: %v", c.UserID, err)
			return
		}
	}
}

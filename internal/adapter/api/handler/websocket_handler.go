package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"tradepost/internal/adapter/api/middleware"
	ws "tradepost/internal/infrastructure/websocket"
	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

type WebSocketHandler struct {
	hub            *ws.Manager
	authMiddleware *middleware.AuthMiddleware
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins once the web client's domain is fixed
	},
}

func NewWebSocketHandler(hub *ws.Manager, authMiddleware *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		authMiddleware: authMiddleware,
	}
}

// HandleWebSocket upgrades the connection and registers the client with
// the hub. Browsers cannot set headers on the upgrade request, so the
// token arrives as a query parameter instead.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthorized("Authentication token is required", nil)
	}

	userID, err := h.authMiddleware.GetUIDFromToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := &ws.Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}

	h.hub.Register <- client
	logger.Info("ws: connection opened for %s", userID)

	go client.ReadPump(h.hub)
	go client.WritePump()

	return nil
}

package handler

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/domain/entity"
	"tradepost/internal/usecase"
	"tradepost/pkg/response"
	"tradepost/pkg/utils"
)

type MessagingHandler struct {
	messaging *usecase.MessagingUseCase
}

func NewMessagingHandler(messaging *usecase.MessagingUseCase) *MessagingHandler {
	return &MessagingHandler{
		messaging: messaging,
	}
}

type startConversationRequest struct {
	SellerID       string `json:"seller_id" validate:"required"`
	ProductID      string `json:"product_id"`
	InitialMessage string `json:"initial_message"`
}

type sendMessageRequest struct {
	Content       string                 `json:"content"`
	Type          string                 `json:"type" validate:"required,oneof=text image file offer"`
	AttachmentURL string                 `json:"attachment_url,omitempty" validate:"omitempty,url"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type sendOfferRequest struct {
	OfferType        string  `json:"offer_type" validate:"required,oneof=cash barter"`
	OfferValue       float64 `json:"offer_value"`
	OfferItems       string  `json:"offer_items"`
	OfferDescription string  `json:"offer_description" validate:"required"`
	ProductID        string  `json:"product_id" validate:"required"`
	ProductName      string  `json:"product_name" validate:"required"`
	ProductImageURL  string  `json:"product_image_url"`
	ProductPrice     float64 `json:"product_price"`
}

type offerActionRequest struct {
	MessageID string `json:"message_id" validate:"required"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// StartConversation finds or creates the thread between the caller and a
// seller.
func (h *MessagingHandler) StartConversation(c echo.Context) error {
	var req startConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conv, err := h.messaging.StartConversation(c.Request().Context(), userID, usecase.StartConversationInput{
		SellerID:       req.SellerID,
		ProductID:      req.ProductID,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conv)
}

// ListConversations returns the caller's conversations, newest activity
// first.
func (h *MessagingHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)
	params := utils.GetPaginationParams(c)

	convs, err := h.messaging.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	total := int64(len(convs))
	page := convs[min(params.Offset, len(convs)):]
	if len(page) > params.PageSize {
		page = page[:params.PageSize]
	}

	return response.SuccessPaginated(c, page, total, params.PageSize, params.Offset)
}

func (h *MessagingHandler) GetConversation(c echo.Context) error {
	userID := c.Get("uid").(string)

	conv, err := h.messaging.GetConversation(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

// Activate opens the conversation: loads recent history and starts the
// change feed. The previous active conversation, if any, is closed.
func (h *MessagingHandler) Activate(c echo.Context) error {
	userID := c.Get("uid").(string)

	messages, err := h.messaging.Activate(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

func (h *MessagingHandler) Deactivate(c echo.Context) error {
	userID := c.Get("uid").(string)
	h.messaging.Deactivate(userID, c.Param("id"))
	return response.Success(c, map[string]string{"status": "deactivated"})
}

// GetMessages returns the live projection for an activated conversation.
func (h *MessagingHandler) GetMessages(c echo.Context) error {
	userID := c.Get("uid").(string)

	messages, err := h.messaging.Messages(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

func (h *MessagingHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.messaging.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ConversationID: c.Param("id"),
		Content:        req.Content,
		Type:           entity.MessageType(req.Type),
		Metadata:       req.Metadata,
		AttachmentURL:  req.AttachmentURL,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

func (h *MessagingHandler) SendOffer(c echo.Context) error {
	var req sendOfferRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.messaging.SendOffer(c.Request().Context(), userID, c.Param("id"), entity.OfferPayload{
		OfferType:        entity.OfferType(req.OfferType),
		OfferValue:       req.OfferValue,
		OfferItems:       req.OfferItems,
		OfferDescription: req.OfferDescription,
		ProductID:        req.ProductID,
		ProductName:      req.ProductName,
		ProductImageURL:  req.ProductImageURL,
		ProductPrice:     req.ProductPrice,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

func (h *MessagingHandler) AcceptOffer(c echo.Context) error {
	return h.resolveOffer(c, true)
}

func (h *MessagingHandler) RejectOffer(c echo.Context) error {
	return h.resolveOffer(c, false)
}

func (h *MessagingHandler) resolveOffer(c echo.Context, accept bool) error {
	var req offerActionRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	var (
		message *usecase.MessageView
		err     error
	)
	if accept {
		message, err = h.messaging.AcceptOffer(c.Request().Context(), userID, c.Param("id"), req.MessageID)
	} else {
		message, err = h.messaging.RejectOffer(c.Request().Context(), userID, c.Param("id"), req.MessageID)
	}
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, message)
}

func (h *MessagingHandler) EditMessage(c echo.Context) error {
	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	if err := h.messaging.EditMessage(c.Request().Context(), userID, c.Param("id"), c.Param("messageId"), req.Content); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "edited"})
}

func (h *MessagingHandler) DeleteMessage(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.messaging.DeleteMessage(c.Request().Context(), userID, c.Param("id"), c.Param("messageId")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "deleted"})
}

func (h *MessagingHandler) MarkRead(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.messaging.MarkRead(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "read"})
}

func (h *MessagingHandler) ArchiveConversation(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.messaging.ArchiveConversation(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "archived"})
}

// UnreadSummary returns per-conversation unread counts and the total for
// the caller's badge.
func (h *MessagingHandler) UnreadSummary(c echo.Context) error {
	userID := c.Get("uid").(string)

	perConversation, total, err := h.messaging.UnreadSummary(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"conversations": perConversation,
		"total":         total,
	})
}

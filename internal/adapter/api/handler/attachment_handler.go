package handler

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/infrastructure/storage"
	"tradepost/pkg/errors"
	"tradepost/pkg/response"
)

// maxAttachmentSize caps uploads at 5 MB.
const maxAttachmentSize = 5 << 20

var allowedAttachmentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/gif":       true,
	"application/pdf": true,
}

type AttachmentHandler struct {
	store *storage.AttachmentStore
}

func NewAttachmentHandler(store *storage.AttachmentStore) *AttachmentHandler {
	return &AttachmentHandler{
		store: store,
	}
}

// Upload stores one attachment and returns its URL. The caller then sends
// a message of type image or file carrying the URL; upload and send are
// separate steps so a failed send does not orphan the message.
func (h *AttachmentHandler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.BadRequest("Attachment file is required", err))
	}

	if fileHeader.Size > maxAttachmentSize {
		return response.Error(c, errors.BadRequest("Attachment exceeds the 5MB limit", nil))
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedAttachmentTypes[contentType] {
		return response.Error(c, errors.BadRequest("Unsupported attachment type", nil))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.Error(c, errors.Internal("Failed to read attachment", err))
	}
	defer file.Close()

	url, err := h.store.Upload(c.Request().Context(), file, contentType)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to store attachment", err))
	}

	return response.Created(c, map[string]string{
		"url":          url,
		"content_type": contentType,
	})
}

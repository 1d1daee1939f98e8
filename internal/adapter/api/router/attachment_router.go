package router

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/adapter/api/handler"
	"tradepost/internal/adapter/api/middleware"
)

func SetupAttachmentRouter(e *echo.Echo, attachmentHandler *handler.AttachmentHandler, authMiddleware *middleware.AuthMiddleware) {
	attachments := e.Group("/v1/attachments")
	attachments.Use(authMiddleware.Authenticate)
	attachments.POST("", attachmentHandler.Upload)
}

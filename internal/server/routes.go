package server

import (
	"github.com/potrek505/TEG-project/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", routes.HealthHandler)

	// Conversation routes
	e.POST("/chat", routes.ChatHandler)
	e.POST("/clear", routes.ClearHandler)
	e.GET("/history", routes.GetHistoryHandler)
	e.DELETE("/history", routes.DeleteHistoryHandler)
	e.GET("/sessions", routes.GetSessionsHandler)

	e.GET("/config", routes.GetConfigHandler)
}

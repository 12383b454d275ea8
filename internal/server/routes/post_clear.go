package routes

import (
	"net/http"

	"github.com/potrek505/TEG-project/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

func ClearHandler(c echo.Context) error {
	type clearBody struct {
		SessionID string `json:"session_id" validate:"max=128"`
	}

	data := new(clearBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session id"})
	}

	app := c.(*middleware.AppContext).App
	sessionID := app.Chat.Clear(c.Request().Context(), data.SessionID)

	return c.JSON(http.StatusOK, map[string]any{
		"status":     "conversation cleared",
		"success":    true,
		"session_id": sessionID,
	})
}

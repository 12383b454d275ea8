package routes

import (
	"net/http"

	"github.com/potrek505/TEG-project/internal/server/middleware"
	"github.com/potrek505/TEG-project/pkg/logger"

	"github.com/labstack/echo/v4"
)

func GetHistoryHandler(c echo.Context) error {
	type historyParams struct {
		SessionID string `query:"session_id" validate:"max=128"`
	}

	params := new(historyParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if app.History == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Conversation history is disabled"})
	}

	res, err := app.History.ConversationHistory(c.Request().Context(), params.SessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, res)
}

func GetSessionsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App

	res := map[string]any{"active": app.Chat.Sessions()}
	if app.History != nil {
		saved, err := app.History.Sessions(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		}
		res["saved"] = saved
	}
	return c.JSON(http.StatusOK, res)
}

// DeleteHistoryHandler wipes the whole conversation log. Live sessions are
// not affected; use /clear for those.
func DeleteHistoryHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.History == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Conversation history is disabled"})
	}

	if err := app.History.ClearAll(c.Request().Context()); err != nil {
		logger.Error("Failed to clear conversation history", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	logger.Info("Conversation history cleared")
	return c.JSON(http.StatusOK, map[string]any{"success": true, "status": "history cleared"})
}

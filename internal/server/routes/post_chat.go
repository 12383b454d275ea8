package routes

import (
	"errors"
	"net/http"

	"github.com/potrek505/TEG-project/internal/chat"
	"github.com/potrek505/TEG-project/internal/server/middleware"
	"github.com/potrek505/TEG-project/pkg/logger"

	"github.com/labstack/echo/v4"
)

func ChatHandler(c echo.Context) error {
	type chatBody struct {
		Message   string `json:"message" validate:"required"`
		SessionID string `json:"session_id" validate:"max=128"`
	}

	data := new(chatBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message is required"})
	}

	app := c.(*middleware.AppContext).App
	reply, err := app.Chat.Chat(c.Request().Context(), data.SessionID, data.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message is required"})
		}
		logger.Error("Chat turn failed", "session_id", data.SessionID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	res := map[string]any{
		"response":    reply.Response,
		"session_id":  reply.SessionID,
		"route":       reply.Route,
		"outcome":     reply.Outcome,
		"graph_state": reply.Trace,
		"status":      "success",
	}
	if reply.Strategy != "" {
		res["rag_strategy"] = reply.Strategy
		res["rag_complexity"] = reply.Complexity
		res["source_documents_count"] = reply.SourceDocumentsCount
	}
	return c.JSON(http.StatusOK, res)
}

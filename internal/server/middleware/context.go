package middleware

import (
	"context"

	"github.com/potrek505/TEG-project/internal/chat"
	"github.com/potrek505/TEG-project/internal/config"
	"github.com/potrek505/TEG-project/internal/history"

	"github.com/labstack/echo/v4"
)

// ChatService is the part of chat.Service the handlers use.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (chat.Reply, error)
	Clear(ctx context.Context, sessionID string) string
	Sessions() []string
}

// HistoryLog is the conversation log as seen by the handlers.
type HistoryLog interface {
	ConversationHistory(ctx context.Context, sessionID string) ([]history.Exchange, error)
	Sessions(ctx context.Context) ([]history.Session, error)
	ClearAll(ctx context.Context) error
}

type App struct {
	Chat ChatService
	// History is nil when the conversation log is disabled.
	History HistoryLog
	// Config returns the current configuration snapshot.
	Config func() *config.Config
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}

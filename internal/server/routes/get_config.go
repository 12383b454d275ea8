package routes

import (
	"net/http"

	"github.com/potrek505/TEG-project/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

func GetConfigHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Config == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No configuration loaded"})
	}
	return c.JSON(http.StatusOK, app.Config().Redacted())
}

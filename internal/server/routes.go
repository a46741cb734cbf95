package server

import (
	"inventory/internal/handler"
	"inventory/internal/middleware"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, stockH *handler.StockHandler) {
	//在庫APIは全てbearer token必須
	g := e.Group("", middleware.BearerToken())
	stockH.RegisterRoutes(g)
}

package server

import (
	"inventory/internal/handler"

	"github.com/labstack/echo/v4"
)

func Start(addr string, stockH *handler.StockHandler) error {
	e := echo.New()
	e.HideBanner = true

	RegisterRoutes(e, stockH)
	return e.Start(addr)
}

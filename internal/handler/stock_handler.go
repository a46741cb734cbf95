package handler

import (
	"net/http"
	"strconv"
	"time"

	"inventory/internal/domain/model"
	"inventory/internal/middleware"
	"inventory/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// 在庫API。全ルートがbearer token必須（BearerTokenミドルウェアの後ろに置く）。
type StockHandler struct {
	uc *usecase.StockUsecase
}

// DI
func NewStockHandler(uc *usecase.StockUsecase) *StockHandler {
	return &StockHandler{uc: uc}
}

func (h *StockHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/items", h.createItem)
	g.GET("/items", h.listItems)
	g.GET("/items/:id", h.getItem)

	g.POST("/stock/add", h.addStock)
	g.POST("/stock/subtract", h.subtractStock)

	g.GET("/transactions", h.listTransactions)
	g.GET("/transactions/:id", h.getTransaction)
}

func token(c echo.Context) string {
	t, _ := c.Get(middleware.CtxAuthTokenKey).(string)
	return t
}

type createItemRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

func (h *StockHandler) createItem(c echo.Context) error {
	var req createItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	item, err := h.uc.CreateItem(c.Request().Context(), token(c), usecase.CreateItemInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, item)
}

func (h *StockHandler) listItems(c echo.Context) error {
	items, err := h.uc.ListItems(c.Request().Context(), token(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *StockHandler) getItem(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	item, err := h.uc.GetItem(c.Request().Context(), token(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

type adjustStockRequest struct {
	ItemID int64 `json:"item_id"`
	Amount int64 `json:"amount"`
}

type adjustStockResponse struct {
	Message       string `json:"message"`
	TransactionID int64  `json:"transaction_id"`
}

func (h *StockHandler) addStock(c echo.Context) error {
	var req adjustStockRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	txID, err := h.uc.AddStock(c.Request().Context(), token(c), usecase.AdjustStockInput{
		ItemID: req.ItemID,
		Amount: req.Amount,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, adjustStockResponse{
		Message:       "stock added and transaction recorded",
		TransactionID: txID,
	})
}

func (h *StockHandler) subtractStock(c echo.Context) error {
	var req adjustStockRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	txID, err := h.uc.SubtractStock(c.Request().Context(), token(c), usecase.AdjustStockInput{
		ItemID: req.ItemID,
		Amount: req.Amount,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, adjustStockResponse{
		Message:       "stock subtracted and transaction recorded",
		TransactionID: txID,
	})
}

func (h *StockHandler) listTransactions(c echo.Context) error {
	var in usecase.ListTransactionsInput

	if v := c.QueryParam("item_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid item_id"})
		}
		in.ItemID = &id
	}

	if v := c.QueryParam("type"); v != "" {
		t := model.TransactionType(v)
		if t != model.TransactionTypeInbound && t != model.TransactionTypeOutbound {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid type"})
		}
		in.Type = &t
	}

	if v := c.QueryParam("start_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid start_date"})
		}
		in.StartDate = &ts
	}

	if v := c.QueryParam("end_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid end_date"})
		}
		in.EndDate = &ts
	}

	txs, err := h.uc.ListTransactions(c.Request().Context(), token(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, txs)
}

func (h *StockHandler) getTransaction(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	tx, err := h.uc.GetTransaction(c.Request().Context(), token(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}

package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inventory/internal/authz"
	"inventory/internal/handler"
	"inventory/internal/server"
	"inventory/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

// 常に拒否するゲート。認可で止まるのでrepoまでは到達しない。
type denyGate struct{}

func (denyGate) Authorize(ctx context.Context, token string, requiredRole string) (authz.Verdict, error) {
	return authz.Verdict{Valid: false}, nil
}

func newEcho(gate usecase.AuthorizationGate) *echo.Echo {
	uc := usecase.NewStockUsecase(nil, gate, "ROLE_TECHNICIAN")
	e := echo.New()
	server.RegisterRoutes(e, handler.NewStockHandler(uc))
	return e
}

func doRequest(e *echo.Echo, method string, target string, body string, withToken bool) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if withToken {
		req.Header.Set("Authorization", "Bearer some-token")
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_MissingAuthorizationHeader(t *testing.T) {
	e := newEcho(denyGate{})

	rec := doRequest(e, http.MethodGet, "/items", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutes_NonBearerSchemeRejected(t *testing.T) {
	e := newEcho(denyGate{})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutes_DeniedVerdictIs403(t *testing.T) {
	e := newEcho(denyGate{})

	rec := doRequest(e, http.MethodGet, "/items", "", true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "access denied")
}

func TestRoutes_InvalidItemID(t *testing.T) {
	e := newEcho(denyGate{})

	rec := doRequest(e, http.MethodGet, "/items/abc", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutes_InvalidTransactionFilter(t *testing.T) {
	e := newEcho(denyGate{})

	rec := doRequest(e, http.MethodGet, "/transactions?item_id=abc", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodGet, "/transactions?type=SIDEWAYS", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodGet, "/transactions?start_date=notadate", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

func TestClient_SendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mirrortrade-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "2", r.URL.Query().Get("leg"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["pair"]})
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("mirrortrade-test"))
	var out map[string]string
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodPost,
		URL:         srv.URL,
		QueryParams: map[string][]string{"leg": {"2"}},
		Body:        map[string]string{"pair": "EUR/USD OTC"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "EUR/USD OTC", out["echo"])
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "trade open", http.StatusConflict)
	}))
	defer srv.Close()

	err := NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusConflict))
	assert.False(t, IsStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "trade open")
}

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, "fine") })
	e.GET("/panic", func(c echo.Context) error { panic("boom") })
	e.GET("/app-error", func(c echo.Context) error {
		return AppErrorResponse(c, ServiceUnavailableError("engine is not running"))
	})
}

func TestServer_Middleware(t *testing.T) {
	s := NewServer(routes{}, applogger.Nop(), WithMetricsPath("/metrics"))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "fine", resp.Data)

	assert.Equal(t, http.StatusInternalServerError, get("/panic").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/app-error").Code)

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "mirrortrade_http_requests_total"))
}

package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/alanyoungcy/tradeview/internal/server/handler"
	"github.com/alanyoungcy/tradeview/internal/session"
	"github.com/stretchr/testify/assert"
)

func newTestServer(apiKey string) (*Server, *session.Store) {
	logger := slog.New(slog.DiscardHandler)
	store := session.NewStore(domain.Session{})
	srv := NewServer(Config{Port: 0, APIKey: apiKey, CORSOrigins: []string{"http://localhost:3000"}}, Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Orderbook: &handler.OrderbookHandler{},
		Trade:     &handler.TradeHandler{},
		Analytics: &handler.AnalyticsHandler{},
		Dashboard: &handler.DashboardHandler{},
		Session:   handler.NewSessionHandler(store, logger),
	}, nil, logger)
	return srv, store
}

func TestHealthIsPublic(t *testing.T) {
	srv, _ := newTestServer("secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSessionRouteRequiresKey(t *testing.T) {
	srv, store := newTestServer("secret")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/session", strings.NewReader(`{"token":"t"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, store.Current().Authenticated())

	req := httptest.NewRequest(http.MethodPut, "/api/session", strings.NewReader(`{"token":"t"}`))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.Current().Authenticated())
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer("secret")

	req := httptest.NewRequest(http.MethodOptions, "/api/trade", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteIs404(t *testing.T) {
	srv, _ := newTestServer("")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

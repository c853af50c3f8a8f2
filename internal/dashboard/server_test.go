package dashboard

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelaney/brokerbot/internal/broker"
	"github.com/jdelaney/brokerbot/internal/portfolio"
	"github.com/jdelaney/brokerbot/internal/pricing"
	"github.com/jdelaney/brokerbot/internal/retry"
)

func newTestServer(t *testing.T, b *broker.Fake) *Server {
	t.Helper()
	stdLogger := log.New(&bytes.Buffer{}, "", 0)
	cfg := retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}
	resolver := pricing.NewResolver(b, nil, stdLogger, pricing.Options{Retry: cfg, Seed: 1})
	folio := portfolio.NewReconciler(b, resolver, stdLogger, cfg, 500)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(Config{Port: 0, Profile: "test", Model: "gpt-4o"}, folio, b, logger)
}

func TestHandlePortfolio(t *testing.T) {
	b := broker.NewFake()
	b.Account = broker.Account{Cash: 1234.56, Equity: 2000}
	b.Positions = []broker.Position{{Symbol: "AAPL", Qty: 5}}

	srv := newTestServer(t, b)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/portfolio", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var view portfolioView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 1234.56, view.Cash)
	assert.Equal(t, 5.0, view.Holdings["AAPL"])
}

func TestHandleNetWorthSurvivesBrokerOutage(t *testing.T) {
	b := broker.NewFake()
	b.AccountErr = &broker.APIError{Status: 500, Body: "boom"}

	srv := newTestServer(t, b)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/networth", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var view netWorthView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 0.0, view.NetWorth, "degraded portfolio reports zero, not an error")
}

func TestHandleStatusReportsMarketClock(t *testing.T) {
	b := broker.NewFake()
	b.Clock = broker.Clock{IsOpen: true}

	srv := newTestServer(t, b)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var view statusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.MarketKnown)
	assert.True(t, view.MarketOpen)
	assert.Equal(t, "test", view.Profile)
	assert.Equal(t, "gpt-4o", view.Model)
}

func TestAuthTokenGuardsAPIButNotHealth(t *testing.T) {
	b := broker.NewFake()
	stdLogger := log.New(&bytes.Buffer{}, "", 0)
	cfg := retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}
	resolver := pricing.NewResolver(b, nil, stdLogger, pricing.Options{Retry: cfg, Seed: 1})
	folio := portfolio.NewReconciler(b, resolver, stdLogger, cfg, 500)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := NewServer(Config{AuthToken: "secret", Profile: "test", Model: "gpt-4o"}, folio, b, logger)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Auth-Token", "secret")
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

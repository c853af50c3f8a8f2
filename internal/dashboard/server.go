// Package dashboard serves a read-only JSON view of the bot: reconciled
// portfolio, net worth, and session status. It observes, it never trades.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/jdelaney/brokerbot/internal/broker"
	"github.com/jdelaney/brokerbot/internal/portfolio"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	folio     *portfolio.Reconciler
	broker    broker.Broker
	logger    *logrus.Logger
	profile   string
	model     string
	port      int
	authToken string
	started   time.Time
}

type Config struct {
	Port      int
	AuthToken string
	Profile   string
	Model     string
}

type statusView struct {
	Profile      string    `json:"profile"`
	Model        string    `json:"model"`
	MarketOpen   bool      `json:"market_open"`
	MarketKnown  bool      `json:"market_known"`
	UptimeSecs   float64   `json:"uptime_seconds"`
	GeneratedAt  time.Time `json:"generated_at"`
}

type portfolioView struct {
	Cash     float64            `json:"cash"`
	Holdings map[string]float64 `json:"holdings"`
	Trades   int                `json:"trades"`
}

type netWorthView struct {
	NetWorth    float64   `json:"net_worth"`
	GeneratedAt time.Time `json:"generated_at"`
}

func NewServer(cfg Config, folio *portfolio.Reconciler, b broker.Broker, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		folio:     folio,
		broker:    b,
		logger:    logger,
		profile:   cfg.Profile,
		model:     cfg.Model,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
		started:   time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/portfolio", s.handlePortfolio)
	s.router.Get("/api/networth", s.handleNetWorth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infof("Starting dashboard server on port %d", s.port)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		s.logger.WithError(err).Error("Failed to write health response")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view := statusView{
		Profile:     s.profile,
		Model:       s.model,
		UptimeSecs:  time.Since(s.started).Seconds(),
		GeneratedAt: time.Now().UTC(),
	}
	if clock, err := s.broker.GetClock(r.Context()); err == nil {
		view.MarketOpen = clock.IsOpen
		view.MarketKnown = true
	} else {
		s.logger.WithError(err).Warn("Could not fetch market clock for status")
	}
	s.writeJSON(w, view)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	folio := s.folio.GetPortfolio(r.Context())
	s.writeJSON(w, portfolioView{
		Cash:     folio.Cash,
		Holdings: folio.Holdings,
		Trades:   len(folio.History),
	})
}

func (s *Server) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, netWorthView{
		NetWorth:    s.folio.NetWorth(r.Context()),
		GeneratedAt: time.Now().UTC(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

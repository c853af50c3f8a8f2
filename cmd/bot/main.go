// Command bot runs the trading agent: a language model manages a brokerage
// portfolio through a fixed tool catalog, one session at a time or
// continuously around market hours.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jdelaney/brokerbot/internal/broker"
	"github.com/jdelaney/brokerbot/internal/config"
	"github.com/jdelaney/brokerbot/internal/dashboard"
	"github.com/jdelaney/brokerbot/internal/llm"
	"github.com/jdelaney/brokerbot/internal/portfolio"
	"github.com/jdelaney/brokerbot/internal/pricing"
	"github.com/jdelaney/brokerbot/internal/report"
	"github.com/jdelaney/brokerbot/internal/retry"
	"github.com/jdelaney/brokerbot/internal/schedule"
	"github.com/jdelaney/brokerbot/internal/search"
	"github.com/jdelaney/brokerbot/internal/session"
	"github.com/jdelaney/brokerbot/internal/thread"
)

const systemPrompt = `You are an autonomous stock trading agent managing a real brokerage account.

Rules you must follow every turn:
1. Call think first to record your reasoning before taking any other action.
2. Use get_portfolio and get_stock_price to ground decisions in current data.
3. Trade only with the buy, sell, short_sell, and cover_short tools.
4. When you are finished for the session, reply with a short plain-text summary and no tool calls.`

func main() {
	var (
		configPath string
		profile    string
		envPath    string
		continuous bool
		interval   int
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&profile, "profile", "default", "Profile name (isolated thread/report/log files)")
	flag.StringVar(&envPath, "env", ".env", "Path to .env credentials file")
	flag.BoolVar(&continuous, "c", false, "Run continuously around market hours")
	flag.BoolVar(&continuous, "continuous", false, "Run continuously around market hours")
	flag.IntVar(&interval, "interval", 0, "Minutes between sessions in continuous mode (min 5, overrides config)")
	flag.Parse()

	if err := config.LoadEnv(envPath); err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if interval != 0 {
		if interval < 5 {
			log.Fatalf("--interval must be at least 5 minutes (got %d)", interval)
		}
		cfg.Schedule.IntervalMinutes = interval
	}

	prof, err := cfg.NewProfile(profile)
	if err != nil {
		log.Fatalf("Failed to set up profile: %v", err)
	}

	logger, closeLog, err := newLogger(prof.LogPath())
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer closeLog()

	logger.Printf("Starting trading bot, profile %q, model %s", prof.Name, cfg.Model.Name)
	if cfg.IsPaperTrading() {
		logger.Println("PAPER TRADING MODE - No real money at risk")
	} else {
		logger.Println("LIVE TRADING MODE - Real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	orch, folio, b := buildOrchestrator(cfg, prof, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping bot...")
		cancel()
	}()

	if err := orch.ValidateCredentials(ctx); err != nil {
		logger.Fatalf("Credential validation failed: %v", err)
	}

	if cfg.Dashboard.Enabled {
		startDashboard(ctx, cfg, prof, folio, b, logger)
	}

	reporter := report.NewWriter(prof.ReportPath(), cfg.Model.Name, logger)
	runSession := func(ctx context.Context) error {
		result, err := orch.Run(ctx)
		if err != nil {
			return err
		}
		if result.FinalText != "" {
			logger.Printf("Session summary: %s", result.FinalText)
		}
		if err := reporter.Write(orch.Portfolio(ctx), result.Stats); err != nil {
			logger.Printf("Warning: %v", err)
		}
		logger.Printf("Net worth: $%.2f", orch.NetWorth(ctx))
		return nil
	}

	if continuous {
		market := schedule.NewMarket(cfg.Schedule.Timezone, cfg.Schedule.AlwaysOpen)
		runner := schedule.NewRunner(market, cfg.Interval(), logger)
		if err := runner.Run(ctx, runSession); err != nil && ctx.Err() == nil {
			logger.Fatalf("Runner error: %v", err)
		}
	} else {
		if err := runSession(ctx); err != nil {
			logger.Fatalf("Session failed: %v", err)
		}
	}

	logger.Println("Bot stopped successfully")
}

// buildOrchestrator wires the full dependency graph for one profile.
func buildOrchestrator(cfg *config.Config, prof *config.Profile, logger *log.Logger) (*session.Orchestrator, *portfolio.Reconciler, broker.Broker) {
	b := broker.NewAlpacaBroker()
	resolver := pricing.NewResolver(b, pricing.NewYahooSource(), logger, pricing.Options{Retry: retry.DefaultConfig})
	folio := portfolio.NewReconciler(b, resolver, logger, retry.DefaultConfig, 500)
	searcher := search.NewDuckDuckGo()
	provider := llm.NewOpenAIProvider(
		os.Getenv(config.EnvOpenAIKey), cfg.Model.BaseURL, cfg.Model.Name, systemPrompt, logger)
	store := thread.NewStore(prof.ThreadPath(), logger, thread.StoreOptions{
		RequireReasoning: cfg.Session.RequireReasoning,
	})

	orch := session.NewOrchestrator(prof.Name, provider, b, resolver, folio, searcher, store,
		logger, cfg.Session.Objective, session.Options{MaxTurns: cfg.Session.MaxTurns})
	return orch, folio, b
}

func startDashboard(ctx context.Context, cfg *config.Config, prof *config.Profile,
	folio *portfolio.Reconciler, b broker.Broker, logger *log.Logger) {
	dashLogger := logrus.New()
	srv := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Dashboard.Port,
		AuthToken: cfg.Dashboard.AuthToken,
		Profile:   prof.Name,
		Model:     cfg.Model.Name,
	}, folio, b, dashLogger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Printf("Dashboard error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Dashboard shutdown error: %v", err)
		}
	}()
}

// newLogger logs to stdout and the per-profile log file.
func newLogger(logPath string) (*log.Logger, func(), error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) // #nosec G304 -- per-profile log path
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", logPath, err)
	}
	logger := log.New(io.MultiWriter(os.Stdout, f), "[BOT] ", log.LstdFlags)
	return logger, func() { _ = f.Close() }, nil
}

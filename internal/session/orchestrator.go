// Package session drives one trading session end to end: validate
// credentials, load the thread, converse with the model, dispatch tool
// calls, persist the thread, and expose the values reporting consumes.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jdelaney/brokerbot/internal/broker"
	"github.com/jdelaney/brokerbot/internal/llm"
	"github.com/jdelaney/brokerbot/internal/models"
	"github.com/jdelaney/brokerbot/internal/portfolio"
	"github.com/jdelaney/brokerbot/internal/pricing"
	"github.com/jdelaney/brokerbot/internal/retry"
	"github.com/jdelaney/brokerbot/internal/search"
	"github.com/jdelaney/brokerbot/internal/thread"
	"github.com/jdelaney/brokerbot/internal/tools"
)

// defaultMaxTurns bounds the converse/dispatch loop so a session always
// terminates even if the model never stops calling tools.
const defaultMaxTurns = 100

// Result is what one session produced. It is ephemeral: nothing beyond the
// thread it carries is persisted.
type Result struct {
	FinalText string
	Thread    []thread.Item
	Stats     tools.Snapshot
}

// Orchestrator runs sessions for one profile. It holds only long-lived
// dependencies; per-session state (dispatcher, stats, price cache) is
// created fresh inside Run.
type Orchestrator struct {
	profile   string
	provider  llm.Provider
	broker    broker.Broker
	prices    *pricing.Resolver
	folio     *portfolio.Reconciler
	searcher  search.Searcher
	store     *thread.Store
	logger    *log.Logger
	retryCfg  retry.Config
	objective string
	maxTurns  int
	now       func() time.Time
}

// Options tune an Orchestrator. The zero value is usable.
type Options struct {
	MaxTurns int
	Retry    retry.Config
	Now      func() time.Time
}

// NewOrchestrator wires a session orchestrator for one profile.
func NewOrchestrator(profile string, provider llm.Provider, b broker.Broker,
	prices *pricing.Resolver, folio *portfolio.Reconciler, searcher search.Searcher,
	store *thread.Store, logger *log.Logger, objective string, opts Options) *Orchestrator {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = defaultMaxTurns
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		profile:   profile,
		provider:  provider,
		broker:    b,
		prices:    prices,
		folio:     folio,
		searcher:  searcher,
		store:     store,
		logger:    logger,
		retryCfg:  opts.Retry,
		objective: objective,
		maxTurns:  opts.MaxTurns,
		now:       opts.Now,
	}
}

// ValidateCredentials performs lightweight calls against each configured
// provider so a misconfiguration fails fast with an actionable message
// before any trading logic runs.
func (o *Orchestrator) ValidateCredentials(ctx context.Context) error {
	if err := o.provider.Validate(ctx); err != nil {
		return fmt.Errorf("model provider %s: %w", o.provider.Name(), err)
	}
	account, err := o.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("brokerage: %w", err)
	}
	o.logger.Printf("Credentials OK: account status %s, equity $%.2f", account.Status, account.Equity)
	return nil
}

// Run executes one session. Remote-call failures inside the loop surface as
// an error; the caller (scheduler) retries at whole-session granularity.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	items, err := o.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading thread for profile %s: %w", o.profile, err)
	}

	dispatcher := tools.NewDispatcher(o.broker, o.prices, o.folio, o.searcher, o.logger, o.retryCfg)
	catalog := tools.Catalog()

	items = append(items, thread.Message(thread.RoleUser, o.sessionPrompt()))
	o.logger.Printf("Session started for profile %s (%d thread items)", o.profile, len(items))

	finalText := ""
	for turn := 0; turn < o.maxTurns; turn++ {
		reply, err := retry.Do(ctx, o.logger, "model completion", o.retryCfg,
			func(ctx context.Context) (*llm.Reply, error) {
				return o.provider.Complete(ctx, items, catalog)
			})
		if err != nil {
			// Persist what we have so the next session can resume.
			if saveErr := o.store.Save(items); saveErr != nil {
				o.logger.Printf("Warning: could not persist thread after failure: %v", saveErr)
			}
			return nil, fmt.Errorf("conversing on turn %d: %w", turn+1, err)
		}

		if reply.Text != "" {
			items = append(items, thread.Message(thread.RoleAssistant, reply.Text))
			finalText = reply.Text
		}

		calls := reply.Calls()
		if len(calls) == 0 {
			if reply.Text == "" {
				o.logger.Printf("Turn %d produced no text and no tool calls, ending session", turn+1)
			}
			break
		}

		for _, call := range calls {
			items = append(items, o.dispatchCall(ctx, dispatcher, call)...)
		}
	}

	if err := o.store.Save(items); err != nil {
		return nil, fmt.Errorf("persisting thread for profile %s: %w", o.profile, err)
	}

	stats := dispatcher.Stats()
	o.logger.Printf("Session complete for profile %s: %s", o.profile, stats.Summary())
	return &Result{FinalText: finalText, Thread: items, Stats: stats}, nil
}

// dispatchCall executes one tool call and returns the call/result item pair.
// Calls synthesized from free text carry a generated correlation id so the
// pairing invariant holds for every provider.
func (o *Orchestrator) dispatchCall(ctx context.Context, dispatcher *tools.Dispatcher, call models.ToolCall) []thread.Item {
	if call.ID == "" {
		call.ID = "call_" + uuid.NewString()
	}
	output := dispatcher.Dispatch(ctx, call)
	return []thread.Item{
		thread.FunctionCall(call.ID, call.Name, call.ArgsJSON()),
		thread.FunctionResult(call.ID, output),
	}
}

// Portfolio exposes the reconciled portfolio for reporting consumers.
func (o *Orchestrator) Portfolio(ctx context.Context) *models.Portfolio {
	return o.folio.GetPortfolio(ctx)
}

// NetWorth exposes the current net worth for reporting consumers.
func (o *Orchestrator) NetWorth(ctx context.Context) float64 {
	return o.folio.NetWorth(ctx)
}

// ModelName reports which model drives this profile, for the CSV report.
func (o *Orchestrator) ModelName() string {
	return o.provider.Name()
}

func (o *Orchestrator) sessionPrompt() string {
	return fmt.Sprintf("It is %s. %s",
		o.now().Format("Monday, January 2, 2006 at 15:04 MST"), o.objective)
}

// Package bot runs the repeating decision cycle: refresh balances, refresh
// prices, check mode, rebalance if needed, detect and execute the best
// opportunity, sleep. Failures in one step are logged and the loop proceeds.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"arbot/internal/config"
	"arbot/internal/database"
	"arbot/internal/detector"
	"arbot/internal/executor"
	"arbot/internal/feed"
	"arbot/internal/fees"
	"arbot/internal/ledger"
	"arbot/internal/mode"
	"arbot/internal/model"
	"arbot/internal/rebalance"
	"arbot/internal/venue"
)

// Bot owns the control loop and the per-cycle state.
type Bot struct {
	logger   *slog.Logger
	cfg      config.Config
	venues   map[string]venue.Client
	repo     database.Repository
	feeModel *fees.Model
	planner  *rebalance.Planner
	runner   *rebalance.Runner
	placer   *executor.Placer
	det      *detector.Detector
	modeCtl  *mode.Controller
	status   *Status

	// Swapped by the mode controller; everything else stays put.
	feed feed.Feed
	exec executor.Executor
}

// New wires the bot from connected venue clients and shared components.
func New(logger *slog.Logger, cfg config.Config, venues map[string]venue.Client, repo database.Repository, feeModel *fees.Model) *Bot {
	placer := executor.NewPlacer(logger, venues, cfg.Venues)
	b := &Bot{
		logger:   logger.With(slog.String("component", "bot")),
		cfg:      cfg,
		venues:   venues,
		repo:     repo,
		feeModel: feeModel,
		planner:  rebalance.NewPlanner(logger, cfg.Rebalance),
		runner:   rebalance.NewRunner(logger, placer, cfg.Rebalance, cfg.Arbitrage.MinOrderValueUSD),
		placer:   placer,
		det:      detector.New(logger, feeModel, cfg.Arbitrage, placer.MinAmount),
		status:   NewStatus(),
	}

	sources := make([]mode.TimeSource, 0, len(venues))
	for _, v := range venues {
		sources = append(sources, v)
	}
	b.modeCtl = mode.NewController(logger, sources, cfg.Mode)
	return b
}

// Status returns the polled read-only view of the bot.
func (b *Bot) Status() *Status {
	return b.status
}

// Run executes the control loop until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	initial := b.modeCtl.Init(ctx)
	b.applyMode(initial)
	if err := b.feed.Start(ctx); err != nil {
		return err
	}
	defer b.feed.Stop()

	b.logger.Info("starting main arbitrage loop",
		"mode", initial,
		"latencyMS", b.modeCtl.LatencyMS(),
		"pairs", b.cfg.Arbitrage.TradingPairs,
	)

	cycle := 0
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("shutdown signal received")
			return nil
		default:
		}

		cycle++
		b.status.setCycle(cycle, b.modeCtl.Current(), b.modeCtl.LatencyMS())
		b.logger.Info("cycle start", "cycle", cycle, "mode", b.modeCtl.Current())

		b.runCycle(ctx, cycle)

		if err := b.sleep(ctx); err != nil {
			return nil
		}
	}
}

// runCycle walks the cycle state machine once. Every step tolerates failure:
// missing data skips the step, the cycle always completes.
func (b *Bot) runCycle(ctx context.Context, cycle int) {
	// REFRESH_BALANCES: a fresh snapshot and an empty committed-funds
	// overlay. Nothing mutable survives from the previous cycle.
	led := b.refreshBalances(ctx)

	// REFRESH_PRICES
	book, err := b.feed.GetPrices(ctx, b.cfg.Arbitrage.TradingPairs)
	if err != nil {
		b.logger.Error("price refresh failed", "error", err)
		return
	}
	b.logReferencePrice(book)

	// CHECK_MODE: a switch swaps the feed and executor, nothing else.
	if m, changed := b.modeCtl.Check(ctx); changed {
		b.feed.Stop()
		b.applyMode(m)
		if err := b.feed.Start(ctx); err != nil {
			b.logger.Error("feed restart failed after mode switch", "error", err)
		}
	}

	// REBALANCE_IF_NEEDED
	if led != nil && len(book) > 0 {
		b.maybeRebalance(ctx, led, book)
	}

	// DETECT_OPPORTUNITIES
	opps := b.det.Detect(book, time.Now())
	b.status.setOpportunities(opps)
	if len(opps) == 0 {
		b.logger.Info("no arbitrage opportunities found", "cycle", cycle)
		return
	}

	// EXECUTE_BEST: at most one execution per cycle bounds exposure.
	best, _ := detector.Best(opps)
	b.executeOpportunity(ctx, best)
}

// refreshBalances snapshots every venue concurrently. A venue that fails or
// times out is simply absent from this cycle's ledger.
func (b *Bot) refreshBalances(ctx context.Context) *ledger.Ledger {
	timeout := time.Duration(b.cfg.Mode.RequestTimeoutSec * float64(time.Second))

	var mu sync.Mutex
	var accounts []model.VenueAccount
	g := new(errgroup.Group)
	for _, v := range b.venues {
		v := v
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			acct, err := v.FetchBalances(callCtx)
			if err != nil {
				b.logger.Error("balance fetch failed", "venue", v.Name(), "error", err)
				return nil
			}
			mu.Lock()
			accounts = append(accounts, acct)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(accounts) == 0 {
		b.logger.Warn("no balances available this cycle")
		return nil
	}
	return ledger.NewCycle(accounts)
}

// maybeRebalance checks policy and, when triggered, executes the plan and
// persists the audit record and fee state.
func (b *Bot) maybeRebalance(ctx context.Context, led *ledger.Ledger, book model.PriceBook) {
	if !b.planner.ShouldRebalance(led, book) {
		return
	}
	b.logger.Info("rebalance required")

	plan := b.planner.Plan(led.Accounts(), book)
	b.status.setPlan(plan)
	if plan.Empty() {
		return
	}

	record, ok := b.runner.Execute(ctx, led, book)
	if !ok {
		b.logger.Warn("rebalancing failed, continuing with available funds")
		return
	}
	if err := b.repo.LogRebalance(ctx, record); err != nil {
		b.logger.Error("failed to log rebalance record", "error", err)
	}
	b.saveFeeState()
}

// executeOpportunity runs the active strategy on the best candidate and
// records the outcome.
func (b *Bot) executeOpportunity(ctx context.Context, opp model.Opportunity) {
	success, err := b.exec.ExecuteArbitrage(ctx, opp)
	if err != nil {
		b.logger.Error("arbitrage execution aborted", "error", err)
		return
	}

	trade := model.ExecutedTrade{
		Timestamp: time.Now(),
		Pair:      opp.Pair,
		BuyVenue:  opp.BuyVenue,
		SellVenue: opp.SellVenue,
		BuyPrice:  opp.BuyPrice,
		SellPrice: opp.SellPrice,
		Amount:    opp.Amount,
		Success:   success,
	}
	if success {
		trade.EstProfitUSD = (opp.SellPrice - opp.BuyPrice) * opp.Amount
		trade.VaultAccrual = trade.EstProfitUSD * b.cfg.Arbitrage.GoldVaultPct
		b.logger.Info("arbitrage executed",
			"estProfitUSD", trade.EstProfitUSD,
			"vaultAccrualUSD", trade.VaultAccrual,
		)
		b.saveFeeState()
	} else {
		trade.FailureReason = "execution failed"
	}

	if err := b.repo.LogTrade(ctx, trade); err != nil {
		b.logger.Error("failed to log trade", "error", err)
	}
	b.status.addTrade(trade)
}

// applyMode builds the feed/executor pairing for a mode.
func (b *Bot) applyMode(m mode.Mode) {
	clients := make([]venue.Client, 0, len(b.venues))
	for _, v := range b.venues {
		clients = append(clients, v)
	}
	timeout := time.Duration(b.cfg.Mode.RequestTimeoutSec * float64(time.Second))

	if m == mode.HighLatency {
		b.feed = feed.NewRESTPollingFeed(b.logger, clients, timeout)
		b.exec = executor.NewHighLatency(b.logger, b.placer, b.feeModel,
			b.cfg.Arbitrage.ChaserAttempts, b.cfg.Arbitrage.PriceAdjustPct)
	} else {
		b.feed = feed.NewWebSocketFeed(b.logger, clients, b.cfg.Arbitrage.TradingPairs)
		b.exec = executor.NewLowLatency(b.logger, b.placer, b.feeModel)
	}
	b.logger.Info("strategies configured", "mode", m, "executor", b.exec.Name())
}

// logReferencePrice logs one observed traded-asset price per cycle, so the
// decision log can be reconstructed without the raw book.
func (b *Bot) logReferencePrice(book model.PriceBook) {
	for _, pair := range b.cfg.Arbitrage.TradingPairs {
		for _, q := range book[pair] {
			if q.Bid > 0 {
				b.logger.Info("reference price", "pair", pair, "venue", q.Venue, "bid", q.Bid)
				return
			}
		}
	}
}

func (b *Bot) saveFeeState() {
	if err := b.feeModel.Save(b.cfg.Fees.StatePath); err != nil {
		b.logger.Error("failed to save fee state", "error", err)
	}
}

// sleep pauses for the mode-appropriate interval, waking early on shutdown.
func (b *Bot) sleep(ctx context.Context) error {
	seconds := b.cfg.Mode.HighLatencySleepSec
	if b.modeCtl.Current() == mode.LowLatency {
		seconds = b.cfg.Mode.LowLatencySleepSec
	}
	t := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package solspot wires the exchange, strategy, position machine and
// notifier into a polling trade engine for a single spot pair.
package solspot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raykavin/solspot/config"
	"github.com/raykavin/solspot/core"
	"github.com/raykavin/solspot/logger/zerolog"
	"github.com/raykavin/solspot/notification"
	"github.com/raykavin/solspot/order"
	"github.com/raykavin/solspot/position"
	"github.com/raykavin/solspot/storage"
	"github.com/raykavin/solspot/strategy"
)

// candleWindow is the closed-candle history requested per tick, enough for
// the widest entry rule plus slack
const candleWindow = 6

type Bot struct {
	cfg      *config.AppConfig
	exchange core.Exchange
	log      core.Logger

	positionStore core.PositionStore
	orderStorage  core.OrderStorage

	orderController *order.Controller
	machine         *position.Machine
	evaluator       *strategy.Evaluator
	notifier        core.Notifier
	telegram        core.NotifierWithStart

	// open time of the last closed candle already evaluated, entry rules
	// run at most once per candle
	lastCandleOpen time.Time

	// watchdog bookkeeping
	lastTickOK  time.Time
	watchdogHit bool
}

// NewBot creates the trade engine with the provided configuration and
// exchange adapter
func NewBot(ctx context.Context, cfg *config.AppConfig, exch core.Exchange, options ...Option) (*Bot, error) {
	bot := &Bot{
		cfg:       cfg,
		exchange:  exch,
		evaluator: strategy.NewEvaluator(cfg.Trading.Strategy),
	}

	for _, option := range options {
		option(bot)
	}

	if err := initializeLogger(bot); err != nil {
		return nil, err
	}
	if err := initializeStorage(bot); err != nil {
		return nil, err
	}

	bot.orderController = order.NewController(exch, bot.orderStorage, bot.log)

	machine, err := position.NewMachine(ctx, cfg.Trading.Pair, bot.orderController, bot.positionStore, bot.log)
	if err != nil {
		return nil, err
	}
	bot.machine = machine

	if err := initializeNotifications(bot); err != nil {
		return nil, err
	}

	return bot, nil
}

// initializeLogger sets up the logging system per the config
func initializeLogger(bot *Bot) error {
	if bot.log != nil {
		return nil
	}

	logCfg := bot.cfg.Log
	log, err := zerolog.New(logCfg.Level, logCfg.TimeFormat, logCfg.Colored, logCfg.JSONFormat)
	if err != nil {
		return err
	}
	bot.log = log
	return nil
}

// initializeStorage sets up the position snapshot and order history stores
func initializeStorage(bot *Bot) error {
	if bot.positionStore != nil && bot.orderStorage != nil {
		return nil
	}

	store, err := storage.NewBuntStorage(bot.cfg.StatePath, bot.log)
	if err != nil {
		return err
	}
	if bot.positionStore == nil {
		bot.positionStore = store
	}
	if bot.orderStorage != nil {
		return nil
	}

	if bot.cfg.OrderDBPath != "" {
		sqlStore, err := storage.NewFromSQLite(bot.cfg.OrderDBPath, storage.DefaultSQLConfig())
		if err != nil {
			return err
		}
		bot.orderStorage = sqlStore
		return nil
	}
	bot.orderStorage = store
	return nil
}

// initializeNotifications sets up the Telegram notifier when enabled
func initializeNotifications(bot *Bot) error {
	if bot.notifier != nil {
		bot.orderController.SetNotifier(bot.notifier)
		return nil
	}
	if !bot.cfg.Telegram.Enabled {
		return nil
	}

	settings := notification.Settings{
		Token: bot.cfg.Telegram.Token,
		Users: []int64{bot.cfg.Telegram.ChatID},
	}

	telegram, err := notification.NewTelegram(bot.orderController, settings, bot.cfg.Trading.Pair,
		bot.log, notification.WithStatusProvider(bot.Status))
	if err != nil {
		return err
	}

	bot.telegram = telegram
	bot.notifier = telegram
	bot.orderController.SetNotifier(telegram)
	return nil
}

// Controller exposes the order controller, mainly for notifier wiring
func (b *Bot) Controller() *order.Controller {
	return b.orderController
}

// Status describes the current position for logs and the /status command
func (b *Bot) Status() string {
	state := b.machine.State()
	if !state.Holding || state.BuyPrice == nil {
		return "FLAT"
	}
	return fmt.Sprintf("LONG %s @ %s (peak %s)", b.machine.Pair(), state.BuyPrice, state.PeakPrice)
}

// Run executes the startup liquidation and then polls the market at a fixed
// cadence until the context is canceled
func (b *Bot) Run(ctx context.Context) error {
	trading := b.cfg.Trading

	b.log.WithFields(map[string]any{
		"pair":      trading.Pair,
		"timeframe": trading.Timeframe,
		"interval":  trading.PollInterval.String(),
	}).Info("engine starting")

	if b.telegram != nil {
		b.telegram.Start()
	}
	b.notify(fmt.Sprintf("Engine started: %s %s, polling every %s",
		trading.Pair, trading.Timeframe, trading.PollInterval))

	if err := b.machine.StartupLiquidation(ctx); err != nil {
		// Stale holdings stay on the book until the next restart retries.
		// The poll loop still runs, the flag was not set so nothing is lost.
		b.log.WithError(err).Error("startup liquidation failed")
		b.notifyError(err)
	}

	b.lastTickOK = time.Now()

	ticker := time.NewTicker(trading.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("engine stopped")
			b.notify("Engine stopped.")
			return ctx.Err()
		case <-ticker.C:
			if err := b.tick(ctx); err != nil {
				b.log.WithError(err).Error("tick failed")
			} else {
				b.lastTickOK = time.Now()
				b.watchdogHit = false
			}
			b.checkWatchdog(time.Now())
		}
	}
}

// tick runs one observe-decide-act cycle. Adapter failures abort the cycle
// with an error and the next tick retries from scratch.
func (b *Bot) tick(ctx context.Context) error {
	state := b.machine.State()

	if state.Holding {
		return b.tickHolding(ctx)
	}
	return b.tickFlat(ctx)
}

// tickFlat fetches closed candles and enters on a buy signal. The entry
// rules run once per closed candle, a tick that sees no new candle holds.
func (b *Bot) tickFlat(ctx context.Context) error {
	trading := b.cfg.Trading

	candles, err := b.exchange.CandlesByLimit(ctx, trading.Pair, trading.Timeframe, candleWindow)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) == 0 {
		return nil
	}

	latest := candles[len(candles)-1]
	if !latest.Time.After(b.lastCandleOpen) {
		return nil
	}

	r1, r2 := strategy.CandleChanges(candles)

	if !b.evaluator.ShouldEnter(candles) {
		b.lastCandleOpen = latest.Time
		b.log.WithFields(map[string]any{
			"r1": r1.StringFixed(3),
			"r2": r2.StringFixed(3),
		}).Debug("no entry")
		return nil
	}

	b.log.WithFields(map[string]any{
		"r1": r1.StringFixed(3),
		"r2": r2.StringFixed(3),
	}).Info("entry signal")

	if err := b.machine.OpenPosition(ctx); err != nil {
		var oe *core.OrderError
		if errors.As(err, &oe) && oe.Rejected() {
			// Nothing changed on the book. The candle is not marked
			// consumed, the same decision retries while conditions hold.
			b.log.WithError(err).Warn("buy rejected")
			b.notifyError(err)
			return nil
		}
		return err
	}
	b.lastCandleOpen = latest.Time

	state := b.machine.State()
	if state.Holding && state.BuyPrice != nil {
		b.notify(fmt.Sprintf("🟢 Bought %s at %s", b.machine.Pair(), state.BuyPrice))
	}
	return nil
}

// tickHolding lifts the peak with the latest quote and exits when a stop
// rule fires
func (b *Bot) tickHolding(ctx context.Context) error {
	pair := b.machine.Pair()

	price, err := b.exchange.LastQuote(ctx, pair)
	if err != nil {
		return fmt.Errorf("fetch quote: %w", err)
	}

	// Peak first, the trailing rule measures retracement from the updated peak
	if _, err := b.machine.UpdatePeak(ctx, price); err != nil {
		return err
	}

	state := b.machine.State()
	exit, reason := b.evaluator.ShouldExit(price, state)

	b.log.WithFields(map[string]any{
		"price":  price,
		"profit": state.ProfitPct(price).StringFixed(3),
		"peak":   state.PeakProfitPct().StringFixed(3),
	}).Debug("position check")

	if !exit {
		return nil
	}

	profit := state.ProfitPct(price)
	b.log.WithFields(map[string]any{
		"reason": string(reason),
		"profit": profit.StringFixed(3),
	}).Info("exit signal")

	if err := b.machine.ClosePosition(ctx, string(reason)); err != nil {
		var oe *core.OrderError
		if errors.As(err, &oe) && oe.Rejected() {
			b.log.WithError(err).Warn("sell rejected")
			b.notifyError(err)
			return nil
		}
		return err
	}

	b.notify(fmt.Sprintf("🔴 Sold %s (%s, %s%%)", pair, reason, profit.StringFixed(2)))
	return nil
}

// checkWatchdog alerts once when no tick has succeeded within the timeout
func (b *Bot) checkWatchdog(now time.Time) {
	timeout := b.cfg.Trading.Watchdog
	if timeout <= 0 || b.watchdogHit {
		return
	}
	if now.Sub(b.lastTickOK) < timeout {
		return
	}

	b.watchdogHit = true
	b.log.Errorf("no successful tick for %s", timeout)
	b.notify(fmt.Sprintf("⚠️ Watchdog: no successful cycle for %s", timeout))
}

func (b *Bot) notify(message string) {
	if b.notifier != nil {
		b.notifier.Notify(message)
	}
}

func (b *Bot) notifyError(err error) {
	if b.notifier != nil {
		b.notifier.OnError(err)
	}
}

// Package order wraps the exchange broker with order bookkeeping: every
// executed order is persisted and completed round trips feed a per-pair
// trade summary.
package order

import (
	"context"
	"fmt"
	"sync"

	"github.com/raykavin/solspot/core"

	"github.com/shopspring/decimal"
)

// Controller manages order execution and trade accounting
type Controller struct {
	exchange core.Exchange
	storage  core.OrderStorage
	log      core.Logger

	mu       sync.Mutex
	notifier core.Notifier
	results  map[string]*TradeSummary
}

// NewController creates a new order controller
func NewController(exchange core.Exchange, storage core.OrderStorage, log core.Logger) *Controller {
	return &Controller{
		exchange: exchange,
		storage:  storage,
		log:      log,
		results:  make(map[string]*TradeSummary),
	}
}

// SetNotifier configures a notifier for order and trade events
func (c *Controller) SetNotifier(notifier core.Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = notifier
}

// Position returns the current free base and quote balances for a pair
func (c *Controller) Position(ctx context.Context, pair string) (asset, quote decimal.Decimal, err error) {
	return c.exchange.Position(ctx, pair)
}

// LastQuote returns the latest traded price for a pair
func (c *Controller) LastQuote(ctx context.Context, pair string) (decimal.Decimal, error) {
	return c.exchange.LastQuote(ctx, pair)
}

// Account returns the full exchange account snapshot
func (c *Controller) Account(ctx context.Context) (core.Account, error) {
	return c.exchange.Account(ctx)
}

// MarketBuyQuote spends the given quote amount on a market buy and returns
// the executed order with its realized fill price
func (c *Controller) MarketBuyQuote(ctx context.Context, pair string, quote decimal.Decimal) (core.Order, error) {
	order, err := c.exchange.CreateOrderMarketQuote(ctx, core.SideTypeBuy, pair, quote)
	if err != nil {
		return core.Order{}, err
	}

	c.record(ctx, order)
	c.log.WithFields(map[string]any{
		"pair":  pair,
		"price": order.Price,
		"qty":   order.Quantity,
	}).Info("market buy executed")

	return order, nil
}

// MarketSell sells the given base quantity at market and returns the executed
// order with its realized fill price
func (c *Controller) MarketSell(ctx context.Context, pair string, quantity decimal.Decimal) (core.Order, error) {
	order, err := c.exchange.CreateOrderMarket(ctx, core.SideTypeSell, pair, quantity)
	if err != nil {
		return core.Order{}, err
	}

	c.record(ctx, order)
	c.log.WithFields(map[string]any{
		"pair":  pair,
		"price": order.Price,
		"qty":   order.Quantity,
	}).Info("market sell executed")

	return order, nil
}

// record persists the order and fans it out to the notifier. Storage failures
// are logged, not propagated: the order already executed on the exchange and
// the position state must still advance.
func (c *Controller) record(ctx context.Context, order core.Order) {
	if err := c.storage.CreateOrder(ctx, &order); err != nil {
		c.log.WithError(err).Error("failed to persist order")
	}

	c.mu.Lock()
	notifier := c.notifier
	c.mu.Unlock()

	if notifier != nil {
		notifier.OnOrder(order)
	}
}

// RecordTrade closes out a round trip in the pair's trade summary and
// notifies the realized result
func (c *Controller) RecordTrade(pair string, entry, exit, quantity decimal.Decimal, reason string) {
	c.mu.Lock()
	summary, ok := c.results[pair]
	if !ok {
		summary = NewTradeSummary(pair)
		c.results[pair] = summary
	}
	profitPct := summary.AddTrade(entry, exit, quantity)
	notifier := c.notifier
	c.mu.Unlock()

	c.log.WithFields(map[string]any{
		"pair":   pair,
		"entry":  entry,
		"exit":   exit,
		"pnl":    profitPct.StringFixed(2) + "%",
		"reason": reason,
	}).Info("trade closed")

	if notifier != nil {
		notifier.Notify(fmt.Sprintf(
			"Trade closed %s\nEntry = %s\nExit = %s\nQty = %s\nPnL = %s%%\nReason = %s\n\n%s",
			pair, entry, exit, quantity, profitPct.StringFixed(2), reason, summary,
		))
	}
}

// Summary returns the accumulated trade summary for a pair, or nil when the
// pair has no closed trades yet
func (c *Controller) Summary(pair string) *TradeSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[pair]
}

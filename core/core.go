package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// Exchange combines market data access and order execution
type Exchange interface {
	Broker
	Feeder
}

// Feeder provides market data for a trading pair
type Feeder interface {
	// LastQuote returns the latest traded price for the pair
	LastQuote(ctx context.Context, pair string) (decimal.Decimal, error)

	// CandlesByLimit returns the last `limit` closed candles in chronological
	// order, most recent last. The still-forming candle is never included.
	CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]Candle, error)
}

// Broker executes orders and reports balances
type Broker interface {
	Account(ctx context.Context) (Account, error)
	Position(ctx context.Context, pair string) (asset, quote decimal.Decimal, err error)
	CreateOrderMarket(ctx context.Context, side SideType, pair string, quantity decimal.Decimal) (Order, error)
	CreateOrderMarketQuote(ctx context.Context, side SideType, pair string, quote decimal.Decimal) (Order, error)
}

// Notifier receives user-facing events from the bot
type Notifier interface {
	Notify(string)
	OnOrder(order Order)
	OnError(err error)
}

// NotifierWithStart is a notifier with its own polling lifecycle (e.g. Telegram)
type NotifierWithStart interface {
	Notifier
	Start()
}

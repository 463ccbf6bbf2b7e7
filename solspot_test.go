package solspot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/raykavin/solspot/config"
	"github.com/raykavin/solspot/core"
	zlog "github.com/raykavin/solspot/logger/zerolog"
	"github.com/raykavin/solspot/storage"
	"github.com/raykavin/solspot/strategy"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeExchange struct {
	asset decimal.Decimal
	quote decimal.Decimal

	lastQuote  decimal.Decimal
	candles    []core.Candle
	candlesErr error

	buyErr error

	buys  []core.Order
	sells []core.Order
}

func (f *fakeExchange) LastQuote(_ context.Context, _ string) (decimal.Decimal, error) {
	return f.lastQuote, nil
}

func (f *fakeExchange) CandlesByLimit(_ context.Context, _, _ string, _ int) ([]core.Candle, error) {
	if f.candlesErr != nil {
		return nil, f.candlesErr
	}
	return f.candles, nil
}

func (f *fakeExchange) Account(_ context.Context) (core.Account, error) {
	return core.Account{Balances: []core.Balance{
		{Asset: "SOL", Free: f.asset},
		{Asset: "USDC", Free: f.quote},
	}}, nil
}

func (f *fakeExchange) Position(_ context.Context, _ string) (decimal.Decimal, decimal.Decimal, error) {
	return f.asset, f.quote, nil
}

func (f *fakeExchange) CreateOrderMarket(_ context.Context, _ core.SideType, pair string,
	quantity decimal.Decimal) (core.Order, error) {

	f.asset = f.asset.Sub(quantity)
	f.quote = f.quote.Add(quantity.Mul(f.lastQuote))
	ord := core.Order{
		Pair: pair, Side: core.SideTypeSell, Type: core.OrderTypeMarket,
		Status: core.OrderStatusTypeFilled, Price: f.lastQuote, Quantity: quantity,
	}
	f.sells = append(f.sells, ord)
	return ord, nil
}

func (f *fakeExchange) CreateOrderMarketQuote(_ context.Context, _ core.SideType, pair string,
	quote decimal.Decimal) (core.Order, error) {

	if f.buyErr != nil {
		return core.Order{}, f.buyErr
	}

	qty := quote.Div(f.lastQuote)
	f.asset = f.asset.Add(qty)
	f.quote = f.quote.Sub(quote)
	ord := core.Order{
		Pair: pair, Side: core.SideTypeBuy, Type: core.OrderTypeMarket,
		Status: core.OrderStatusTypeFilled, Price: f.lastQuote, Quantity: qty,
	}
	f.buys = append(f.buys, ord)
	return ord, nil
}

type fakeNotifier struct {
	messages []string
	orders   []core.Order
	errs     []error
}

func (f *fakeNotifier) Notify(text string)       { f.messages = append(f.messages, text) }
func (f *fakeNotifier) OnOrder(order core.Order) { f.orders = append(f.orders, order) }
func (f *fakeNotifier) OnError(err error)        { f.errs = append(f.errs, err) }

func (f *fakeNotifier) contains(substr string) bool {
	for _, message := range f.messages {
		if strings.Contains(message, substr) {
			return true
		}
	}
	return false
}

// candleAt builds a closed candle with the given open time and percentage move
func candleAt(open time.Time, pct string) core.Candle {
	openPrice := d("100")
	closePrice := openPrice.Add(openPrice.Mul(d(pct)).Div(d("100")))
	return core.Candle{
		Pair: "SOLUSDC", Time: open, Open: openPrice, Close: closePrice,
		High: decimal.Max(openPrice, closePrice), Low: decimal.Min(openPrice, closePrice),
		Complete: true,
	}
}

// signalCandles is a two-candle sequence that satisfies the entry rules
func signalCandles(latestOpen time.Time) []core.Candle {
	return []core.Candle{
		candleAt(latestOpen.Add(-6*time.Minute), "0.05"),
		candleAt(latestOpen.Add(-3*time.Minute), "0.35"),
		candleAt(latestOpen, "0.4"),
	}
}

// quietCandles never triggers an entry
func quietCandles(latestOpen time.Time) []core.Candle {
	return []core.Candle{
		candleAt(latestOpen.Add(-3*time.Minute), "0.05"),
		candleAt(latestOpen, "-0.1"),
	}
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Trading: config.TradingConfig{
			Pair:         "SOLUSDC",
			Timeframe:    "3m",
			PollInterval: 7 * time.Second,
			Watchdog:     15 * time.Minute,
			Strategy:     strategy.DefaultParams(),
		},
	}
}

func newTestBot(t *testing.T, exchange *fakeExchange, notifier *fakeNotifier) *Bot {
	t.Helper()

	nop := zerolog.Nop()
	log := zlog.NewAdapter(&nop)

	store, err := storage.NewFromMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bot, err := NewBot(context.Background(), testConfig(), exchange,
		WithLogger(log),
		WithNotifier(notifier),
		WithPositionStore(store),
		WithOrderStorage(store),
	)
	require.NoError(t, err)
	return bot
}

func TestTickFlatEntersOnSignal(t *testing.T) {
	open := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exchange := &fakeExchange{
		quote:     d("1000"),
		lastQuote: d("100.4"),
		candles:   signalCandles(open),
	}
	notifier := &fakeNotifier{}
	bot := newTestBot(t, exchange, notifier)

	require.NoError(t, bot.tick(context.Background()))

	require.Len(t, exchange.buys, 1)
	assert.True(t, bot.machine.State().Holding)
	assert.True(t, notifier.contains("Bought"))
}

func TestTickFlatHoldsWithoutSignal(t *testing.T) {
	open := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exchange := &fakeExchange{
		quote:     d("1000"),
		lastQuote: d("100"),
		candles:   quietCandles(open),
	}
	bot := newTestBot(t, exchange, &fakeNotifier{})

	require.NoError(t, bot.tick(context.Background()))
	assert.Empty(t, exchange.buys)
	assert.False(t, bot.machine.State().Holding)
}

func TestTickFlatEvaluatesEachCandleOnce(t *testing.T) {
	open := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exchange := &fakeExchange{
		quote:     d("1000"),
		lastQuote: d("100"),
		candles:   quietCandles(open),
	}
	bot := newTestBot(t, exchange, &fakeNotifier{})

	require.NoError(t, bot.tick(context.Background()))

	// The same candle now shows a signal shape mid-interval; it was already
	// evaluated so the engine must not trade on it
	exchange.candles = signalCandles(open)
	require.NoError(t, bot.tick(context.Background()))
	assert.Empty(t, exchange.buys)

	// Next candle opens and the signal stands
	exchange.candles = signalCandles(open.Add(3 * time.Minute))
	require.NoError(t, bot.tick(context.Background()))
	assert.Len(t, exchange.buys, 1)
}

func TestTickFlatAdapterErrorSkipsCycle(t *testing.T) {
	exchange := &fakeExchange{
		quote:      d("1000"),
		candlesErr: &core.AdapterError{Op: "klines", Err: errors.New("timeout")},
	}
	bot := newTestBot(t, exchange, &fakeNotifier{})

	err := bot.tick(context.Background())
	require.Error(t, err)

	var ae *core.AdapterError
	assert.True(t, errors.As(err, &ae))
	assert.False(t, bot.machine.State().Holding)
}

func TestTickFlatRejectedBuyKeepsStateAndRetries(t *testing.T) {
	open := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exchange := &fakeExchange{
		quote:     d("1000"),
		lastQuote: d("100.4"),
		candles:   signalCandles(open),
		buyErr: &core.OrderError{
			Kind: core.OrderErrRejected, Pair: "SOLUSDC", Err: errors.New("refused"),
		},
	}
	notifier := &fakeNotifier{}
	bot := newTestBot(t, exchange, notifier)

	// A rejection is not a cycle failure, the engine stays flat and waits
	require.NoError(t, bot.tick(context.Background()))
	assert.False(t, bot.machine.State().Holding)
	require.Len(t, notifier.errs, 1)

	// The same candle is retried once the order goes through
	exchange.buyErr = nil
	require.NoError(t, bot.tick(context.Background()))
	assert.True(t, bot.machine.State().Holding)
}

func TestTickHoldingStopLoss(t *testing.T) {
	open := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exchange := &fakeExchange{
		quote:     d("1000"),
		lastQuote: d("100"),
		candles:   signalCandles(open),
	}
	notifier := &fakeNotifier{}
	bot := newTestBot(t, exchange, notifier)

	require.NoError(t, bot.tick(context.Background()))
	require.True(t, bot.machine.State().Holding)

	// Price drops to a -1.5% loss, past the hard stop
	exchange.lastQuote = d("98.5")
	require.NoError(t, bot.tick(context.Background()))

	assert.False(t, bot.machine.State().Holding)
	require.Len(t, exchange.sells, 1)
	assert.True(t, notifier.contains("STOP_LOSS"))
}

func TestTickHoldingTrailingStop(t *testing.T) {
	open := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exchange := &fakeExchange{
		quote:     d("1000"),
		lastQuote: d("100"),
		candles:   signalCandles(open),
	}
	notifier := &fakeNotifier{}
	bot := newTestBot(t, exchange, notifier)

	require.NoError(t, bot.tick(context.Background()))
	require.True(t, bot.machine.State().Holding)

	// Rally to +30%, the peak follows and no exit fires
	exchange.lastQuote = d("130")
	require.NoError(t, bot.tick(context.Background()))
	require.True(t, bot.machine.State().Holding)
	require.NotNil(t, bot.machine.State().PeakPrice)
	assert.True(t, bot.machine.State().PeakPrice.Equal(d("130")))

	// Pullback to +18% gives back over a fifth of the peak profit
	exchange.lastQuote = d("118")
	require.NoError(t, bot.tick(context.Background()))

	assert.False(t, bot.machine.State().Holding)
	require.Len(t, exchange.sells, 1)
	assert.True(t, notifier.contains("TRAILING_TP"))
}

func TestTickHoldingRideRetainedWithinTolerance(t *testing.T) {
	open := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exchange := &fakeExchange{
		quote:     d("1000"),
		lastQuote: d("100"),
		candles:   signalCandles(open),
	}
	bot := newTestBot(t, exchange, &fakeNotifier{})

	require.NoError(t, bot.tick(context.Background()))

	exchange.lastQuote = d("130")
	require.NoError(t, bot.tick(context.Background()))

	// +25% is inside the retracement tolerance of a +30% peak
	exchange.lastQuote = d("125")
	require.NoError(t, bot.tick(context.Background()))
	assert.True(t, bot.machine.State().Holding)
	assert.Empty(t, exchange.sells)
}

func TestStatusDescribesPosition(t *testing.T) {
	open := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exchange := &fakeExchange{
		quote:     d("1000"),
		lastQuote: d("100.4"),
		candles:   signalCandles(open),
	}
	bot := newTestBot(t, exchange, &fakeNotifier{})

	assert.Equal(t, "FLAT", bot.Status())

	require.NoError(t, bot.tick(context.Background()))
	assert.Contains(t, bot.Status(), "LONG SOLUSDC")
}

func TestWatchdogAlertsOnce(t *testing.T) {
	exchange := &fakeExchange{quote: d("1000"), lastQuote: d("100")}
	notifier := &fakeNotifier{}
	bot := newTestBot(t, exchange, notifier)

	now := time.Now()
	bot.lastTickOK = now.Add(-20 * time.Minute)

	bot.checkWatchdog(now)
	bot.checkWatchdog(now.Add(time.Minute))

	require.Len(t, notifier.messages, 1)
	assert.True(t, notifier.contains("Watchdog"))
}

func TestWatchdogQuietWhileHealthy(t *testing.T) {
	exchange := &fakeExchange{quote: d("1000"), lastQuote: d("100")}
	notifier := &fakeNotifier{}
	bot := newTestBot(t, exchange, notifier)

	bot.lastTickOK = time.Now()
	bot.checkWatchdog(time.Now())
	assert.Empty(t, notifier.messages)
}

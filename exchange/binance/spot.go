package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/solspot/core"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const rateLimitRetries = 3

// Spot represents the Binance spot market client
type Spot struct {
	client     *binance.Client
	assetsInfo map[string]AssetInfo
	log        core.Logger
}

// SpotOption is a function that configures a Spot client
type SpotOption func(*Spot)

// WithCredentials sets the API credentials for the Spot client
func WithCredentials(key, secret string) SpotOption {
	return func(s *Spot) {
		s.client = binance.NewClient(key, secret)
	}
}

// WithTestNet enables the Binance testnet
func WithTestNet() SpotOption {
	return func(_ *Spot) {
		binance.UseTestnet = true
	}
}

// NewSpot creates a new Binance spot exchange client. The connection is
// verified with a ping and per-pair trading limits are loaded upfront.
func NewSpot(ctx context.Context, log core.Logger, options ...SpotOption) (*Spot, error) {
	spot := &Spot{
		client:     binance.NewClient("", ""),
		assetsInfo: make(map[string]AssetInfo),
		log:        log,
	}

	for _, option := range options {
		option(spot)
	}

	if err := spot.client.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("binance ping fail: %w", err)
	}

	exchangeInfo, err := spot.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	// Initialize with order precisions and asset limits
	for _, info := range exchangeInfo.Symbols {
		assetInfo := AssetInfo{
			BaseAsset:          info.BaseAsset,
			QuoteAsset:         info.QuoteAsset,
			BaseAssetPrecision: info.BaseAssetPrecision,
			QuotePrecision:     info.QuotePrecision,
		}

		for _, filter := range info.Filters {
			typ, ok := filter["filterType"]
			if !ok {
				continue
			}

			if typ == string(binance.SymbolFilterTypeLotSize) {
				assetInfo.MinQuantity = parseDecimal(filter["minQty"])
				assetInfo.MaxQuantity = parseDecimal(filter["maxQty"])
				assetInfo.StepSize = parseDecimal(filter["stepSize"])
			}

			if typ == string(binance.SymbolFilterTypePriceFilter) {
				assetInfo.TickSize = parseDecimal(filter["tickSize"])
			}
		}

		spot.assetsInfo[info.Symbol] = assetInfo
	}

	log.Info("[SETUP] Using Binance Spot exchange")
	return spot, nil
}

// AssetsInfo returns the trading limits loaded for a pair
func (s *Spot) AssetsInfo(pair string) AssetInfo {
	return s.assetsInfo[pair]
}

// LastQuote gets the latest traded price for a pair
func (s *Spot) LastQuote(ctx context.Context, pair string) (decimal.Decimal, error) {
	prices, err := s.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return decimal.Zero, &core.AdapterError{Op: "last quote " + pair, Err: err}
	}
	if len(prices) < 1 {
		return decimal.Zero, &core.AdapterError{Op: "last quote " + pair, Err: fmt.Errorf("empty price response")}
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, &core.AdapterError{Op: "last quote " + pair, Err: err}
	}
	return price, nil
}

// CandlesByLimit gets the last `limit` closed candles for a pair. Rate limited
// requests are retried with backoff before giving up.
func (s *Spot) CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]core.Candle, error) {
	retry := newRetryBackoff()

	var data []*binance.Kline
	var err error
	for attempt := 0; attempt < rateLimitRetries; attempt++ {
		data, err = s.client.NewKlinesService().
			Symbol(pair).
			Interval(period).
			Limit(limit + 1). // +1 to discard the last incomplete candle
			Do(ctx)
		if err == nil {
			break
		}

		if !isRateLimited(err) {
			return nil, &core.AdapterError{Op: "candles " + pair, Err: err}
		}

		wait := retry.Duration()
		s.log.Warnf("rate limit hit, waiting %s before retry", wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, &core.AdapterError{Op: "candles " + pair, Err: err}
		}
	}
	if err != nil {
		return nil, &core.AdapterError{Op: "candles " + pair, Err: err}
	}

	candles := make([]core.Candle, 0, len(data))
	for i, d := range data {
		// The last candle is still forming
		if i == len(data)-1 {
			break
		}
		candles = append(candles, convertKlineToCandle(pair, *d))
	}

	return candles, nil
}

// Account gets the non-zero account balances
func (s *Spot) Account(ctx context.Context) (core.Account, error) {
	acc, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return core.Account{}, &core.AdapterError{Op: "account", Err: err}
	}

	balances := make([]core.Balance, 0, len(acc.Balances))
	for _, balance := range acc.Balances {
		free, err := decimal.NewFromString(balance.Free)
		if err != nil {
			return core.Account{}, &core.AdapterError{Op: "account", Err: err}
		}
		locked, err := decimal.NewFromString(balance.Locked)
		if err != nil {
			return core.Account{}, &core.AdapterError{Op: "account", Err: err}
		}

		if free.IsZero() && locked.IsZero() {
			continue
		}

		balances = append(balances, core.Balance{
			Asset: balance.Asset,
			Free:  free,
			Lock:  locked,
		})
	}

	return core.Account{Balances: balances}, nil
}

// Position gets the current free base and quote balances for a pair
func (s *Spot) Position(ctx context.Context, pair string) (asset, quote decimal.Decimal, err error) {
	assetTick, quoteTick := SplitAssetQuote(pair)
	acc, err := s.Account(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	assetBalance, quoteBalance := acc.GetBalance(assetTick, quoteTick)
	return assetBalance.Free, quoteBalance.Free, nil
}

// CreateOrderMarket creates a market order sized in the base asset
func (s *Spot) CreateOrderMarket(ctx context.Context, side core.SideType, pair string,
	quantity decimal.Decimal) (core.Order, error) {

	info := s.assetsInfo[pair]
	if err := validateQuantity(info, quantity); err != nil {
		return core.Order{}, &core.OrderError{
			Kind: core.OrderErrRejected, Pair: pair, Side: side, Quantity: quantity, Err: err,
		}
	}

	order, err := s.client.NewCreateOrderService().
		Symbol(pair).
		Type(binance.OrderTypeMarket).
		Side(binance.SideType(side)).
		Quantity(formatQuantity(info, quantity)).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return core.Order{}, orderError(err, side, pair, quantity)
	}

	return convertFillToOrder(order)
}

// CreateOrderMarketQuote creates a market order sized in the quote asset
func (s *Spot) CreateOrderMarketQuote(ctx context.Context, side core.SideType, pair string,
	quote decimal.Decimal) (core.Order, error) {

	order, err := s.client.NewCreateOrderService().
		Symbol(pair).
		Type(binance.OrderTypeMarket).
		Side(binance.SideType(side)).
		QuoteOrderQty(quote.Truncate(int32(s.assetsInfo[pair].QuotePrecision)).String()).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return core.Order{}, orderError(err, side, pair, quote)
	}

	return convertFillToOrder(order)
}

// convertFillToOrder converts a fill response to a core.Order with the
// realized average fill price
func convertFillToOrder(order *binance.CreateOrderResponse) (core.Order, error) {
	cost, err := decimal.NewFromString(order.CummulativeQuoteQuantity)
	if err != nil {
		return core.Order{}, fmt.Errorf("parse order cost: %w", err)
	}

	quantity, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		return core.Order{}, fmt.Errorf("parse order quantity: %w", err)
	}

	price := decimal.Zero
	if quantity.IsPositive() {
		price = cost.Div(quantity)
	}

	transactTime := time.Unix(0, order.TransactTime*int64(time.Millisecond))
	return core.Order{
		ExchangeID: order.OrderID,
		CreatedAt:  transactTime,
		UpdatedAt:  transactTime,
		Pair:       order.Symbol,
		Side:       core.SideType(order.Side),
		Type:       core.OrderType(order.Type),
		Status:     core.OrderStatusType(order.Status),
		Price:      price,
		Quantity:   quantity,
	}, nil
}

// convertKlineToCandle converts a Binance kline to a core.Candle
func convertKlineToCandle(pair string, k binance.Kline) core.Candle {
	t := time.Unix(0, k.OpenTime*int64(time.Millisecond))
	return core.Candle{
		Pair:     pair,
		Time:     t,
		Open:     parseDecimal(k.Open),
		Close:    parseDecimal(k.Close),
		High:     parseDecimal(k.High),
		Low:      parseDecimal(k.Low),
		Volume:   parseDecimal(k.Volume),
		Complete: true,
	}
}

func parseDecimal(v any) decimal.Decimal {
	s, ok := v.(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

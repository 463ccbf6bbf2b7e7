// Package binance provides the Binance Spot implementation of core.Exchange
package binance

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/raykavin/solspot/core"

	"github.com/adshao/go-binance/v2/common"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
)

// Known quote currencies for pair splitting
var quotes = []string{
	"USDT",
	"USDC",
	"BTC",
	"BNB",
	"ETH",
	"BUSD",
	"EUR",
	"TRY",
	"AUD",
	"BRL",
	"GBP",
	"USD",
	"NGN",
}

// SplitAssetQuote splits a trading pair into base asset and quote asset
func SplitAssetQuote(pair string) (asset, quote string) {
	for i := len(pair) - 1; i >= 0; i-- {
		for _, q := range quotes {
			if i >= len(q)-1 && pair[i-len(q)+1:i+1] == q {
				return pair[:i-len(q)+1], pair[i-len(q)+1:]
			}
		}
	}
	return pair[:len(pair)/2], pair[len(pair)/2:]
}

// AssetInfo holds the trading limits and precisions of a pair
type AssetInfo struct {
	BaseAsset  string
	QuoteAsset string

	MinQuantity decimal.Decimal
	MaxQuantity decimal.Decimal
	StepSize    decimal.Decimal
	TickSize    decimal.Decimal

	QuotePrecision     int
	BaseAssetPrecision int
}

// formatQuantity truncates a quantity to the pair's lot step size. Truncation,
// not rounding: an all-in sell must never exceed the free balance.
func formatQuantity(info AssetInfo, value decimal.Decimal) string {
	precision := int32(8)
	if info.StepSize.IsPositive() && info.StepSize.Exponent() < 0 {
		precision = -info.StepSize.Exponent()
	}
	return value.Truncate(precision).String()
}

// validateQuantity checks an order quantity against the pair's lot limits
func validateQuantity(info AssetInfo, quantity decimal.Decimal) error {
	if info.MinQuantity.IsPositive() && quantity.LessThan(info.MinQuantity) {
		return errors.New("quantity below pair minimum")
	}
	if info.MaxQuantity.IsPositive() && quantity.GreaterThan(info.MaxQuantity) {
		return errors.New("quantity above pair maximum")
	}
	return nil
}

// API error codes the exchange reports for failures that do not imply the
// order was refused: the request may still have been executed.
var transientAPICodes = map[int64]bool{
	-1000: true, // UNKNOWN
	-1001: true, // DISCONNECTED
	-1003: true, // TOO_MANY_REQUESTS
	-1006: true, // UNEXPECTED_RESP
	-1007: true, // TIMEOUT
}

// orderError classifies a failed order placement. An explicit API rejection
// (invalid quantity, insufficient balance, filters) means nothing filled; any
// network-level failure leaves the fill status unknown.
func orderError(err error, side core.SideType, pair string, quantity decimal.Decimal) *core.OrderError {
	kind := core.OrderErrTransient

	var apiErr *common.APIError
	if errors.As(err, &apiErr) && !transientAPICodes[apiErr.Code] {
		kind = core.OrderErrRejected
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		kind = core.OrderErrTransient
	}

	return &core.OrderError{
		Kind:     kind,
		Pair:     pair,
		Side:     side,
		Quantity: quantity,
		Err:      err,
	}
}

// isRateLimited reports whether the error is a Binance rate limit response
func isRateLimited(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == -1003
}

// newRetryBackoff creates a backoff with sensible defaults for rate limits
func newRetryBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
	}
}

// sleepCtx sleeps for d or until the context is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

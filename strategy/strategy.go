// Package strategy implements the momentum entry and stop/trailing exit rules.
// Evaluation is a pure function of recent closed candles and the current
// position state; all thresholds come from Params.
package strategy

import (
	"github.com/raykavin/solspot/core"

	"github.com/shopspring/decimal"
)

// Signal is the decision emitted by the evaluator on each tick
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// ExitReason names the sell trigger that fired
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTrailingTP ExitReason = "TRAILING_TP"
)

// TrailingMode selects how the trailing stop retracement is measured
type TrailingMode string

const (
	// TrailingRelative triggers when profit gives back a share of its peak
	// value since entry (retracement >= TrailingShare * peakProfit)
	TrailingRelative TrailingMode = "relative"

	// TrailingAbsolute triggers when profit falls a fixed number of
	// percentage points below its peak (retracement >= TrailingShare)
	TrailingAbsolute TrailingMode = "absolute"
)

// Params holds every strategy threshold. Percentages are percentage points
// (0.7 means 0.7%).
type Params struct {
	// Entry: both of the last two closed candles green, combined move at
	// least EntryTotalMove, second candle at least EntryMinSecond and not
	// weaker than the first.
	EntryTotalMove decimal.Decimal
	EntryMinSecond decimal.Decimal

	// Optional wider entry over the last four closed candles: total move at
	// least FourCandleTotalMove, at most one red candle, last two candles
	// not both red. Off by default.
	FourCandleEntry     bool
	FourCandleTotalMove decimal.Decimal

	// Exit: hard stop once profit drops to StopLossPct or below
	StopLossPct decimal.Decimal

	// Exit: trailing stop share and formula
	TrailingShare decimal.Decimal
	TrailingMode  TrailingMode
}

// DefaultParams returns the stock SOLUSDC parameter set
func DefaultParams() Params {
	return Params{
		EntryTotalMove:      decimal.RequireFromString("0.7"),
		EntryMinSecond:      decimal.RequireFromString("0.35"),
		FourCandleEntry:     false,
		FourCandleTotalMove: decimal.RequireFromString("0.7"),
		StopLossPct:         decimal.RequireFromString("-1.0"),
		TrailingShare:       decimal.RequireFromString("0.2"),
		TrailingMode:        TrailingRelative,
	}
}

// Evaluator decides buy/sell/hold from candle history and position state
type Evaluator struct {
	params Params
}

func NewEvaluator(params Params) *Evaluator {
	return &Evaluator{params: params}
}

// Params returns the active parameter set
func (e *Evaluator) Params() Params { return e.params }

// Evaluate returns the trading signal for the current tick. While flat only
// the entry rules run; while holding only the exit rules run. The caller must
// raise the position peak with the current price before calling, since the
// trailing stop is computed against the updated peak.
func (e *Evaluator) Evaluate(candles []core.Candle, currentPrice decimal.Decimal, state core.PositionState) Signal {
	if state.Holding {
		if ok, _ := e.ShouldExit(currentPrice, state); ok {
			return SignalSell
		}
		return SignalHold
	}

	if e.ShouldEnter(candles) {
		return SignalBuy
	}
	return SignalHold
}

// ShouldEnter evaluates the entry rules over the closed candle history,
// chronological order, most recent last
func (e *Evaluator) ShouldEnter(candles []core.Candle) bool {
	if e.twoCandleEntry(candles) {
		return true
	}
	if e.params.FourCandleEntry && e.fourCandleEntry(candles) {
		return true
	}
	return false
}

func (e *Evaluator) twoCandleEntry(candles []core.Candle) bool {
	if len(candles) < 2 {
		return false
	}

	r1 := candles[len(candles)-2].Change()
	r2 := candles[len(candles)-1].Change()

	if !r1.IsPositive() || !r2.IsPositive() {
		return false
	}
	if r1.Add(r2).LessThan(e.params.EntryTotalMove) {
		return false
	}
	if r2.LessThan(r1) {
		return false
	}
	return r2.GreaterThanOrEqual(e.params.EntryMinSecond)
}

func (e *Evaluator) fourCandleEntry(candles []core.Candle) bool {
	if len(candles) < 4 {
		return false
	}

	last4 := candles[len(candles)-4:]

	total := decimal.Zero
	redCount := 0
	for _, c := range last4 {
		total = total.Add(c.Change())
		if c.Red() {
			redCount++
		}
	}

	if total.LessThan(e.params.FourCandleTotalMove) {
		return false
	}
	if redCount > 1 {
		return false
	}
	return !(last4[2].Red() && last4[3].Red())
}

// ShouldExit evaluates the stop-loss and trailing rules for an open position.
// The position peak must already reflect the current price.
func (e *Evaluator) ShouldExit(currentPrice decimal.Decimal, state core.PositionState) (bool, ExitReason) {
	if !state.Holding || state.BuyPrice == nil || !state.BuyPrice.IsPositive() {
		return false, ""
	}

	profit := state.ProfitPct(currentPrice)
	if profit.LessThanOrEqual(e.params.StopLossPct) {
		return true, ExitStopLoss
	}

	// Trailing stop never fires while the position has not been profitable:
	// a non-positive peak leaves only the hard stop as an exit.
	peakProfit := state.PeakProfitPct()
	if !peakProfit.IsPositive() {
		return false, ""
	}

	retracement := peakProfit.Sub(profit)
	switch e.params.TrailingMode {
	case TrailingAbsolute:
		if retracement.GreaterThanOrEqual(e.params.TrailingShare) {
			return true, ExitTrailingTP
		}
	default:
		if retracement.GreaterThanOrEqual(e.params.TrailingShare.Mul(peakProfit)) {
			return true, ExitTrailingTP
		}
	}

	return false, ""
}

// CandleChanges returns the percentage moves of the last two closed candles,
// used for logging and notifications
func CandleChanges(candles []core.Candle) (r1, r2 decimal.Decimal) {
	if len(candles) < 2 {
		return decimal.Zero, decimal.Zero
	}
	return candles[len(candles)-2].Change(), candles[len(candles)-1].Change()
}

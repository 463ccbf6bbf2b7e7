package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TradeSummary accumulates realized results of closed round trips for a pair
type TradeSummary struct {
	Pair   string
	Wins   int
	Losses int

	// ProfitPct is the sum of per-trade percentage results
	ProfitPct decimal.Decimal

	// Volume is the total quote value traded on exits
	Volume decimal.Decimal
}

func NewTradeSummary(pair string) *TradeSummary {
	return &TradeSummary{Pair: pair}
}

// AddTrade records one closed round trip and returns its percentage result
func (s *TradeSummary) AddTrade(entry, exit, quantity decimal.Decimal) decimal.Decimal {
	profitPct := decimal.Zero
	if entry.IsPositive() {
		profitPct = exit.Sub(entry).Div(entry).Mul(hundred)
	}

	if profitPct.IsPositive() {
		s.Wins++
	} else {
		s.Losses++
	}

	s.ProfitPct = s.ProfitPct.Add(profitPct)
	s.Volume = s.Volume.Add(exit.Mul(quantity))
	return profitPct
}

// Trades returns the number of closed round trips
func (s *TradeSummary) Trades() int { return s.Wins + s.Losses }

// WinRate returns the share of profitable trades as a percentage
func (s *TradeSummary) WinRate() decimal.Decimal {
	if s.Trades() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Wins)).Div(decimal.NewFromInt(int64(s.Trades()))).Mul(hundred)
}

func (s *TradeSummary) String() string {
	return fmt.Sprintf("%s: %d trades, win rate %s%%, cumulative PnL %s%%",
		s.Pair, s.Trades(), s.WinRate().StringFixed(1), s.ProfitPct.StringFixed(2))
}

package core

import "github.com/shopspring/decimal"

// PositionState is the sole persisted entity of the bot. The JSON field names
// are an external contract: state files written by older deployments must load
// unchanged across restarts.
type PositionState struct {
	FirstRunSellDone bool             `json:"FIRST_RUN_SELL_DONE"`
	Holding          bool             `json:"holding"`
	BuyPrice         *decimal.Decimal `json:"buy_price,omitempty"`
	PeakPrice        *decimal.Decimal `json:"peak_price,omitempty"`
}

// NewPositionState returns the default flat state used when no persisted
// snapshot exists
func NewPositionState() PositionState {
	return PositionState{}
}

// Validate checks the state invariants. A violation means the persisted
// snapshot is corrupt and must not be trusted.
func (s PositionState) Validate() error {
	if !s.Holding {
		if s.BuyPrice != nil || s.PeakPrice != nil {
			return &StateCorruptionError{Reason: "flat position carries entry prices"}
		}
		return nil
	}

	if s.BuyPrice == nil || s.PeakPrice == nil {
		return &StateCorruptionError{Reason: "holding without buy or peak price"}
	}
	if !s.BuyPrice.IsPositive() {
		return &StateCorruptionError{Reason: "non-positive buy price"}
	}
	if s.PeakPrice.LessThan(*s.BuyPrice) {
		return &StateCorruptionError{Reason: "peak price below buy price"}
	}
	return nil
}

// Enter records a filled buy: entry and peak start at the realized fill price
func (s *PositionState) Enter(fillPrice decimal.Decimal) {
	buy := fillPrice
	peak := fillPrice
	s.Holding = true
	s.BuyPrice = &buy
	s.PeakPrice = &peak
}

// Exit clears the position back to flat
func (s *PositionState) Exit() {
	s.Holding = false
	s.BuyPrice = nil
	s.PeakPrice = nil
}

// RaisePeak lifts the peak price if the given price exceeds it, returning true
// when the peak moved
func (s *PositionState) RaisePeak(price decimal.Decimal) bool {
	if !s.Holding || s.PeakPrice == nil {
		return false
	}
	if price.GreaterThan(*s.PeakPrice) {
		peak := price
		s.PeakPrice = &peak
		return true
	}
	return false
}

// ProfitPct returns the current profit over the entry price in percentage
// points. Zero is returned for a flat position.
func (s PositionState) ProfitPct(current decimal.Decimal) decimal.Decimal {
	if !s.Holding || s.BuyPrice == nil || !s.BuyPrice.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(*s.BuyPrice).Div(*s.BuyPrice).Mul(hundred)
}

// PeakProfitPct returns the best profit seen since entry in percentage points
func (s PositionState) PeakProfitPct() decimal.Decimal {
	if !s.Holding || s.BuyPrice == nil || s.PeakPrice == nil || !s.BuyPrice.IsPositive() {
		return decimal.Zero
	}
	return s.PeakPrice.Sub(*s.BuyPrice).Div(*s.BuyPrice).Mul(hundred)
}

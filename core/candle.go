package core

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Candle represents a closed trading candle with OHLCV data
type Candle struct {
	Pair     string
	Time     time.Time
	Open     decimal.Decimal
	Close    decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Volume   decimal.Decimal
	Complete bool
}

// Change returns the open-to-close move of the candle in percentage points
func (c Candle) Change() decimal.Decimal {
	if c.Open.IsZero() {
		return decimal.Zero
	}
	return c.Close.Sub(c.Open).Div(c.Open).Mul(hundred)
}

// Green reports whether the candle closed above its open
func (c Candle) Green() bool { return c.Close.GreaterThan(c.Open) }

// Red reports whether the candle closed below its open
func (c Candle) Red() bool { return c.Close.LessThan(c.Open) }

// IsEmpty checks if the candle contains no significant data
func (c Candle) IsEmpty() bool {
	return c.Pair == "" && c.Open.IsZero() && c.Close.IsZero() && c.Volume.IsZero()
}

package core

import "github.com/shopspring/decimal"

// Balance represents the available funds for a specific asset
type Balance struct {
	Asset string
	Free  decimal.Decimal
	Lock  decimal.Decimal
}

// Total returns free plus locked funds
func (b Balance) Total() decimal.Decimal { return b.Free.Add(b.Lock) }

// Account represents a trading account with multiple asset balances
type Account struct {
	Balances []Balance
}

// GetBalance retrieves the balances for an asset/quote pair. A zero Balance is
// returned for any asset the account does not hold.
func (a Account) GetBalance(assetTick, quoteTick string) (asset, quote Balance) {
	for _, balance := range a.Balances {
		switch balance.Asset {
		case assetTick:
			asset = balance
		case quoteTick:
			quote = balance
		}
	}
	return asset, quote
}

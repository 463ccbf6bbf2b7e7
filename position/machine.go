// Package position owns the persisted position state and its transitions.
// The machine is single-writer: all mutations happen on the orchestration
// goroutine and every mutation is flushed to the store before it becomes the
// machine's current state.
package position

import (
	"context"
	"errors"
	"fmt"

	"github.com/raykavin/solspot/core"
	"github.com/raykavin/solspot/order"

	"github.com/shopspring/decimal"
)

// Machine applies buy/sell transitions to the persisted position state
type Machine struct {
	pair   string
	orders *order.Controller
	store  core.PositionStore
	log    core.Logger

	state core.PositionState
}

// NewMachine loads the persisted state and builds the state machine. A
// corrupt snapshot is discarded: the machine starts from defaults, which
// forces the startup liquidation to re-verify actual holdings against the
// exchange.
func NewMachine(ctx context.Context, pair string, orders *order.Controller,
	store core.PositionStore, log core.Logger) (*Machine, error) {

	state, err := store.Load(ctx)
	if err != nil {
		if !core.IsCorruptState(err) {
			return nil, fmt.Errorf("load position state: %w", err)
		}
		log.WithError(err).Error("discarding corrupt position state, starting from defaults")
		state = core.NewPositionState()
	}

	log.WithFields(map[string]any{
		"holding":             state.Holding,
		"first_run_sell_done": state.FirstRunSellDone,
	}).Info("position state loaded")

	return &Machine{
		pair:   pair,
		orders: orders,
		store:  store,
		log:    log,
		state:  state,
	}, nil
}

// State returns a copy of the current position state
func (m *Machine) State() core.PositionState {
	return m.state
}

// Pair returns the trading pair the machine operates on
func (m *Machine) Pair() string {
	return m.pair
}

// commit persists the mutated state and only then makes it current. The
// in-memory state never runs ahead of the durable snapshot.
func (m *Machine) commit(ctx context.Context, next core.PositionState) error {
	if err := m.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist position state: %w", err)
	}
	m.state = next
	return nil
}

// StartupLiquidation sells any pre-existing base asset holdings once per
// deployment, before the first poll cycle. It runs regardless of the
// persisted holding flag, recovering from any divergence between the state
// file and the actual exchange balance. Once FIRST_RUN_SELL_DONE is durably
// persisted the transition never re-executes, so a crash-restart cannot
// issue a second sell.
func (m *Machine) StartupLiquidation(ctx context.Context) error {
	if m.state.FirstRunSellDone {
		m.log.Info("startup liquidation already done, skipping")
		return nil
	}

	asset, _, err := m.orders.Position(ctx, m.pair)
	if err != nil {
		return fmt.Errorf("startup balance check: %w", err)
	}

	if asset.IsPositive() {
		m.log.Infof("startup: found %s base asset, selling all", asset)

		ord, err := m.orders.MarketSell(ctx, m.pair, asset)
		if err != nil {
			sold, recErr := m.reconcileSell(ctx, err)
			if recErr != nil {
				return recErr
			}
			if !sold {
				return err
			}
		} else {
			m.log.Infof("startup sell filled at %s", ord.Price)
		}
	}

	next := m.state
	next.Exit()
	next.FirstRunSellDone = true
	return m.commit(ctx, next)
}

// UpdatePeak lifts the persisted peak price when the current price exceeds
// it, returning true when the peak moved. Must run before the exit rules are
// evaluated for the tick.
func (m *Machine) UpdatePeak(ctx context.Context, price decimal.Decimal) (bool, error) {
	next := m.state
	if !next.RaisePeak(price) {
		return false, nil
	}
	if err := m.commit(ctx, next); err != nil {
		return false, err
	}
	m.log.Debugf("new peak: %s", price)
	return true, nil
}

// OpenPosition spends the full quote balance on a market buy and records the
// realized fill price as the entry. A rejected order leaves the state
// untouched; a transient failure is reconciled against actual balances
// before the transition is recorded.
func (m *Machine) OpenPosition(ctx context.Context) error {
	if m.state.Holding {
		return nil
	}

	_, quote, err := m.orders.Position(ctx, m.pair)
	if err != nil {
		return fmt.Errorf("buy balance check: %w", err)
	}
	if !quote.IsPositive() {
		m.log.Warn("buy signal but quote balance is zero")
		return nil
	}

	ord, err := m.orders.MarketBuyQuote(ctx, m.pair, quote)
	if err != nil {
		fillPrice, filled, recErr := m.reconcileBuy(ctx, err)
		if recErr != nil {
			return recErr
		}
		if !filled {
			return err
		}
		ord.Price = fillPrice
	}

	next := m.state
	next.Enter(ord.Price)
	return m.commit(ctx, next)
}

// ClosePosition sells the full base balance at market and clears the
// position. The realized result is recorded against the entry price under
// the given exit reason.
func (m *Machine) ClosePosition(ctx context.Context, reason string) error {
	if !m.state.Holding || m.state.BuyPrice == nil {
		return nil
	}
	entry := *m.state.BuyPrice

	asset, _, err := m.orders.Position(ctx, m.pair)
	if err != nil {
		return fmt.Errorf("sell balance check: %w", err)
	}

	if !asset.IsPositive() {
		// The exchange holds no base asset although the state says we do.
		// Trust the exchange and reset to flat.
		m.log.Error("sell signal but base balance is zero, resetting desynced state")
		next := m.state
		next.Exit()
		return m.commit(ctx, next)
	}

	ord, err := m.orders.MarketSell(ctx, m.pair, asset)
	if err != nil {
		sold, recErr := m.reconcileSell(ctx, err)
		if recErr != nil {
			return recErr
		}
		if !sold {
			return err
		}

		// Fill price unknown after a reconciled transient failure: fall
		// back to the latest quote for reporting purposes.
		ord.Price, _ = m.orders.LastQuote(ctx, m.pair)
		ord.Quantity = asset
	}

	m.orders.RecordTrade(m.pair, entry, ord.Price, ord.Quantity, reason)

	next := m.state
	next.Exit()
	return m.commit(ctx, next)
}

// reconcileBuy resolves a failed buy whose fill status may be unknown. The
// actual base balance decides: a balance appearing where none is expected
// means the buy filled despite the error.
func (m *Machine) reconcileBuy(ctx context.Context, orderErr error) (fill decimal.Decimal, filled bool, err error) {
	var oe *core.OrderError
	if !errors.As(orderErr, &oe) || oe.Rejected() {
		return decimal.Zero, false, nil
	}

	m.log.WithError(orderErr).Warn("transient buy failure, reconciling against balances")

	asset, _, err := m.orders.Position(ctx, m.pair)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("buy reconciliation: %w", err)
	}
	if !asset.IsPositive() {
		return decimal.Zero, false, nil
	}

	// The buy went through. The fill price was lost with the response, so
	// record the latest quote as the entry.
	price, err := m.orders.LastQuote(ctx, m.pair)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("buy reconciliation quote: %w", err)
	}

	m.log.Warnf("buy filled despite transient error, recording entry at quote %s", price)
	return price, true, nil
}

// reconcileSell resolves a failed sell whose fill status may be unknown: a
// vanished base balance means the sell filled despite the error.
func (m *Machine) reconcileSell(ctx context.Context, orderErr error) (sold bool, err error) {
	var oe *core.OrderError
	if !errors.As(orderErr, &oe) || oe.Rejected() {
		return false, nil
	}

	m.log.WithError(orderErr).Warn("transient sell failure, reconciling against balances")

	asset, _, err := m.orders.Position(ctx, m.pair)
	if err != nil {
		return false, fmt.Errorf("sell reconciliation: %w", err)
	}

	if asset.IsPositive() {
		return false, nil
	}

	m.log.Warn("sell filled despite transient error")
	return true, nil
}

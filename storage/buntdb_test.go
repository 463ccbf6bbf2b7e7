package storage

import (
	"context"
	"testing"
	"time"

	"github.com/raykavin/solspot/core"
	zlog "github.com/raykavin/solspot/logger/zerolog"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/buntdb"
)

func newTestStorage(t *testing.T) *BuntStorage {
	t.Helper()
	nop := zerolog.Nop()
	store, err := NewFromMemory(zlog.NewAdapter(&nop))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPositionStateRoundTripFlat(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	state := core.NewPositionState()
	state.FirstRunSellDone = true

	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestPositionStateRoundTripLong(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	state := core.NewPositionState()
	state.FirstRunSellDone = true
	state.Enter(decimal.RequireFromString("142.37"))
	state.RaisePeak(decimal.RequireFromString("151.02"))

	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.Holding)
	require.NotNil(t, loaded.BuyPrice)
	require.NotNil(t, loaded.PeakPrice)
	assert.True(t, loaded.BuyPrice.Equal(decimal.RequireFromString("142.37")))
	assert.True(t, loaded.PeakPrice.Equal(decimal.RequireFromString("151.02")))
}

func TestLoadMissingStateReturnsDefaults(t *testing.T) {
	store := newTestStorage(t)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, state.Holding)
	assert.False(t, state.FirstRunSellDone)
	assert.Nil(t, state.BuyPrice)
	assert.Nil(t, state.PeakPrice)
}

func TestLoadCorruptSnapshot(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(positionKey, "{not json", nil)
		return err
	}))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsCorruptState(err))
}

func TestLoadInvariantViolation(t *testing.T) {
	store := newTestStorage(t)

	// holding=true without prices breaks the state invariant
	require.NoError(t, store.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(positionKey, `{"FIRST_RUN_SELL_DONE":true,"holding":true}`, nil)
		return err
	}))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsCorruptState(err))
}

func TestLoadLegacyNumericstate(t *testing.T) {
	store := newTestStorage(t)

	// State files written by earlier deployments carry plain JSON numbers
	require.NoError(t, store.db.Update(func(tx *buntdb.Tx) error {
		snapshot := `{"FIRST_RUN_SELL_DONE":true,"holding":true,"buy_price":100.5,"peak_price":101.25}`
		_, _, err := tx.Set(positionKey, snapshot, nil)
		return err
	}))

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Holding)
	assert.True(t, state.BuyPrice.Equal(decimal.RequireFromString("100.5")))
}

func TestOrderCreateAndFilter(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	buy := &core.Order{
		Pair:      "SOLUSDC",
		Side:      core.SideTypeBuy,
		Type:      core.OrderTypeMarket,
		Status:    core.OrderStatusTypeFilled,
		Price:     decimal.RequireFromString("100"),
		Quantity:  decimal.RequireFromString("2.5"),
		CreatedAt: time.Now().Add(-time.Minute),
		UpdatedAt: time.Now().Add(-time.Minute),
	}
	sell := &core.Order{
		Pair:      "SOLUSDC",
		Side:      core.SideTypeSell,
		Type:      core.OrderTypeMarket,
		Status:    core.OrderStatusTypeFilled,
		Price:     decimal.RequireFromString("104"),
		Quantity:  decimal.RequireFromString("2.5"),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	require.NoError(t, store.CreateOrder(ctx, buy))
	require.NoError(t, store.CreateOrder(ctx, sell))
	assert.NotZero(t, buy.ID)
	assert.NotEqual(t, buy.ID, sell.ID)

	all, err := store.Orders(ctx, core.WithPair("SOLUSDC"))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sells, err := store.Orders(ctx, core.WithSide(core.SideTypeSell))
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assert.True(t, sells[0].Price.Equal(decimal.RequireFromString("104")))
}

func TestOrderUpdate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	order := &core.Order{
		Pair:      "SOLUSDC",
		Side:      core.SideTypeBuy,
		Type:      core.OrderTypeMarket,
		Status:    core.OrderStatusTypeNew,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.CreateOrder(ctx, order))

	order.Status = core.OrderStatusTypeFilled
	require.NoError(t, store.UpdateOrder(ctx, order))

	filled, err := store.Orders(ctx, core.WithStatus(core.OrderStatusTypeFilled))
	require.NoError(t, err)
	assert.Len(t, filled, 1)

	missing := &core.Order{ID: 999}
	assert.Error(t, store.UpdateOrder(ctx, missing))
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/raykavin/solspot/core"
	"github.com/tidwall/buntdb"
)

const (
	// positionKey is the single key the position state snapshot lives under
	positionKey = "position:state"

	// orderKeyPrefix namespaces order records away from the position key
	orderKeyPrefix = "order:"

	// orderIndexName orders the order scan by update timestamp
	orderIndexName = "order_update_index"
)

// BuntStorage implements core.PositionStore and core.OrderStorage using a
// single BuntDB file
type BuntStorage struct {
	lastID int64
	db     *buntdb.DB
	log    core.Logger
}

// NewFromMemory creates an in-memory storage, used by tests
func NewFromMemory(log core.Logger) (*BuntStorage, error) {
	return NewBuntStorage(":memory:", log)
}

// NewFromFile creates a file-based storage
func NewFromFile(file string, log core.Logger) (*BuntStorage, error) {
	return NewBuntStorage(file, log)
}

// NewBuntStorage creates a new BuntDB storage instance. Writes are fsynced on
// every commit: the last successful Save must survive a crash.
func NewBuntStorage(sourceFile string, log core.Logger) (*BuntStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{
		SyncPolicy: buntdb.Always,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	if err := db.CreateIndex(orderIndexName, orderKeyPrefix+"*", buntdb.IndexJSON("updated_at")); err != nil {
		return nil, fmt.Errorf("failed to create order index: %w", err)
	}

	return &BuntStorage{db: db, log: log}, nil
}

// Load implements core.PositionStore. A missing snapshot yields the default
// state; an unreadable or invalid one yields a StateCorruptionError.
func (b *BuntStorage) Load(_ context.Context) (core.PositionState, error) {
	var raw string
	err := b.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(positionKey)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})

	if errors.Is(err, buntdb.ErrNotFound) {
		return core.NewPositionState(), nil
	}
	if err != nil {
		return core.PositionState{}, fmt.Errorf("failed to read position state: %w", err)
	}

	var state core.PositionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return core.PositionState{}, &core.StateCorruptionError{Reason: "unreadable state snapshot", Err: err}
	}

	if err := state.Validate(); err != nil {
		return core.PositionState{}, err
	}

	return state, nil
}

// Save implements core.PositionStore
func (b *BuntStorage) Save(_ context.Context, state core.PositionState) error {
	content, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal position state: %w", err)
	}

	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(positionKey, string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store position state: %w", err)
		}
		return nil
	})
}

// getID generates a unique ID for orders
func (b *BuntStorage) getID() int64 {
	return atomic.AddInt64(&b.lastID, 1)
}

// CreateOrder stores a new order in the database
func (b *BuntStorage) CreateOrder(_ context.Context, order *core.Order) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		if order.ID == 0 {
			order.ID = b.getID()
		}

		content, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}

		key := orderKeyPrefix + strconv.FormatInt(order.ID, 10)
		if _, _, err := tx.Set(key, string(content), nil); err != nil {
			return fmt.Errorf("failed to store order: %w", err)
		}
		return nil
	})
}

// UpdateOrder updates an existing order in the database
func (b *BuntStorage) UpdateOrder(_ context.Context, order *core.Order) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		key := orderKeyPrefix + strconv.FormatInt(order.ID, 10)

		if _, err := tx.Get(key); err != nil {
			return fmt.Errorf("order not found: %w", err)
		}

		content, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}

		if _, _, err := tx.Set(key, string(content), nil); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		return nil
	})
}

// Orders retrieves orders from the database based on provided filters
func (b *BuntStorage) Orders(_ context.Context, filters ...core.OrderFilter) ([]*core.Order, error) {
	orders := make([]*core.Order, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(orderIndexName, func(key, value string) bool {
			var order core.Order
			if err := json.Unmarshal([]byte(value), &order); err != nil {
				b.log.Warnf("failed to unmarshal order %s: %v", key, err)
				return true // continue iteration
			}

			for _, filter := range filters {
				if !filter(order) {
					return true
				}
			}

			orders = append(orders, &order)
			return true
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	return orders, nil
}

// Close closes the database
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

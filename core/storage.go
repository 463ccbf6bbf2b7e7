package core

import (
	"context"
	"time"
)

// PositionStore persists the bot position state. Save must flush to durable
// storage before returning: the last successful Save is always a consistent
// snapshot a restart can resume from.
type PositionStore interface {
	// Load reads the persisted state. When no snapshot exists, the default
	// state is returned with a nil error. An unreadable or invalid snapshot
	// yields a StateCorruptionError.
	Load(ctx context.Context) (PositionState, error)

	// Save atomically overwrites the persisted state
	Save(ctx context.Context, state PositionState) error
}

// OrderStorage records every executed order for audit and PnL reporting
type OrderStorage interface {
	// CreateOrder stores a new order
	CreateOrder(ctx context.Context, order *Order) error

	// UpdateOrder updates an existing order
	UpdateOrder(ctx context.Context, order *Order) error

	// Orders retrieves orders based on provided filters
	Orders(ctx context.Context, filters ...OrderFilter) ([]*Order, error)
}

func WithStatus(status OrderStatusType) OrderFilter {
	return func(order Order) bool {
		return order.Status == status
	}
}

func WithPair(pair string) OrderFilter {
	return func(order Order) bool {
		return order.Pair == pair
	}
}

func WithSide(side SideType) OrderFilter {
	return func(order Order) bool {
		return order.Side == side
	}
}

func WithUpdateAtBeforeOrEqual(t time.Time) OrderFilter {
	return func(order Order) bool {
		return !order.UpdatedAt.After(t)
	}
}

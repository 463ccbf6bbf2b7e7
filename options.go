package solspot

import (
	"github.com/raykavin/solspot/core"
)

// Option is a functional option for configuring a Bot instance
type Option func(*Bot)

// WithLogger replaces the config-built logger
func WithLogger(log core.Logger) Option {
	return func(bot *Bot) {
		bot.log = log
	}
}

// WithNotifier registers a notifier, replacing the config-built Telegram one
func WithNotifier(notifier core.Notifier) Option {
	return func(bot *Bot) {
		bot.notifier = notifier
	}
}

// WithPositionStore sets the position snapshot store, by default a local
// buntdb file holds it
func WithPositionStore(store core.PositionStore) Option {
	return func(bot *Bot) {
		bot.positionStore = store
	}
}

// WithOrderStorage sets the order history store
func WithOrderStorage(storage core.OrderStorage) Option {
	return func(bot *Bot) {
		bot.orderStorage = storage
	}
}

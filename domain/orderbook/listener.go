package orderbook

import (
	"time"

	"github.com/google/uuid"
)

// Listener observes book events. Callbacks run synchronously on the
// writer's goroutine and must not call back into the book.
type Listener interface {
	OrderAdded(o Order)
	OrderMatched(t Trade)
	OrderCanceled(o Order)
	LevelRemoved(side Side, price Price)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) OrderAdded(Order) {}
func (NopListener) OrderMatched(Trade) {}
func (NopListener) OrderCanceled(Order) {}
func (NopListener) LevelRemoved(Side, Price) {}

type Option func(*OrderBook)

func WithListener(l Listener) Option {
	return func(b *OrderBook) {
		if l != nil {
			b.listener = l
		}
	}
}

// WithClock sets the time source for trade timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *OrderBook) {
		if now != nil {
			b.clock = now
		}
	}
}

// WithTradeIDs sets the trade id generator.
func WithTradeIDs(next func() uuid.UUID) Option {
	return func(b *OrderBook) {
		if next != nil {
			b.tradeID = next
		}
	}
}

// WithSlotCapacity sets the initial slot capacity of new price levels.
func WithSlotCapacity(n int) Option {
	return func(b *OrderBook) {
		if n > 0 {
			b.slotCapacity = n
		}
	}
}

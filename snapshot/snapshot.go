package snapshot

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"matchbook/domain/orderbook"
)

const schemaVersion = 1

type Snapshot struct {
	Version int          `msgpack:"version"`
	Seq     uint64       `msgpack:"seq"`
	Created int64        `msgpack:"created"`
	Orders  []OrderEntry `msgpack:"orders"`
}

type OrderEntry struct {
	ID        string `msgpack:"id"`
	Side      uint8  `msgpack:"side"`
	Type      uint8  `msgpack:"type"`
	Price     int64  `msgpack:"price"`
	Original  uint64 `msgpack:"original"`
	Executed  uint64 `msgpack:"executed"`
	Remaining uint64 `msgpack:"remaining"`
	Timestamp int64  `msgpack:"ts"`
}

// Walker is the read side of a book a snapshot is taken from.
type Walker interface {
	Walk(fn func(o orderbook.Order) bool)
}

// Capture copies every resting order of book in priority order. The
// caller must keep the book still while it runs.
func Capture(seq uint64, book Walker) *Snapshot {
	s := &Snapshot{
		Version: schemaVersion,
		Seq:     seq,
		Created: time.Now().UnixNano(),
	}
	book.Walk(func(o orderbook.Order) bool {
		s.Orders = append(s.Orders, OrderEntry{
			ID:        o.ID.String(),
			Side:      uint8(o.Side),
			Type:      uint8(o.Type),
			Price:     int64(o.Price),
			Original:  uint64(o.OriginalQty),
			Executed:  uint64(o.ExecutedQty),
			Remaining: uint64(o.RemainingQty),
			Timestamp: o.Timestamp.UnixNano(),
		})
		return true
	})
	return s
}

func (e OrderEntry) order() (orderbook.Order, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("snapshot: order id %q: %w", e.ID, err)
	}
	return orderbook.Order{
		ID:           id,
		Side:         orderbook.Side(e.Side),
		Type:         orderbook.OrderType(e.Type),
		Price:        orderbook.Price(e.Price),
		OriginalQty:  orderbook.Quantity(e.Original),
		ExecutedQty:  orderbook.Quantity(e.Executed),
		RemainingQty: orderbook.Quantity(e.Remaining),
		Timestamp:    time.Unix(0, e.Timestamp),
	}, nil
}

// Restore rests every order of s into book, which should be empty.
// Entries are in priority order so FIFO positions come back unchanged.
func (s *Snapshot) Restore(book *orderbook.OrderBook) error {
	for i, e := range s.Orders {
		o, err := e.order()
		if err != nil {
			return err
		}
		if err := book.Restore(o); err != nil {
			return fmt.Errorf("snapshot: restore entry %d: %w", i, err)
		}
	}
	return nil
}

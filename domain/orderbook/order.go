package orderbook

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	OrderID  = uuid.UUID
	Price    int64
	Quantity uint64
)

type Side uint8
type OrderType uint8
type Status uint8

const (
	Buy Side = iota
	Sell
)

const (
	Limit OrderType = iota
	GoodTillCancel
	Market
	ImmediateOrCancel
	FillOrKill
)

const (
	New Status = iota
	PartiallyFilled
	Filled
	Canceled
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case GoodTillCancel:
		return "gtc"
	case Market:
		return "market"
	case ImmediateOrCancel:
		return "ioc"
	case FillOrKill:
		return "fok"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Priced reports whether the order's limit price takes part in matching.
func (t OrderType) Priced() bool {
	return t != Market
}

// Rests reports whether an unfilled remainder stays in the book.
func (t OrderType) Rests() bool {
	return t == Limit || t == GoodTillCancel
}

func (s Status) String() string {
	switch s {
	case New:
		return "new"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Order is a single order. Quantities only change through Fill, which
// returns a new value and leaves the receiver untouched.
type Order struct {
	ID           OrderID
	Side         Side
	Type         OrderType
	Price        Price
	OriginalQty  Quantity
	ExecutedQty  Quantity
	RemainingQty Quantity
	Status       Status
	Timestamp    time.Time
}

// NewOrder builds a fresh order with a random id. The book never assigns
// ids itself; this is a helper for callers.
func NewOrder(typ OrderType, side Side, price Price, qty Quantity) Order {
	return Order{
		ID:           uuid.New(),
		Side:         side,
		Type:         typ,
		Price:        price,
		OriginalQty:  qty,
		RemainingQty: qty,
		Status:       New,
		Timestamp:    time.Now(),
	}
}

// Fill returns a copy of o with qty more executed.
func (o Order) Fill(qty Quantity) (Order, error) {
	if qty > o.RemainingQty {
		return o, &InvalidQuantityError{Quantity: qty}
	}
	o.ExecutedQty += qty
	o.RemainingQty = o.OriginalQty - o.ExecutedQty
	if o.RemainingQty == 0 {
		o.Status = Filled
	} else {
		o.Status = PartiallyFilled
	}
	return o, nil
}

func (o Order) IsFilled() bool {
	return o.RemainingQty == 0
}

func (o Order) String() string {
	return fmt.Sprintf("Order{%s %s %s px=%d qty=%d/%d %s}",
		o.ID, o.Side, o.Type, o.Price, o.ExecutedQty, o.OriginalQty, o.Status)
}

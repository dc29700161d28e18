package orderbook

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trade is one match between a resting order and an aggressor.
type Trade struct {
	ID         uuid.UUID
	BidOrderID OrderID
	AskOrderID OrderID
	Price      Price
	Quantity   Quantity
	Timestamp  time.Time
}

func newTrade(id uuid.UUID, aggressor, resting *Order, qty Quantity, ts time.Time) Trade {
	t := Trade{
		ID:        id,
		Price:     resting.Price,
		Quantity:  qty,
		Timestamp: ts,
	}
	if aggressor.Side == Buy {
		t.BidOrderID, t.AskOrderID = aggressor.ID, resting.ID
	} else {
		t.BidOrderID, t.AskOrderID = resting.ID, aggressor.ID
	}
	return t
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade{%s bid=%s ask=%s px=%d qty=%d}",
		t.ID, t.BidOrderID, t.AskOrderID, t.Price, t.Quantity)
}

package orderbook

import (
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
)

const (
	defaultSlotCapacity = 8
	indexDegree         = 32
)

type orderEntry struct {
	order Order
	level int
	slot  int
}

// OrderBook is a single-instrument book. It is single-writer: callers
// serialize every method call.
type OrderBook struct {
	bids   *btree.Map[Price, int] // best = Max
	asks   *btree.Map[Price, int] // best = Min
	orders map[OrderID]*orderEntry
	levels *levelArena

	slotCapacity int
	listener     Listener
	clock        func() time.Time
	tradeID      func() uuid.UUID
}

// New creates an empty book. The capacities pre-size the level arena and
// the order table.
func New(levelCapacity, orderCapacity int, opts ...Option) *OrderBook {
	if levelCapacity < 0 {
		levelCapacity = 0
	}
	if orderCapacity < 0 {
		orderCapacity = 0
	}
	b := &OrderBook{
		bids:         btree.NewMap[Price, int](indexDegree),
		asks:         btree.NewMap[Price, int](indexDegree),
		orders:       make(map[OrderID]*orderEntry, orderCapacity),
		levels:       newLevelArena(levelCapacity),
		slotCapacity: defaultSlotCapacity,
		listener:     NopListener{},
		clock:        time.Now,
		tradeID:      uuid.New,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ---------------- Commands ---------------- //

// Submit validates o, matches it and rests any remainder its type allows.
// Trades are returned oldest first. A killed FOK order or a discarded
// Market/IOC remainder is not an error.
func (b *OrderBook) Submit(o Order) ([]Trade, error) {
	if err := b.validate(&o); err != nil {
		return nil, err
	}
	o.ExecutedQty = 0
	o.RemainingQty = o.OriginalQty
	o.Status = New

	switch o.Type {
	case Limit, GoodTillCancel:
		trades, err := b.match(&o)
		if err != nil {
			return trades, err
		}
		if o.RemainingQty > 0 {
			if err := b.rest(o); err != nil {
				return trades, err
			}
		}
		return trades, nil

	case Market, ImmediateOrCancel:
		return b.match(&o)

	case FillOrKill:
		// Exact equality is not enough: the book must hold strictly more.
		if b.available(&o) <= o.OriginalQty {
			return nil, nil
		}
		return b.match(&o)
	}
	return nil, &InvalidOrderError{OrderID: o.ID, Reason: "unknown order type"}
}

// Cancel removes a resting order.
func (b *OrderBook) Cancel(id OrderID) error {
	entry, ok := b.orders[id]
	if !ok {
		return &OrderNotFoundError{OrderID: id}
	}
	lvl := b.levels.get(entry.level)
	if lvl == nil {
		return &PriceLevelNotFoundError{Price: entry.order.Price}
	}

	lvl.Remove(entry.slot, &entry.order)
	delete(b.orders, id)

	canceled := entry.order
	canceled.Status = Canceled
	b.listener.OrderCanceled(canceled)

	if lvl.Empty() {
		return b.removeLevel(canceled.Side, canceled.Price, entry.level)
	}
	return nil
}

// Restore rests a previously accepted order without matching it. It is
// used to rebuild a book from a snapshot and keeps the order's executed
// quantity and timestamp.
func (b *OrderBook) Restore(o Order) error {
	if err := b.validate(&o); err != nil {
		return err
	}
	if !o.Type.Rests() {
		return &InvalidOrderError{OrderID: o.ID, Reason: "order type never rests"}
	}
	if o.RemainingQty == 0 || o.ExecutedQty+o.RemainingQty != o.OriginalQty {
		return &InvalidQuantityError{Quantity: o.RemainingQty}
	}
	if b.crosses(&o) {
		return &InvalidOrderError{OrderID: o.ID, Reason: "order crosses the book"}
	}
	if o.ExecutedQty > 0 {
		o.Status = PartiallyFilled
	} else {
		o.Status = New
	}
	return b.rest(o)
}

// Validate reports the error Submit would return for o before matching,
// without changing the book.
func (b *OrderBook) Validate(o Order) error {
	return b.validate(&o)
}

func (b *OrderBook) validate(o *Order) error {
	if _, ok := b.orders[o.ID]; ok {
		return &OrderAlreadyExistsError{OrderID: o.ID}
	}
	if o.OriginalQty == 0 {
		return &InvalidQuantityError{Quantity: o.OriginalQty}
	}
	if o.Side != Buy && o.Side != Sell {
		return &InvalidOrderError{OrderID: o.ID, Reason: "unknown side"}
	}
	if o.Type > FillOrKill {
		return &InvalidOrderError{OrderID: o.ID, Reason: "unknown order type"}
	}
	if o.Type.Priced() && o.Price < 0 {
		return &InvalidPriceError{Price: o.Price}
	}
	return nil
}

// ---------------- Book maintenance ---------------- //

func (b *OrderBook) index(side Side) *btree.Map[Price, int] {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// rest appends o to the tail of its price level, creating the level on
// first use.
func (b *OrderBook) rest(o Order) error {
	index := b.index(o.Side)
	idx, ok := index.Get(o.Price)
	if !ok {
		idx = b.levels.alloc(o.Price, b.slotCapacity)
		index.Set(o.Price, idx)
	}
	lvl := b.levels.get(idx)
	if lvl == nil {
		return &PriceLevelNotFoundError{Price: o.Price}
	}

	slot := lvl.Add(&o)
	b.orders[o.ID] = &orderEntry{order: o, level: idx, slot: slot}
	b.listener.OrderAdded(o)
	return nil
}

// removeLevel tears down an empty level and frees its arena index.
func (b *OrderBook) removeLevel(side Side, price Price, idx int) error {
	if _, ok := b.index(side).Delete(price); !ok {
		return &PriceLevelNotFoundError{Price: price}
	}
	b.levels.release(idx)
	b.listener.LevelRemoved(side, price)
	return nil
}

func (b *OrderBook) crosses(o *Order) bool {
	best, _, ok := b.best(o.Side.Opposite())
	return ok && marketable(o, best)
}

// ---------------- Queries ---------------- //

func (b *OrderBook) BestBid() (Price, bool) {
	p, _, ok := b.bids.Max()
	return p, ok
}

func (b *OrderBook) BestAsk() (Price, bool) {
	p, _, ok := b.asks.Min()
	return p, ok
}

// Order returns the current value of a resting order.
func (b *OrderBook) Order(id OrderID) (Order, bool) {
	entry, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return entry.order, true
}

// Len is the number of resting orders.
func (b *OrderBook) Len() int { return len(b.orders) }

// Levels is the number of live price levels on one side.
func (b *OrderBook) Levels(side Side) int { return b.index(side).Len() }

// BookDepth is an aggregated view of both sides, best price first.
type BookDepth struct {
	Bids []LevelInfo
	Asks []LevelInfo
}

// Depth returns up to n levels per side. n <= 0 returns every level.
func (b *OrderBook) Depth(n int) BookDepth {
	var d BookDepth
	collect := func(out *[]LevelInfo) func(Price, int) bool {
		return func(_ Price, idx int) bool {
			if lvl := b.levels.get(idx); lvl != nil {
				*out = append(*out, lvl.Info())
			}
			return n <= 0 || len(*out) < n
		}
	}
	b.bids.Reverse(collect(&d.Bids))
	b.asks.Scan(collect(&d.Asks))
	return d
}

// Walk visits resting orders in priority order: bids best to worst, then
// asks best to worst, FIFO within a level. It stops when fn returns false.
func (b *OrderBook) Walk(fn func(o Order) bool) {
	more := true
	visit := func(_ Price, idx int) bool {
		lvl := b.levels.get(idx)
		if lvl == nil {
			return true
		}
		lvl.Each(func(id OrderID, _ int) bool {
			if entry, ok := b.orders[id]; ok {
				more = fn(entry.order)
			}
			return more
		})
		return more
	}
	b.bids.Reverse(visit)
	if more {
		b.asks.Scan(visit)
	}
}

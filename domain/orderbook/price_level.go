package orderbook

const noSlot = -1

// slot is one FIFO entry. Entries are linked by index so a freed slot can
// be unlinked in O(1) and reused by the next insertion.
type slot struct {
	id         OrderID
	prev, next int
	used       bool
}

// PriceLevel is a FIFO queue of order ids resting at a single price.
// It stores ids only; the book's order table owns the order values.
type PriceLevel struct {
	price Price

	slots []slot
	free  []int
	head  int
	tail  int

	volume Quantity
	count  int
}

// LevelInfo is a market data view of one level.
type LevelInfo struct {
	Price  Price
	Volume Quantity
}

func NewPriceLevel(price Price, capacity int) *PriceLevel {
	if capacity < 0 {
		capacity = 0
	}
	return &PriceLevel{
		price: price,
		slots: make([]slot, 0, capacity),
		head:  noSlot,
		tail:  noSlot,
	}
}

// Add appends o at the tail and returns its slot.
func (l *PriceLevel) Add(o *Order) int {
	var idx int
	if n := len(l.free); n > 0 {
		idx = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		idx = len(l.slots)
		l.slots = append(l.slots, slot{})
	}

	l.slots[idx] = slot{id: o.ID, prev: l.tail, next: noSlot, used: true}
	if l.tail != noSlot {
		l.slots[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx

	l.volume += o.RemainingQty
	l.count++
	return idx
}

// Remove unlinks the slot holding o. o must carry its current remaining
// quantity or the level volume drifts.
func (l *PriceLevel) Remove(idx int, o *Order) {
	s := &l.slots[idx]
	if !s.used {
		return
	}
	if s.prev != noSlot {
		l.slots[s.prev].next = s.next
	} else {
		l.head = s.next
	}
	if s.next != noSlot {
		l.slots[s.next].prev = s.prev
	} else {
		l.tail = s.prev
	}
	*s = slot{prev: noSlot, next: noSlot}
	l.free = append(l.free, idx)

	l.volume -= o.RemainingQty
	l.count--
}

// Fill reduces the level volume after a partial fill of one of its orders.
func (l *PriceLevel) Fill(qty Quantity) {
	l.volume -= qty
}

// Front returns the oldest active order id.
func (l *PriceLevel) Front() (OrderID, int, bool) {
	if l.head == noSlot {
		return OrderID{}, noSlot, false
	}
	return l.slots[l.head].id, l.head, true
}

// Each visits active orders oldest first until fn returns false.
func (l *PriceLevel) Each(fn func(id OrderID, slot int) bool) {
	for i := l.head; i != noSlot; i = l.slots[i].next {
		if !fn(l.slots[i].id, i) {
			return
		}
	}
}

func (l *PriceLevel) Info() LevelInfo {
	return LevelInfo{Price: l.price, Volume: l.volume}
}

func (l *PriceLevel) Price() Price { return l.price }
func (l *PriceLevel) Volume() Quantity { return l.volume }
func (l *PriceLevel) Count() int { return l.count }
func (l *PriceLevel) Empty() bool { return l.count == 0 }
func (l *PriceLevel) capacity() int { return len(l.slots) }

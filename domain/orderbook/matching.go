package orderbook

// match crosses o against the opposite side until o is filled, the side
// is empty or the best opposing price is no longer marketable. o is
// updated in place with its executed and remaining quantity.
func (b *OrderBook) match(o *Order) ([]Trade, error) {
	var trades []Trade
	opposite := o.Side.Opposite()

	for o.RemainingQty > 0 {
		price, idx, ok := b.best(opposite)
		if !ok || !marketable(o, price) {
			break
		}
		trade, err := b.matchFront(o, price, idx)
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// matchFront trades o against the oldest order of the level at idx.
func (b *OrderBook) matchFront(o *Order, price Price, idx int) (Trade, error) {
	lvl := b.levels.get(idx)
	if lvl == nil {
		return Trade{}, &PriceLevelNotFoundError{Price: price}
	}
	id, slot, ok := lvl.Front()
	if !ok {
		return Trade{}, &PriceLevelNotFoundError{Price: price}
	}
	entry, ok := b.orders[id]
	if !ok {
		return Trade{}, &OrderNotFoundError{OrderID: id}
	}

	resting := entry.order
	qty := min(o.RemainingQty, resting.RemainingQty)

	updated, err := resting.Fill(qty)
	if err != nil {
		return Trade{}, err
	}
	aggressor, err := o.Fill(qty)
	if err != nil {
		return Trade{}, err
	}
	trade := newTrade(b.tradeID(), o, &resting, qty, b.clock())

	if updated.IsFilled() {
		lvl.Remove(slot, &resting)
		delete(b.orders, id)
	} else {
		lvl.Fill(qty)
		entry.order = updated
	}
	*o = aggressor
	b.listener.OrderMatched(trade)

	if lvl.Empty() {
		if err := b.removeLevel(resting.Side, price, idx); err != nil {
			return trade, err
		}
	}
	return trade, nil
}

func (b *OrderBook) best(side Side) (Price, int, bool) {
	if side == Buy {
		return b.bids.Max()
	}
	return b.asks.Min()
}

// marketable reports whether o may trade at the opposing price best.
func marketable(o *Order, best Price) bool {
	if !o.Type.Priced() {
		return true
	}
	if o.Side == Buy {
		return o.Price >= best
	}
	return o.Price <= best
}

// available sums opposing volume at prices o may trade at. The scan stops
// as soon as the total exceeds o's quantity, which is all a fill-or-kill
// check needs to know.
func (b *OrderBook) available(o *Order) Quantity {
	var total Quantity
	visit := func(price Price, idx int) bool {
		if !marketable(o, price) {
			return false
		}
		if lvl := b.levels.get(idx); lvl != nil {
			total += lvl.Volume()
		}
		return total <= o.OriginalQty
	}
	if o.Side == Buy {
		b.asks.Scan(visit)
	} else {
		b.bids.Reverse(visit)
	}
	return total
}

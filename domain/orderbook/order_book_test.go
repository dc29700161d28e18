package orderbook

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBook(opts ...Option) *OrderBook {
	return New(16, 64, opts...)
}

func submit(t *testing.T, b *OrderBook, o Order) []Trade {
	t.Helper()
	trades, err := b.Submit(o)
	require.NoError(t, err)
	checkInvariants(t, b)
	return trades
}

func quantities(trades []Trade) []Quantity {
	out := make([]Quantity, 0, len(trades))
	for _, tr := range trades {
		out = append(out, tr.Quantity)
	}
	return out
}

func TestLimitOrderRests(t *testing.T) {
	b := newTestBook()
	o := NewOrder(Limit, Buy, 10, 10)
	trades := submit(t, b, o)
	assert.Empty(t, trades)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, Price(10), bid)
	_, ok = b.BestAsk()
	assert.False(t, ok)

	got, ok := b.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, New, got.Status)
	assert.Equal(t, Quantity(10), got.RemainingQty)
}

func TestBestBidAskAcrossLevels(t *testing.T) {
	b := newTestBook()
	for _, o := range []Order{
		NewOrder(Limit, Buy, 9, 10),
		NewOrder(Limit, Buy, 8, 5),
		NewOrder(GoodTillCancel, Buy, 7, 3),
		NewOrder(Limit, Sell, 10, 10),
		NewOrder(Limit, Sell, 11, 5),
		NewOrder(GoodTillCancel, Sell, 12, 3),
	} {
		submit(t, b, o)
	}
	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.Equal(t, Price(9), bid)
	assert.Equal(t, Price(10), ask)
	assert.Equal(t, 3, b.Levels(Buy))
	assert.Equal(t, 3, b.Levels(Sell))
}

func TestMarketOrderCrossesSingleLevel(t *testing.T) {
	b := newTestBook()
	buy := NewOrder(Limit, Buy, 10, 10)
	submit(t, b, buy)

	sell := NewOrder(Market, Sell, 0, 10)
	trades := submit(t, b, sell)
	require.Len(t, trades, 1)
	assert.Equal(t, Price(10), trades[0].Price)
	assert.Equal(t, Quantity(10), trades[0].Quantity)
	assert.Equal(t, buy.ID, trades[0].BidOrderID)
	assert.Equal(t, sell.ID, trades[0].AskOrderID)

	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)
	assert.Zero(t, b.Len())
}

func TestMarketOrderSweepsLevelsAndLeavesRemainder(t *testing.T) {
	b := newTestBook()
	submit(t, b, NewOrder(Limit, Buy, 9, 3))
	submit(t, b, NewOrder(Limit, Buy, 8, 5))
	last := NewOrder(Limit, Buy, 7, 10)
	submit(t, b, last)

	trades := submit(t, b, NewOrder(Market, Sell, 0, 10))
	assert.Equal(t, []Quantity{3, 5, 2}, quantities(trades))
	assert.Equal(t, []Price{9, 8, 7}, []Price{trades[0].Price, trades[1].Price, trades[2].Price})

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, Price(7), bid)

	rest, ok := b.Order(last.ID)
	require.True(t, ok)
	assert.Equal(t, Quantity(8), rest.RemainingQty)
	assert.Equal(t, Quantity(2), rest.ExecutedQty)
	assert.Equal(t, PartiallyFilled, rest.Status)
	assert.Equal(t, []LevelInfo{{Price: 7, Volume: 8}}, b.Depth(0).Bids)
}

func TestMarketOrderRemainderIsDiscarded(t *testing.T) {
	b := newTestBook()
	submit(t, b, NewOrder(Limit, Sell, 101, 4))

	buy := NewOrder(Market, Buy, 0, 10)
	trades := submit(t, b, buy)
	assert.Equal(t, []Quantity{4}, quantities(trades))
	_, ok := b.Order(buy.ID)
	assert.False(t, ok)
	assert.Zero(t, b.Len())

	trades = submit(t, b, NewOrder(Market, Sell, 0, 10))
	assert.Empty(t, trades)
	assert.Zero(t, b.Len())
}

func TestPriceTimePriorityWithinLevel(t *testing.T) {
	b := newTestBook()
	first := NewOrder(Limit, Buy, 50, 4)
	second := NewOrder(Limit, Buy, 50, 6)
	submit(t, b, first)
	submit(t, b, second)

	trades := submit(t, b, NewOrder(Limit, Sell, 50, 10))
	require.Len(t, trades, 2)
	assert.Equal(t, first.ID, trades[0].BidOrderID)
	assert.Equal(t, Quantity(4), trades[0].Quantity)
	assert.Equal(t, second.ID, trades[1].BidOrderID)
	assert.Equal(t, Quantity(6), trades[1].Quantity)
	assert.Zero(t, b.Len())
}

func TestPartialFillOfHeadKeepsPriority(t *testing.T) {
	b := newTestBook()
	first := NewOrder(Limit, Sell, 20, 10)
	second := NewOrder(Limit, Sell, 20, 10)
	submit(t, b, first)
	submit(t, b, second)

	submit(t, b, NewOrder(Limit, Buy, 20, 3))
	trades := submit(t, b, NewOrder(Limit, Buy, 20, 8))
	require.Len(t, trades, 2)
	assert.Equal(t, first.ID, trades[0].AskOrderID)
	assert.Equal(t, Quantity(7), trades[0].Quantity)
	assert.Equal(t, second.ID, trades[1].AskOrderID)
	assert.Equal(t, Quantity(1), trades[1].Quantity)
}

func TestAggressorGetsRestingPrice(t *testing.T) {
	b := newTestBook()
	submit(t, b, NewOrder(Limit, Sell, 100, 5))
	submit(t, b, NewOrder(Limit, Sell, 102, 5))

	buy := NewOrder(Limit, Buy, 105, 8)
	trades := submit(t, b, buy)
	require.Len(t, trades, 2)
	assert.Equal(t, Price(100), trades[0].Price)
	assert.Equal(t, Price(102), trades[1].Price)

	rest, ok := b.Order(trades[1].AskOrderID)
	require.True(t, ok)
	assert.Equal(t, Quantity(2), rest.RemainingQty)
	_, ok = b.Order(buy.ID)
	assert.False(t, ok, "fully filled aggressor must not rest")
}

func TestLimitRemainderRestsAtLimitPrice(t *testing.T) {
	b := newTestBook()
	submit(t, b, NewOrder(Limit, Sell, 100, 5))

	buy := NewOrder(Limit, Buy, 101, 8)
	trades := submit(t, b, buy)
	assert.Equal(t, []Quantity{5}, quantities(trades))

	rest, ok := b.Order(buy.ID)
	require.True(t, ok)
	assert.Equal(t, Price(101), rest.Price)
	assert.Equal(t, Quantity(3), rest.RemainingQty)
	assert.Equal(t, PartiallyFilled, rest.Status)
	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestLimitDoesNotCrossThroughItsPrice(t *testing.T) {
	b := newTestBook()
	submit(t, b, NewOrder(Limit, Sell, 100, 5))
	submit(t, b, NewOrder(Limit, Sell, 103, 5))

	trades := submit(t, b, NewOrder(Limit, Buy, 101, 20))
	assert.Equal(t, []Quantity{5}, quantities(trades))
	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.Equal(t, Price(101), bid)
	assert.Equal(t, Price(103), ask)
}

func TestImmediateOrCancel(t *testing.T) {
	t.Run("matches then discards remainder", func(t *testing.T) {
		b := newTestBook()
		submit(t, b, NewOrder(Limit, Sell, 100, 4))
		submit(t, b, NewOrder(Limit, Sell, 105, 4))

		ioc := NewOrder(ImmediateOrCancel, Buy, 100, 10)
		trades := submit(t, b, ioc)
		assert.Equal(t, []Quantity{4}, quantities(trades))
		_, ok := b.Order(ioc.ID)
		assert.False(t, ok)
		_, ok = b.BestBid()
		assert.False(t, ok)
		ask, _ := b.BestAsk()
		assert.Equal(t, Price(105), ask)
	})

	t.Run("no liquidity", func(t *testing.T) {
		b := newTestBook()
		trades := submit(t, b, NewOrder(ImmediateOrCancel, Buy, 100, 5))
		assert.Empty(t, trades)
		assert.Zero(t, b.Len())
	})
}

func TestFillOrKillBoundary(t *testing.T) {
	tests := []struct {
		name      string
		resting   []Quantity
		qty       Quantity
		wantFills []Quantity
	}{
		{name: "insufficient", resting: []Quantity{3}, qty: 5},
		{name: "exactly equal is rejected", resting: []Quantity{2, 3}, qty: 5},
		{name: "strictly more fills", resting: []Quantity{2, 4}, qty: 5, wantFills: []Quantity{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBook()
			for i, q := range tt.resting {
				submit(t, b, NewOrder(Limit, Sell, Price(100+i), q))
			}
			before := b.Depth(0)

			fok := NewOrder(FillOrKill, Buy, 110, tt.qty)
			trades := submit(t, b, fok)
			_, ok := b.Order(fok.ID)
			assert.False(t, ok, "fill-or-kill never rests")

			if tt.wantFills == nil {
				assert.Empty(t, trades)
				assert.Equal(t, before, b.Depth(0))
				return
			}
			assert.Equal(t, tt.wantFills, quantities(trades))
		})
	}
}

func TestFillOrKillIgnoresVolumeBeyondLimit(t *testing.T) {
	b := newTestBook()
	submit(t, b, NewOrder(Limit, Buy, 100, 3))
	submit(t, b, NewOrder(Limit, Buy, 90, 50))

	trades := submit(t, b, NewOrder(FillOrKill, Sell, 95, 2))
	assert.Equal(t, []Quantity{2}, quantities(trades))

	trades = submit(t, b, NewOrder(FillOrKill, Sell, 95, 5))
	assert.Empty(t, trades)
	assert.Equal(t, 2, b.Len())
}

func TestSubmitValidation(t *testing.T) {
	b := newTestBook()
	resting := NewOrder(Limit, Buy, 10, 5)
	submit(t, b, resting)
	before := b.Depth(0)

	t.Run("duplicate id", func(t *testing.T) {
		dup := NewOrder(Limit, Sell, 10, 5)
		dup.ID = resting.ID
		trades, err := b.Submit(dup)
		require.ErrorIs(t, err, ErrOrderAlreadyExists)
		var target *OrderAlreadyExistsError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, resting.ID, target.OrderID)
		assert.Empty(t, trades)
		assert.Equal(t, before, b.Depth(0))
		assert.Equal(t, 1, b.Len())
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := b.Submit(NewOrder(Limit, Sell, 10, 0))
		require.ErrorIs(t, err, ErrInvalidQuantity)
		assert.Equal(t, before, b.Depth(0))
	})

	t.Run("negative price", func(t *testing.T) {
		_, err := b.Submit(NewOrder(Limit, Sell, -1, 1))
		var target *InvalidPriceError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, Price(-1), target.Price)
		assert.Equal(t, before, b.Depth(0))
	})

	t.Run("market ignores price", func(t *testing.T) {
		_, err := b.Submit(NewOrder(Market, Buy, -1, 1))
		require.NoError(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := b.Submit(NewOrder(OrderType(42), Buy, 10, 1))
		require.ErrorIs(t, err, ErrInvalidOrder)
	})

	t.Run("unknown side", func(t *testing.T) {
		_, err := b.Submit(NewOrder(Limit, Side(9), 10, 1))
		require.ErrorIs(t, err, ErrInvalidOrder)
	})
}

func TestSubmitResetsQuantities(t *testing.T) {
	b := newTestBook()
	o := NewOrder(Limit, Buy, 10, 5)
	o.ExecutedQty = 4
	o.RemainingQty = 1
	o.Status = Filled
	submit(t, b, o)

	got, ok := b.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, Quantity(5), got.RemainingQty)
	assert.Zero(t, got.ExecutedQty)
	assert.Equal(t, New, got.Status)
}

func TestResubmitAfterFillIsAllowed(t *testing.T) {
	b := newTestBook()
	o := NewOrder(Limit, Buy, 10, 5)
	submit(t, b, o)
	submit(t, b, NewOrder(Market, Sell, 0, 5))
	_, err := b.Submit(o)
	assert.NoError(t, err)
}

func TestCancel(t *testing.T) {
	b := newTestBook()
	a := NewOrder(Limit, Buy, 10, 1)
	m := NewOrder(Limit, Buy, 10, 2)
	c := NewOrder(Limit, Buy, 10, 4)
	submit(t, b, a)
	submit(t, b, m)
	submit(t, b, c)

	require.NoError(t, b.Cancel(m.ID))
	checkInvariants(t, b)

	entry := b.orders[a.ID]
	lvl := b.levels.get(entry.level)
	assert.Equal(t, 2, lvl.Count())
	assert.Equal(t, Quantity(5), lvl.Volume())
	assert.Equal(t, []OrderID{a.ID, c.ID}, levelIDs(lvl))

	err := b.Cancel(m.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
	var target *OrderNotFoundError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, m.ID, target.OrderID)

	require.NoError(t, b.Cancel(a.ID))
	require.NoError(t, b.Cancel(c.ID))
	checkInvariants(t, b)
	_, ok := b.BestBid()
	assert.False(t, ok)
	assert.Zero(t, b.Levels(Buy))
}

func TestCancelSellSide(t *testing.T) {
	b := newTestBook()
	bid := NewOrder(Limit, Buy, 10, 1)
	ask := NewOrder(Limit, Sell, 12, 1)
	submit(t, b, bid)
	submit(t, b, ask)

	require.NoError(t, b.Cancel(ask.ID))
	checkInvariants(t, b)
	_, ok := b.BestAsk()
	assert.False(t, ok)
	best, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, Price(10), best)
}

func TestCancelPartiallyFilledOrderReleasesRemainingVolume(t *testing.T) {
	b := newTestBook()
	o := NewOrder(Limit, Sell, 10, 10)
	other := NewOrder(Limit, Sell, 10, 5)
	submit(t, b, o)
	submit(t, b, other)
	submit(t, b, NewOrder(Market, Buy, 0, 4))

	require.NoError(t, b.Cancel(o.ID))
	checkInvariants(t, b)
	assert.Equal(t, []LevelInfo{{Price: 10, Volume: 5}}, b.Depth(0).Asks)
}

func TestSamePriceOnBothSides(t *testing.T) {
	b := newTestBook()
	ask := NewOrder(Limit, Sell, 10, 5)
	submit(t, b, ask)
	require.NoError(t, b.Cancel(ask.ID))

	submit(t, b, NewOrder(Limit, Buy, 10, 5))
	submit(t, b, NewOrder(Limit, Sell, 11, 5))
	submit(t, b, NewOrder(Limit, Buy, 9, 5))
	bid, _ := b.BestBid()
	assert.Equal(t, Price(10), bid)
}

func TestArenaReusesFreedIndex(t *testing.T) {
	b := newTestBook()
	low := NewOrder(Limit, Buy, 100, 1)
	high := NewOrder(Limit, Buy, 101, 1)
	submit(t, b, low)
	submit(t, b, high)
	require.Equal(t, 2, b.levels.size())
	freed := b.orders[low.ID].level

	require.NoError(t, b.Cancel(low.ID))
	ask := NewOrder(Limit, Sell, 200, 1)
	submit(t, b, ask)

	assert.Equal(t, freed, b.orders[ask.ID].level)
	assert.Equal(t, 2, b.levels.size())
}

func TestArenaDoesNotGrowUnderChurn(t *testing.T) {
	b := newTestBook()
	anchor := NewOrder(Limit, Sell, 1_000, 1)
	submit(t, b, anchor)

	for i := 0; i < 500; i++ {
		o := NewOrder(Limit, Buy, Price(100+i), 3)
		submit(t, b, o)
		if i%2 == 0 {
			require.NoError(t, b.Cancel(o.ID))
		} else {
			trades := submit(t, b, NewOrder(Market, Sell, 0, 3))
			require.Len(t, trades, 1)
		}
	}
	assert.Equal(t, 2, b.levels.size())
	assert.Equal(t, 1, b.Len())
}

func TestTradeIDsAndClock(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000042")
	b := newTestBook(
		WithClock(func() time.Time { return at }),
		WithTradeIDs(func() uuid.UUID { return id }),
	)
	submit(t, b, NewOrder(Limit, Sell, 10, 1))
	trades := submit(t, b, NewOrder(Limit, Buy, 10, 1))
	require.Len(t, trades, 1)
	assert.Equal(t, id, trades[0].ID)
	assert.Equal(t, at, trades[0].Timestamp)
}

func TestDepthLimitsLevels(t *testing.T) {
	b := newTestBook()
	for i := 0; i < 5; i++ {
		submit(t, b, NewOrder(Limit, Buy, Price(10+i), 1))
		submit(t, b, NewOrder(Limit, Buy, Price(10+i), 2))
		submit(t, b, NewOrder(Limit, Sell, Price(20+i), 1))
	}
	d := b.Depth(2)
	assert.Equal(t, []LevelInfo{{Price: 14, Volume: 3}, {Price: 13, Volume: 3}}, d.Bids)
	assert.Equal(t, []LevelInfo{{Price: 20, Volume: 1}, {Price: 21, Volume: 1}}, d.Asks)
	assert.Len(t, b.Depth(0).Bids, 5)
}

func TestWalkPriorityOrder(t *testing.T) {
	b := newTestBook()
	b1 := NewOrder(Limit, Buy, 10, 1)
	b2 := NewOrder(Limit, Buy, 11, 1)
	b3 := NewOrder(Limit, Buy, 11, 1)
	a1 := NewOrder(Limit, Sell, 13, 1)
	a2 := NewOrder(Limit, Sell, 12, 1)
	for _, o := range []Order{b1, b2, b3, a1, a2} {
		submit(t, b, o)
	}

	var ids []OrderID
	b.Walk(func(o Order) bool {
		ids = append(ids, o.ID)
		return true
	})
	assert.Equal(t, []OrderID{b2.ID, b3.ID, b1.ID, a2.ID, a1.ID}, ids)

	ids = ids[:0]
	b.Walk(func(o Order) bool {
		ids = append(ids, o.ID)
		return len(ids) < 2
	})
	assert.Len(t, ids, 2)
}

func TestRestore(t *testing.T) {
	b := newTestBook()
	submit(t, b, NewOrder(Limit, Sell, 20, 5))

	o := NewOrder(Limit, Buy, 15, 10)
	o.ExecutedQty, o.RemainingQty = 4, 6
	require.NoError(t, b.Restore(o))
	checkInvariants(t, b)

	got, ok := b.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, PartiallyFilled, got.Status)
	assert.Equal(t, Quantity(6), got.RemainingQty)

	t.Run("rejects crossing order", func(t *testing.T) {
		err := b.Restore(NewOrder(Limit, Buy, 20, 1))
		require.ErrorIs(t, err, ErrInvalidOrder)
	})
	t.Run("rejects inconsistent quantities", func(t *testing.T) {
		bad := NewOrder(Limit, Buy, 10, 10)
		bad.RemainingQty = 3
		require.ErrorIs(t, b.Restore(bad), ErrInvalidQuantity)
	})
	t.Run("rejects non resting type", func(t *testing.T) {
		require.ErrorIs(t, b.Restore(NewOrder(ImmediateOrCancel, Buy, 10, 1)), ErrInvalidOrder)
	})
	t.Run("rejects duplicate", func(t *testing.T) {
		require.ErrorIs(t, b.Restore(o), ErrOrderAlreadyExists)
	})
}

type recordingListener struct {
	added    []OrderID
	matched  []Trade
	canceled []Order
	removed  []Price
}

func (r *recordingListener) OrderAdded(o Order) { r.added = append(r.added, o.ID) }
func (r *recordingListener) OrderMatched(t Trade) { r.matched = append(r.matched, t) }
func (r *recordingListener) OrderCanceled(o Order) { r.canceled = append(r.canceled, o) }
func (r *recordingListener) LevelRemoved(_ Side, p Price) { r.removed = append(r.removed, p) }

func TestListenerEvents(t *testing.T) {
	rec := &recordingListener{}
	b := newTestBook(WithListener(rec))

	a := NewOrder(Limit, Buy, 10, 5)
	c := NewOrder(Limit, Buy, 9, 5)
	submit(t, b, a)
	submit(t, b, c)
	submit(t, b, NewOrder(Limit, Sell, 10, 5))
	require.NoError(t, b.Cancel(c.ID))

	assert.Equal(t, []OrderID{a.ID, c.ID}, rec.added)
	require.Len(t, rec.matched, 1)
	require.Len(t, rec.canceled, 1)
	assert.Equal(t, Canceled, rec.canceled[0].Status)
	assert.Equal(t, []Price{10, 9}, rec.removed)
}

func TestValidateMatchesSubmitWithoutChangingBook(t *testing.T) {
	b := newTestBook()
	resting := NewOrder(Limit, Sell, 100, 5)
	submit(t, b, resting)

	dup := NewOrder(Limit, Buy, 100, 1)
	dup.ID = resting.ID
	unknown := NewOrder(Limit, Buy, 100, 1)
	unknown.Type = OrderType(9)

	tests := []struct {
		name  string
		order Order
		want  error
	}{
		{"valid crossing order", NewOrder(Limit, Buy, 100, 2), nil},
		{"duplicate", dup, ErrOrderAlreadyExists},
		{"zero quantity", NewOrder(Limit, Buy, 100, 0), ErrInvalidQuantity},
		{"negative price", NewOrder(GoodTillCancel, Buy, -1, 1), ErrInvalidPrice},
		{"unknown type", unknown, ErrInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := b.Depth(0)
			err := b.Validate(tt.order)
			if tt.want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.want)
				_, subErr := b.Submit(tt.order)
				require.ErrorIs(t, subErr, tt.want)
			}
			assert.Equal(t, before, b.Depth(0))
			assert.Equal(t, 1, b.Len())
		})
	}
}

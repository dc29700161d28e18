package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"

	"matchbook/domain/orderbook"
)

type result struct {
	name    string
	ops     uint64
	trades  uint64
	elapsed time.Duration
}

func (r result) perSecond(n uint64) uint64 {
	if r.elapsed <= 0 {
		return 0
	}
	return uint64(float64(n) / r.elapsed.Seconds())
}

func (r result) print(w io.Writer) {
	fmt.Fprintf(w, "%s %s orders:\n", r.name, humanize.Comma(int64(r.ops)))
	fmt.Fprintf(w, "  Time: %.2f ms\n", float64(r.elapsed.Microseconds())/1000)
	if r.trades > 0 {
		fmt.Fprintf(w, "  Trades executed: %s\n", humanize.Comma(int64(r.trades)))
		fmt.Fprintf(w, "  Trade rate: %s trades/sec\n", humanize.Comma(int64(r.perSecond(r.trades))))
	}
	fmt.Fprintf(w, "  Throughput: %s ops/sec\n", humanize.Comma(int64(r.perSecond(r.ops))))
	if r.ops > 0 {
		fmt.Fprintf(w, "  Latency: %.3f µs/op\n\n", float64(r.elapsed.Nanoseconds())/1000/float64(r.ops))
	}
}

// benchAdd rests GTC orders on both sides of a book that never crosses:
// bids in [90, 110], asks in [111, 120].
func benchAdd(n uint64, rng *rand.Rand) (result, error) {
	book := orderbook.New(4096, int(n))
	orders := make([]orderbook.Order, n)
	for i := range orders {
		side, price := orderbook.Buy, orderbook.Price(90+rng.IntN(21))
		if rng.IntN(2) == 0 {
			side, price = orderbook.Sell, orderbook.Price(111+rng.IntN(10))
		}
		orders[i] = orderbook.NewOrder(orderbook.GoodTillCancel, side, price, orderbook.Quantity(1+rng.IntN(100)))
	}

	start := time.Now()
	for _, o := range orders {
		if _, err := book.Submit(o); err != nil {
			return result{}, err
		}
	}
	return result{name: "Add", ops: n, elapsed: time.Since(start)}, nil
}

// benchCancel rests n orders at one price and cancels them all.
func benchCancel(n uint64) (result, error) {
	book := orderbook.New(1024, int(n))
	ids := make([]orderbook.OrderID, n)
	for i := range ids {
		o := orderbook.NewOrder(orderbook.GoodTillCancel, orderbook.Buy, 100, 10)
		if _, err := book.Submit(o); err != nil {
			return result{}, err
		}
		ids[i] = o.ID
	}

	start := time.Now()
	for _, id := range ids {
		if err := book.Cancel(id); err != nil {
			return result{}, err
		}
	}
	return result{name: "Cancel", ops: n, elapsed: time.Since(start)}, nil
}

// benchMatch rests n/2 bids at one price, then sends n/2 crossing asks.
func benchMatch(n uint64, rng *rand.Rand) (result, error) {
	book := orderbook.New(1024, int(n))
	half := n / 2
	for i := uint64(0); i < half; i++ {
		o := orderbook.NewOrder(orderbook.GoodTillCancel, orderbook.Buy, 100, orderbook.Quantity(1+rng.IntN(100)))
		if _, err := book.Submit(o); err != nil {
			return result{}, err
		}
	}
	asks := make([]orderbook.Order, half)
	for i := range asks {
		asks[i] = orderbook.NewOrder(orderbook.GoodTillCancel, orderbook.Sell, 100, orderbook.Quantity(1+rng.IntN(100)))
	}

	var trades uint64
	start := time.Now()
	for _, o := range asks {
		ts, err := book.Submit(o)
		if err != nil {
			return result{}, err
		}
		trades += uint64(len(ts))
	}
	return result{name: "Match", ops: half, trades: trades, elapsed: time.Since(start)}, nil
}

package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"matchbook/domain/orderbook"
	"matchbook/infra/metrics"
	"matchbook/infra/sequence"
	entrywal "matchbook/infra/wal/entry"
	exitwal "matchbook/infra/wal/exit"
	"matchbook/snapshot"
)

type harness struct {
	dir     string
	svc     *OrderService
	entry   *entrywal.WAL
	exit    *exitwal.ExitWAL
	metrics *metrics.Metrics
}

func (h *harness) walDir() string      { return filepath.Join(h.dir, "wal") }
func (h *harness) snapshotDir() string { return filepath.Join(h.dir, "snapshots") }

func (h *harness) close(t *testing.T) {
	t.Helper()
	require.NoError(t, h.entry.Close())
	require.NoError(t, h.exit.Close())
}

func newHarness(t *testing.T, dir string) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := &harness{dir: dir, metrics: metrics.New("test")}

	var err error
	h.entry, err = entrywal.Open(entrywal.Config{Dir: h.walDir(), SegmentSize: 512, Logger: log})
	require.NoError(t, err)
	h.exit, err = exitwal.Open(filepath.Join(dir, "outbox"), log)
	require.NoError(t, err)

	book := orderbook.New(64, 256, orderbook.WithListener(NewBookListener(log)))
	h.svc = NewOrderService(book, sequence.New(0), h.entry, h.exit,
		WithLogger(log),
		WithMetrics(h.metrics),
	)
	return h
}

func place(t *testing.T, svc *OrderService, typ orderbook.OrderType, side orderbook.Side, price orderbook.Price, qty orderbook.Quantity) *PlaceResult {
	t.Helper()
	res, err := svc.Submit(context.Background(), PlaceRequest{Side: side, Type: typ, Price: price, Quantity: qty})
	require.NoError(t, err)
	return res
}

func TestSubmitCrossingWritesOutbox(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close(t)

	bid := place(t, h.svc, orderbook.Limit, orderbook.Buy, 100, 10)
	assert.True(t, bid.Resting)
	assert.NotEqual(t, uuid.Nil, bid.Order.ID)
	assert.Equal(t, uint64(1), bid.Seq)

	ask := place(t, h.svc, orderbook.Limit, orderbook.Sell, 99, 4)
	require.Len(t, ask.Trades, 1)
	assert.False(t, ask.Resting)
	assert.Equal(t, orderbook.Filled, ask.Order.Status)
	assert.Equal(t, orderbook.Price(100), ask.Trades[0].Price)

	var events []TradeEvent
	require.NoError(t, h.exit.ScanPending(func(rec *exitwal.ExitRecord) error {
		var ev TradeEvent
		require.NoError(t, json.Unmarshal(rec.Payload, &ev))
		events = append(events, ev)
		return nil
	}))
	require.Len(t, events, 1)
	assert.Equal(t, "trade", events[0].Type)
	assert.Equal(t, ask.Seq, events[0].Seq)
	assert.Equal(t, bid.Order.ID.String(), events[0].BidOrderID)
	assert.Equal(t, ask.Order.ID.String(), events[0].AskOrderID)
	assert.Equal(t, uint64(4), events[0].Quantity)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Trades))
	assert.Equal(t, 4.0, testutil.ToFloat64(h.metrics.TradedQuantity))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RestingOrders))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OrdersSubmitted.WithLabelValues("limit", "sell")))
}

func TestSubmitDiscardedRemainder(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close(t)

	place(t, h.svc, orderbook.Limit, orderbook.Sell, 100, 3)
	res := place(t, h.svc, orderbook.ImmediateOrCancel, orderbook.Buy, 100, 5)
	assert.False(t, res.Resting)
	assert.Equal(t, orderbook.Canceled, res.Order.Status)
	assert.Equal(t, orderbook.Quantity(3), res.Order.ExecutedQty)
	assert.Equal(t, orderbook.Quantity(2), res.Order.RemainingQty)
}

func TestSubmitRejections(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close(t)

	first := place(t, h.svc, orderbook.Limit, orderbook.Buy, 100, 1)
	walSeq := h.entry.LastSeq()

	_, err := h.svc.Submit(context.Background(), PlaceRequest{ID: first.Order.ID, Side: orderbook.Sell, Type: orderbook.Limit, Price: 200, Quantity: 1})
	require.ErrorIs(t, err, orderbook.ErrOrderAlreadyExists)
	assert.Equal(t, walSeq, h.entry.LastSeq(), "duplicates are refused before logging")

	_, err = h.svc.Submit(context.Background(), PlaceRequest{Side: orderbook.Sell, Type: orderbook.Limit, Price: 200})
	require.ErrorIs(t, err, orderbook.ErrInvalidQuantity)

	_, err = h.svc.Submit(context.Background(), PlaceRequest{Side: orderbook.Sell, Type: orderbook.Limit, Price: -5, Quantity: 1})
	require.ErrorIs(t, err, orderbook.ErrInvalidPrice)

	_, err = h.svc.Submit(context.Background(), PlaceRequest{Side: orderbook.Buy, Type: orderbook.OrderType(42), Price: 1, Quantity: 1})
	require.ErrorIs(t, err, orderbook.ErrInvalidOrder)
	assert.Equal(t, walSeq, h.entry.LastSeq(), "invalid orders are refused before logging")
	assert.Equal(t, walSeq, h.svc.Seq())

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OrdersRejected.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OrdersRejected.WithLabelValues("quantity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OrdersRejected.WithLabelValues("price")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OrdersRejected.WithLabelValues("invalid")))
	assert.Equal(t, 1, len(h.svc.Snapshot()))
}

func TestCancel(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close(t)

	res := place(t, h.svc, orderbook.GoodTillCancel, orderbook.Sell, 105, 2)
	require.NoError(t, h.svc.Cancel(context.Background(), res.Order.ID))
	_, ok := h.svc.BestAsk()
	assert.False(t, ok)

	err := h.svc.Cancel(context.Background(), res.Order.ID)
	require.ErrorIs(t, err, orderbook.ErrOrderNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OrdersCanceled))
}

func TestCanceledContext(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.svc.Submit(ctx, PlaceRequest{Side: orderbook.Buy, Type: orderbook.Limit, Price: 1, Quantity: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, h.svc.Cancel(ctx, uuid.New()), context.Canceled)
	assert.Zero(t, h.entry.LastSeq())
}

// seedTraffic places a mix of orders and cancels and returns the book
// depth it leaves behind.
func seedTraffic(t *testing.T, svc *OrderService, n int) orderbook.BookDepth {
	t.Helper()
	var resting []orderbook.OrderID
	for i := 0; i < n; i++ {
		side := orderbook.Side(i % 2)
		price := orderbook.Price(95 + i%10)
		typ := []orderbook.OrderType{orderbook.Limit, orderbook.GoodTillCancel, orderbook.ImmediateOrCancel, orderbook.Market}[i%4]
		res, err := svc.Submit(context.Background(), PlaceRequest{Side: side, Type: typ, Price: price, Quantity: orderbook.Quantity(1 + i%7)})
		require.NoError(t, err)
		if res.Resting {
			resting = append(resting, res.Order.ID)
		}
		if i%5 == 4 && len(resting) > 0 {
			id := resting[0]
			resting = resting[1:]
			if err := svc.Cancel(context.Background(), id); err != nil {
				require.ErrorIs(t, err, orderbook.ErrOrderNotFound)
			}
		}
	}
	return svc.Depth(0)
}

func TestRecoverFromWAL(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	want := seedTraffic(t, h.svc, 200)
	wantOrders := h.svc.Snapshot()
	lastSeq := h.svc.Seq()
	h.close(t)

	h = newHarness(t, dir)
	defer h.close(t)
	stats, err := h.svc.Recover(h.snapshotDir(), h.walDir())
	require.NoError(t, err)
	assert.Zero(t, stats.SnapshotSeq)
	assert.Equal(t, lastSeq, stats.LastSeq)
	assert.Equal(t, want, h.svc.Depth(0))

	got := h.svc.Snapshot()
	require.Len(t, got, len(wantOrders))
	for i := range wantOrders {
		assert.Equal(t, wantOrders[i].ID, got[i].ID)
		assert.Equal(t, wantOrders[i].RemainingQty, got[i].RemainingQty)
	}

	res := place(t, h.svc, orderbook.Limit, orderbook.Buy, 1, 1)
	assert.Equal(t, lastSeq+1, res.Seq)
}

func TestRecoverFromSnapshotAndWAL(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	seedTraffic(t, h.svc, 150)

	w, err := snapshot.NewWriter(h.snapshotDir(), 2)
	require.NoError(t, err)
	defer w.Close()
	_, err = h.svc.TakeSnapshot(w)
	require.NoError(t, err)
	snapSeq := h.svc.Seq()
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SnapshotsTaken))

	want := seedTraffic(t, h.svc, 60)
	h.close(t)

	h = newHarness(t, dir)
	defer h.close(t)
	stats, err := h.svc.Recover(h.snapshotDir(), h.walDir())
	require.NoError(t, err)
	assert.Equal(t, snapSeq, stats.SnapshotSeq)
	assert.NotZero(t, stats.Replayed)
	assert.Equal(t, want, h.svc.Depth(0))
}

func TestRecoverFallsBackToOlderSnapshot(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	w, err := snapshot.NewWriter(h.snapshotDir(), 3)
	require.NoError(t, err)
	defer w.Close()

	seedTraffic(t, h.svc, 80)
	_, err = h.svc.TakeSnapshot(w)
	require.NoError(t, err)
	olderSeq := h.svc.Seq()

	seedTraffic(t, h.svc, 80)
	newest, err := h.svc.TakeSnapshot(w)
	require.NoError(t, err)

	want := seedTraffic(t, h.svc, 40)
	h.close(t)
	require.NoError(t, os.WriteFile(newest, []byte("not a snapshot"), 0o644))

	h = newHarness(t, dir)
	defer h.close(t)
	stats, err := h.svc.Recover(h.snapshotDir(), h.walDir())
	require.NoError(t, err)
	assert.Equal(t, olderSeq, stats.SnapshotSeq)
	assert.Equal(t, want, h.svc.Depth(0))
}

func TestRecoverRefusesOlderSnapshotWithoutWAL(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	w, err := snapshot.NewWriter(h.snapshotDir(), 3)
	require.NoError(t, err)
	defer w.Close()

	seedTraffic(t, h.svc, 80)
	_, err = h.svc.TakeSnapshot(w)
	require.NoError(t, err)
	seedTraffic(t, h.svc, 80)
	newest, err := h.svc.TakeSnapshot(w)
	require.NoError(t, err)

	// drop the records the older snapshot would need
	require.NoError(t, h.entry.TruncateBefore(h.svc.Seq()))
	h.close(t)
	require.NoError(t, os.WriteFile(newest, []byte("not a snapshot"), 0o644))

	h = newHarness(t, dir)
	defer h.close(t)
	_, err = h.svc.Recover(h.snapshotDir(), h.walDir())
	require.Error(t, err)
	assert.Zero(t, h.svc.book.Len())
}

func TestRecoverNeedsEmptyBook(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close(t)
	place(t, h.svc, orderbook.Limit, orderbook.Buy, 1, 1)
	_, err := h.svc.Recover(h.snapshotDir(), h.walDir())
	require.Error(t, err)
}

func TestSnapshotJob(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close(t)
	place(t, h.svc, orderbook.Limit, orderbook.Buy, 10, 1)

	w, err := snapshot.NewWriter(h.snapshotDir(), 1)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := h.svc.StartSnapshotJob(ctx, w, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, _, err := snapshot.Latest(h.snapshotDir())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestConcurrentSubmitters(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close(t)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := h.svc.Submit(context.Background(), PlaceRequest{
					Side:     orderbook.Side((w + i) % 2),
					Type:     orderbook.Limit,
					Price:    orderbook.Price(100 + i%3),
					Quantity: 1,
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, uint64(200), h.svc.Seq())
	assert.Equal(t, uint64(200), h.entry.LastSeq())
	bid, okBid := h.svc.BestBid()
	ask, okAsk := h.svc.BestAsk()
	if okBid && okAsk {
		assert.Less(t, bid, ask)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/metrics"
	"matchbook/infra/sequence"
	entrywal "matchbook/infra/wal/entry"
	exitwal "matchbook/infra/wal/exit"
)

// ErrOutbox means a command was applied to the book but its trades could
// not be stored for publishing.
var ErrOutbox = errors.New("service: outbox write failed")

/*
OrderService is the ONLY write entry point into the book.

Commands are serialized by one mutex. For each command:
- a sequence number is reserved
- the command is appended to the entry WAL
- the book applies it
- trades go to the exit WAL (outbox)
*/
type OrderService struct {
	mu       sync.Mutex
	book     *orderbook.OrderBook
	seqGen   *sequence.Sequencer
	entryWAL *entrywal.WAL
	exitWAL  *exitwal.ExitWAL

	metrics *metrics.Metrics
	log     *zap.Logger
	clock   func() time.Time
	newID   func() uuid.UUID
}

type Option func(*OrderService)

func WithLogger(l *zap.Logger) Option {
	return func(s *OrderService) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *OrderService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) {
		if now != nil {
			s.clock = now
		}
	}
}

// NewOrderService wires all dependencies. The book should be empty or
// already recovered; call Recover before serving traffic.
func NewOrderService(
	book *orderbook.OrderBook,
	seqGen *sequence.Sequencer,
	entryWAL *entrywal.WAL,
	exitWAL *exitwal.ExitWAL,
	opts ...Option,
) *OrderService {
	s := &OrderService{
		book:     book,
		seqGen:   seqGen,
		entryWAL: entryWAL,
		exitWAL:  exitWAL,
		log:      zap.NewNop(),
		clock:    time.Now,
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New("matchbook")
	}
	s.log = s.log.With(zap.String("component", "order-service"))
	return s
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// PlaceRequest is a new order. A zero ID asks the service to assign one.
type PlaceRequest struct {
	ID       orderbook.OrderID
	Side     orderbook.Side
	Type     orderbook.OrderType
	Price    orderbook.Price
	Quantity orderbook.Quantity
}

type PlaceResult struct {
	Seq    uint64
	Order  orderbook.Order
	Trades []orderbook.Trade
	// Resting reports whether a remainder is now in the book.
	Resting bool
}

// Submit logs and applies one order. Book errors are returned unwrapped
// in meaning: errors.Is works against the orderbook sentinels. A non nil
// result with ErrOutbox means the order was applied.
func (s *OrderService) Submit(ctx context.Context, req PlaceRequest) (*PlaceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { s.metrics.SubmitLatency.Observe(time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == uuid.Nil {
		req.ID = s.newID()
	}
	cmd := PlaceCommand{
		ID:       req.ID,
		Side:     req.Side,
		Type:     req.Type,
		Price:    req.Price,
		Quantity: req.Quantity,
		Time:     s.clock(),
	}
	o := cmd.Order()
	if err := s.book.Validate(o); err != nil {
		s.reject(rejectReason(err))
		return nil, err
	}

	seq := s.seqGen.Next()
	if err := s.entryWAL.Append(entrywal.NewRecord(entrywal.RecordPlace, seq, cmd.Marshal())); err != nil {
		s.reject("wal")
		return nil, fmt.Errorf("service: wal append seq %d: %w", seq, err)
	}

	trades, err := s.book.Submit(o)
	if err != nil {
		s.reject(rejectReason(err))
		s.log.Info("order rejected", zap.Uint64("seq", seq), zap.Stringer("id", o.ID), zap.Error(err))
		return nil, err
	}

	res := &PlaceResult{Seq: seq, Trades: trades}
	if resting, ok := s.book.Order(o.ID); ok {
		res.Order, res.Resting = resting, true
	} else {
		res.Order = settled(o, trades)
	}

	s.metrics.OrdersSubmitted.WithLabelValues(o.Type.String(), o.Side.String()).Inc()
	s.recordTrades(trades)
	s.updateBookGauges()

	s.log.Debug("order applied",
		zap.Uint64("seq", seq),
		zap.Stringer("id", o.ID),
		zap.Stringer("type", o.Type),
		zap.Int("trades", len(trades)),
		zap.Bool("resting", res.Resting),
	)

	if err := s.appendOutbox(seq, trades); err != nil {
		return res, err
	}
	return res, nil
}

// Cancel logs and applies a cancel. Unknown ids are refused before
// anything is written.
func (s *OrderService) Cancel(ctx context.Context, id orderbook.OrderID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.book.Order(id); !ok {
		return &orderbook.OrderNotFoundError{OrderID: id}
	}

	seq := s.seqGen.Next()
	cmd := CancelCommand{ID: id}
	if err := s.entryWAL.Append(entrywal.NewRecord(entrywal.RecordCancel, seq, cmd.Marshal())); err != nil {
		return fmt.Errorf("service: wal append seq %d: %w", seq, err)
	}
	if err := s.book.Cancel(id); err != nil {
		return err
	}

	s.metrics.OrdersCanceled.Inc()
	s.updateBookGauges()
	s.log.Debug("order canceled", zap.Uint64("seq", seq), zap.Stringer("id", id))
	return nil
}

func (s *OrderService) appendOutbox(seq uint64, trades []orderbook.Trade) error {
	if len(trades) == 0 || s.exitWAL == nil {
		return nil
	}
	payloads, err := encodeTrades(seq, trades)
	if err == nil {
		_, err = s.exitWAL.Append(payloads...)
	}
	if err != nil {
		s.log.Error("trades not stored for publishing", zap.Uint64("seq", seq), zap.Int("trades", len(trades)), zap.Error(err))
		return fmt.Errorf("%w: seq %d: %w", ErrOutbox, seq, err)
	}
	return nil
}

// settled is the final state of an order that did not rest: whatever
// was not filled has been discarded.
func settled(o orderbook.Order, trades []orderbook.Trade) orderbook.Order {
	var filled orderbook.Quantity
	for _, t := range trades {
		filled += t.Quantity
	}
	o.ExecutedQty = filled
	o.RemainingQty = o.OriginalQty - filled
	if o.RemainingQty == 0 {
		o.Status = orderbook.Filled
	} else {
		o.Status = orderbook.Canceled
	}
	return o
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, orderbook.ErrOrderAlreadyExists):
		return "duplicate"
	case errors.Is(err, orderbook.ErrInvalidQuantity):
		return "quantity"
	case errors.Is(err, orderbook.ErrInvalidPrice):
		return "price"
	case errors.Is(err, orderbook.ErrInvalidOrder):
		return "invalid"
	default:
		return "internal"
	}
}

func (s *OrderService) reject(reason string) {
	s.metrics.OrdersRejected.WithLabelValues(reason).Inc()
}

func (s *OrderService) recordTrades(trades []orderbook.Trade) {
	for _, t := range trades {
		s.metrics.Trades.Inc()
		s.metrics.TradedQuantity.Add(float64(t.Quantity))
	}
}

func (s *OrderService) updateBookGauges() {
	s.metrics.RestingOrders.Set(float64(s.book.Len()))
	s.metrics.PriceLevels.WithLabelValues(orderbook.Buy.String()).Set(float64(s.book.Levels(orderbook.Buy)))
	s.metrics.PriceLevels.WithLabelValues(orderbook.Sell.String()).Set(float64(s.book.Levels(orderbook.Sell)))
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) BestBid() (orderbook.Price, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.BestBid()
}

func (s *OrderService) BestAsk() (orderbook.Price, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.BestAsk()
}

// Depth returns up to n aggregated levels per side; n <= 0 returns all.
func (s *OrderService) Depth(n int) orderbook.BookDepth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Depth(n)
}

func (s *OrderService) Order(id orderbook.OrderID) (orderbook.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Order(id)
}

// Snapshot returns every resting order in priority order.
func (s *OrderService) Snapshot() []orderbook.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]orderbook.Order, 0, s.book.Len())
	s.book.Walk(func(o orderbook.Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

// Seq is the sequence of the last command applied.
func (s *OrderService) Seq() uint64 {
	return s.seqGen.Current()
}

package service

import (
	"go.uber.org/zap"

	"matchbook/domain/orderbook"
)

// BookListener logs book events at debug level. Install it with
// orderbook.WithListener.
type BookListener struct {
	log *zap.Logger
}

func NewBookListener(log *zap.Logger) *BookListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookListener{log: log.With(zap.String("component", "book"))}
}

func (l *BookListener) OrderAdded(o orderbook.Order) {
	l.log.Debug("order rested",
		zap.Stringer("id", o.ID),
		zap.Stringer("side", o.Side),
		zap.Int64("price", int64(o.Price)),
		zap.Uint64("remaining", uint64(o.RemainingQty)),
	)
}

func (l *BookListener) OrderMatched(t orderbook.Trade) {
	l.log.Debug("trade",
		zap.Stringer("trade_id", t.ID),
		zap.Stringer("bid", t.BidOrderID),
		zap.Stringer("ask", t.AskOrderID),
		zap.Int64("price", int64(t.Price)),
		zap.Uint64("qty", uint64(t.Quantity)),
	)
}

func (l *BookListener) OrderCanceled(o orderbook.Order) {
	l.log.Debug("order canceled", zap.Stringer("id", o.ID), zap.Uint64("remaining", uint64(o.RemainingQty)))
}

func (l *BookListener) LevelRemoved(side orderbook.Side, price orderbook.Price) {
	l.log.Debug("level removed", zap.Stringer("side", side), zap.Int64("price", int64(price)))
}

package service

import (
	"encoding/json"

	"matchbook/domain/orderbook"
)

const eventVersion = 1

// TradeEvent is the outbox payload published for every trade.
type TradeEvent struct {
	V          int    `json:"v"`
	Type       string `json:"type"`
	Seq        uint64 `json:"seq"`
	TradeID    string `json:"trade_id"`
	BidOrderID string `json:"bid_order_id"`
	AskOrderID string `json:"ask_order_id"`
	Price      int64  `json:"price"`
	Quantity   uint64 `json:"quantity"`
	Time       int64  `json:"time"`
}

func newTradeEvent(seq uint64, t orderbook.Trade) TradeEvent {
	return TradeEvent{
		V:          eventVersion,
		Type:       "trade",
		Seq:        seq,
		TradeID:    t.ID.String(),
		BidOrderID: t.BidOrderID.String(),
		AskOrderID: t.AskOrderID.String(),
		Price:      int64(t.Price),
		Quantity:   uint64(t.Quantity),
		Time:       t.Timestamp.UnixNano(),
	}
}

func encodeTrades(seq uint64, trades []orderbook.Trade) ([][]byte, error) {
	out := make([][]byte, 0, len(trades))
	for _, t := range trades {
		b, err := json.Marshal(newTradeEvent(seq, t))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

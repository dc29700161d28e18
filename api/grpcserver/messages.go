package grpcserver

// Prices travel as integer ticks. Where a decimal string is present it is
// the tick count times the server's tick size.

type SubmitRequest struct {
	// ID is optional; the server assigns a uuid when empty.
	ID    string `json:"id,omitempty"`
	Side  string `json:"side"`
	Type  string `json:"type"`
	Price int64  `json:"price,omitempty"`
	// PriceDecimal, when set, overrides Price and must be a whole number
	// of ticks.
	PriceDecimal string `json:"price_decimal,omitempty"`
	Quantity     uint64 `json:"quantity"`
}

type SubmitResponse struct {
	Seq     uint64      `json:"seq"`
	Order   OrderView   `json:"order"`
	Trades  []TradeView `json:"trades"`
	Resting bool        `json:"resting"`
}

type CancelRequest struct {
	ID string `json:"id"`
}

type CancelResponse struct {
	Status string `json:"status"`
}

type BookRequest struct {
	// Depth is the number of levels per side; zero returns all.
	Depth int `json:"depth"`
}

type BookResponse struct {
	BestBid *LevelView  `json:"best_bid,omitempty"`
	BestAsk *LevelView  `json:"best_ask,omitempty"`
	Bids    []LevelView `json:"bids"`
	Asks    []LevelView `json:"asks"`
	Seq     uint64      `json:"seq"`
}

type OrderView struct {
	ID        string `json:"id"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Price     int64  `json:"price"`
	Original  uint64 `json:"original"`
	Executed  uint64 `json:"executed"`
	Remaining uint64 `json:"remaining"`
	Status    string `json:"status"`
}

type TradeView struct {
	ID           string `json:"id"`
	BidOrderID   string `json:"bid_order_id"`
	AskOrderID   string `json:"ask_order_id"`
	Price        int64  `json:"price"`
	PriceDecimal string `json:"price_decimal"`
	Quantity     uint64 `json:"quantity"`
}

type LevelView struct {
	Price        int64  `json:"price"`
	PriceDecimal string `json:"price_decimal"`
	Volume       uint64 `json:"volume,omitempty"`
}

// Package grpcserver exposes the order service over gRPC. Messages are
// plain structs carried by a JSON codec.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"matchbook/domain/orderbook"
	"matchbook/service"
)

// Server adapts OrderService to gRPC.
type Server struct {
	svc  *service.OrderService
	tick decimal.Decimal
	log  *zap.Logger
}

func NewServer(svc *service.OrderService, tickSize decimal.Decimal, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, tick: tickSize, log: log.With(zap.String("component", "grpc"))}
}

// NewGRPCServer builds a grpc.Server with call logging and the order
// service registered.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(srv.log)))
	gs := grpc.NewServer(opts...)
	RegisterOrderServiceServer(gs, srv)
	return gs
}

// -------------------- Commands --------------------

func (s *Server) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	place, err := s.placeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.svc.Submit(ctx, place)
	if err != nil && !(res != nil && errors.Is(err, service.ErrOutbox)) {
		return nil, toStatus(err)
	}
	if err != nil {
		// applied, only publishing is affected
		s.log.Error("submit applied without outbox record", zap.Uint64("seq", res.Seq), zap.Error(err))
	}

	resp := &SubmitResponse{
		Seq:     res.Seq,
		Order:   orderView(res.Order),
		Trades:  make([]TradeView, 0, len(res.Trades)),
		Resting: res.Resting,
	}
	for _, t := range res.Trades {
		resp.Trades = append(resp.Trades, TradeView{
			ID:           t.ID.String(),
			BidOrderID:   t.BidOrderID.String(),
			AskOrderID:   t.AskOrderID.String(),
			Price:        int64(t.Price),
			PriceDecimal: s.priceString(t.Price),
			Quantity:     uint64(t.Quantity),
		})
	}
	return resp, nil
}

func (s *Server) Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "order id: %v", err)
	}
	if err := s.svc.Cancel(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return &CancelResponse{Status: "ok"}, nil
}

// -------------------- Queries --------------------

func (s *Server) Book(ctx context.Context, req *BookRequest) (*BookResponse, error) {
	if req.Depth < 0 {
		return nil, status.Error(codes.InvalidArgument, "depth must not be negative")
	}
	depth := s.svc.Depth(req.Depth)
	resp := &BookResponse{
		Bids: s.levels(depth.Bids),
		Asks: s.levels(depth.Asks),
		Seq:  s.svc.Seq(),
	}
	if p, ok := s.svc.BestBid(); ok {
		resp.BestBid = &LevelView{Price: int64(p), PriceDecimal: s.priceString(p)}
	}
	if p, ok := s.svc.BestAsk(); ok {
		resp.BestAsk = &LevelView{Price: int64(p), PriceDecimal: s.priceString(p)}
	}
	return resp, nil
}

// -------------------- Converters --------------------

func (s *Server) placeRequest(req *SubmitRequest) (service.PlaceRequest, error) {
	var out service.PlaceRequest
	var err error

	if req.ID != "" {
		if out.ID, err = uuid.Parse(req.ID); err != nil {
			return out, fmt.Errorf("order id: %w", err)
		}
	}
	if out.Side, err = parseSide(req.Side); err != nil {
		return out, err
	}
	if out.Type, err = parseType(req.Type); err != nil {
		return out, err
	}
	out.Price = orderbook.Price(req.Price)
	if req.PriceDecimal != "" {
		if out.Price, err = s.ticks(req.PriceDecimal); err != nil {
			return out, err
		}
	}
	out.Quantity = orderbook.Quantity(req.Quantity)
	return out, nil
}

// ticks converts a decimal price to a whole number of ticks.
func (s *Server) ticks(price string) (orderbook.Price, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", price, err)
	}
	if !s.tick.IsPositive() {
		return 0, fmt.Errorf("tick size %s is not positive", s.tick)
	}
	if !d.Mod(s.tick).IsZero() {
		return 0, fmt.Errorf("price %s is not a multiple of tick %s", d, s.tick)
	}
	q := d.DivRound(s.tick, 0).BigInt()
	if !q.IsInt64() {
		return 0, fmt.Errorf("price %s is out of range for tick %s", d, s.tick)
	}
	return orderbook.Price(q.Int64()), nil
}

func (s *Server) priceString(p orderbook.Price) string {
	return decimal.NewFromInt(int64(p)).Mul(s.tick).String()
}

func (s *Server) levels(in []orderbook.LevelInfo) []LevelView {
	out := make([]LevelView, 0, len(in))
	for _, l := range in {
		out = append(out, LevelView{
			Price:        int64(l.Price),
			PriceDecimal: s.priceString(l.Price),
			Volume:       uint64(l.Volume),
		})
	}
	return out
}

func orderView(o orderbook.Order) OrderView {
	return OrderView{
		ID:        o.ID.String(),
		Side:      o.Side.String(),
		Type:      o.Type.String(),
		Price:     int64(o.Price),
		Original:  uint64(o.OriginalQty),
		Executed:  uint64(o.ExecutedQty),
		Remaining: uint64(o.RemainingQty),
		Status:    o.Status.String(),
	}
}

func parseSide(s string) (orderbook.Side, error) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return orderbook.Buy, nil
	case "sell", "ask":
		return orderbook.Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

func parseType(s string) (orderbook.OrderType, error) {
	switch strings.ToLower(s) {
	case "limit", "":
		return orderbook.Limit, nil
	case "gtc", "good_till_cancel":
		return orderbook.GoodTillCancel, nil
	case "market":
		return orderbook.Market, nil
	case "ioc", "immediate_or_cancel":
		return orderbook.ImmediateOrCancel, nil
	case "fok", "fill_or_kill":
		return orderbook.FillOrKill, nil
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

// -------------------- Interceptors --------------------

// LoggingInterceptor logs every unary call with its outcome and latency.
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Stringer("code", code),
			zap.Duration("took", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unknown {
			log.Error("call failed", append(fields, zap.Error(err))...)
		} else {
			log.Debug("call", fields...)
		}
		return resp, err
	}
}

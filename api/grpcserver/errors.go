package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"matchbook/domain/orderbook"
)

// toStatus maps service and book errors to gRPC status codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, orderbook.ErrOrderAlreadyExists):
		code = codes.AlreadyExists
	case errors.Is(err, orderbook.ErrOrderNotFound):
		code = codes.NotFound
	case errors.Is(err, orderbook.ErrInvalidQuantity),
		errors.Is(err, orderbook.ErrInvalidPrice),
		errors.Is(err, orderbook.ErrInvalidOrder):
		code = codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "matchbook.OrderService"

const (
	submitMethod = "/" + serviceName + "/Submit"
	cancelMethod = "/" + serviceName + "/Cancel"
	bookMethod   = "/" + serviceName + "/Book"
)

// OrderServiceServer is the server side of matchbook.OrderService.
type OrderServiceServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	Cancel(context.Context, *CancelRequest) (*CancelResponse, error)
	Book(context.Context, *BookRequest) (*BookResponse, error)
}

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "Cancel", Handler: cancelHandler},
		{MethodName: "Book", Handler: bookHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matchbook/order_service",
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).Submit(ctx, req.(*SubmitRequest))
	})
}

func cancelHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).Cancel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: cancelMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).Cancel(ctx, req.(*CancelRequest))
	})
}

func bookHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BookRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).Book(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: bookMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).Book(ctx, req.(*BookRequest))
	})
}

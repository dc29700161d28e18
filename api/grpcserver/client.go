package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls matchbook.OrderService.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to target. The JSON codec is selected for every
// call; transport credentials must come with opts.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)))
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	out := new(SubmitResponse)
	if err := c.conn.Invoke(ctx, submitMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	out := new(CancelResponse)
	if err := c.conn.Invoke(ctx, cancelMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Book(ctx context.Context, req *BookRequest) (*BookResponse, error) {
	out := new(BookResponse)
	if err := c.conn.Invoke(ctx, bookMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

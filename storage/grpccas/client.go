package grpccas

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/storage"
)

// Client implements storage.CAS over the CAS gRPC service. Every id the
// server returns and every block it serves is checked locally.
type Client struct {
	cc     *grpc.ClientConn
	client CASClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.CAS = (*Client)(nil)

type DialOptions struct {
	// Timeout bounds the first connection attempt when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		defer cancel()
		if err := waitReady(ctx, cc); err != nil {
			_ = cc.Close()
			return nil, err
		}
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewCASClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(codec cidutil.Codec, data []byte) (cidutil.ID, error) {
	expected, err := storage.IDFor(codec, data)
	if err != nil {
		return cidutil.Undef, err
	}

	ctx, cancel := c.ctx()
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, CodecMetadataKey, codec.String())

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return cidutil.Undef, mapRPC(err)
	}
	id, err := cidutil.Parse(reply.GetValue())
	if err != nil {
		return cidutil.Undef, storage.ErrInvalidCID
	}
	if id != expected {
		return cidutil.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *Client) Get(id cidutil.ID) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	if err := storage.Verify(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Client) Has(id cidutil.ID) bool {
	if !id.Defined() {
		return false
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}

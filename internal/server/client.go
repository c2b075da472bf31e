package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/tunnelmesh/metacoord/pkg/proto"
)

// Client timeouts.
const (
	// ClientDialTimeout bounds connecting to the coordinator.
	ClientDialTimeout = 5 * time.Second
	// ClientIOTimeout bounds the exchange when ctx has no deadline.
	ClientIOTimeout = 30 * time.Second
)

// Client talks to a coordinator, opening one connection per request.
type Client struct {
	addr   string
	dialer net.Dialer
}

// NewClient creates a client for the coordinator at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		addr:   addr,
		dialer: net.Dialer{Timeout: ClientDialTimeout},
	}
}

// Upload asks the coordinator where to store chunkCount chunks of filename.
func (c *Client) Upload(ctx context.Context, filename string, chunkCount int) ([]proto.ChunkPlacement, error) {
	return c.Send(ctx, proto.Request{Command: proto.CmdUpload, Filename: filename, NumberOfChunks: chunkCount})
}

// Download asks the coordinator where the chunks of filename are stored.
func (c *Client) Download(ctx context.Context, filename string) ([]proto.ChunkPlacement, error) {
	return c.Send(ctx, proto.Request{Command: proto.CmdDownload, Filename: filename})
}

// Send performs one raw exchange. Any command string may be sent.
func (c *Client) Send(ctx context.Context, req proto.Request) ([]proto.ChunkPlacement, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("connect to coordinator: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, ok := ctx.Deadline(); !ok {
		_ = conn.SetDeadline(time.Now().Add(ClientIOTimeout))
	}

	// Unblock the exchange once ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := proto.WriteRequest(conn, req); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("send request: %w", err)
	}

	placements, err := proto.ReadResponse(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return placements, nil
}

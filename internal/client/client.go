package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/tem-emulator/internal/shm"
	"github.com/nerrad567/tem-emulator/internal/wire"
)

// DefaultTimeout bounds a call when the context has no deadline.
const DefaultTimeout = 30 * time.Second

// Options configures Dial.
type Options struct {
	Codec        wire.Codec
	MaxFrameSize int
	Timeout      time.Duration
}

// Client is a connection to one device port. Calls are serialised.
type Client struct {
	conn    net.Conn
	enc     *wire.Encoder
	dec     *wire.Decoder
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	if opts.Codec == nil {
		opts.Codec = wire.JSON
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		enc:     wire.NewEncoder(conn, opts.Codec),
		dec:     wire.NewDecoder(conn, opts.Codec, opts.MaxFrameSize),
		timeout: opts.Timeout,
	}, nil
}

// Call runs operation on the device and returns its payload. Attribute
// reads use the attribute name as the operation.
//
// Returns:
//   - any: The decoded payload (a descriptor mapping for array results)
//   - error: *RemoteError for error responses, or a transport error
func (c *Client) Call(ctx context.Context, operation string, args []any, kwargs map[string]any) (any, error) {
	resp, err := c.RoundTrip(ctx, wire.Request{Operation: operation, Args: args, Kwargs: kwargs})
	if err != nil {
		return nil, err
	}
	if resp.Status == wire.StatusOK {
		return resp.Payload, nil
	}
	kind, rargs, ok := resp.ErrorDetail()
	if !ok {
		return nil, fmt.Errorf("%w: error payload %v", wire.ErrMalformedResponse, resp.Payload)
	}
	return nil, &RemoteError{Kind: kind, Args: rargs}
}

// RoundTrip sends any request body and reads one response. A transport
// failure or cancelled context closes the client; later calls return
// ErrClosed.
func (c *Client) RoundTrip(ctx context.Context, body any) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return wire.Response{}, ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return wire.Response{}, fmt.Errorf("setting deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now()) //nolint:errcheck // wake blocked I/O
	})
	defer stop()

	if err := c.enc.Encode(body); err != nil {
		c.abandon()
		return wire.Response{}, fmt.Errorf("sending request: %w", err)
	}
	v, err := c.dec.Decode()
	if err != nil {
		c.abandon()
		if ctx.Err() != nil {
			return wire.Response{}, ctx.Err()
		}
		return wire.Response{}, fmt.Errorf("reading response: %w", err)
	}
	return wire.ParseResponse(v)
}

// abandon closes a connection whose request/response pairing is no longer
// known: a late answer to the failed call would otherwise be read as the
// answer to the next one. Callers hold c.mu.
func (c *Client) abandon() {
	c.closed = true
	c.conn.Close() //nolint:errcheck // already failing
}

// Disconnect sends the "exit" sentinel and closes the connection.
func (c *Client) Disconnect() error {
	return c.sendSentinel(wire.SentinelDisconnect)
}

// Terminate sends the "kill" sentinel and closes the connection.
func (c *Client) Terminate() error {
	return c.sendSentinel(wire.SentinelTerminate)
}

func (c *Client) sendSentinel(s wire.Sentinel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout)) //nolint:errcheck // best effort
	sendErr := c.enc.Encode(string(s))
	c.closed = true
	if err := c.conn.Close(); err != nil && sendErr == nil {
		return err
	}
	return sendErr
}

// Close closes the connection without notifying the server.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// ReadArray resolves a descriptor payload and copies the array bytes out of
// shared memory. The copy stays valid after the producer reuses the segment.
func ReadArray(dir string, payload any) (shm.Descriptor, []byte, error) {
	desc, err := shm.DescriptorFrom(payload)
	if err != nil {
		return shm.Descriptor{}, nil, err
	}
	view, err := shm.Open(dir, desc)
	if err != nil {
		return desc, nil, err
	}
	defer view.Close()
	return desc, append([]byte(nil), view.Bytes()...), nil
}

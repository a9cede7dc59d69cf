// Package client is a thin Go wrapper around the Velos IPC protocol
// (internal/wire), grounded on the Rust reference implementation's
// VelosConnection: dial the daemon's Unix socket, assign each request a
// monotonically increasing id, and round-trip one framed request for one
// framed response. Unlike the teacher's pkg/client (an HTTP+TLS REST
// wrapper over a gateway this system does not have), every call here is a
// single write/read over the socket the daemon already owns.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velos-sh/velos/internal/wire"
)

// Client is a connection to one velosd instance. It is safe for concurrent
// use: requests are serialized under a mutex, matching the daemon's own
// per-connection sequential request loop (spec.md §4.1).
type Client struct {
	conn   net.Conn
	mu     sync.Mutex
	nextID uint32
}

// Dial opens a connection to the daemon listening on socketPath with a
// 5-second connect timeout.
func Dial(socketPath string) (*Client, error) {
	return DialTimeout(socketPath, 5*time.Second)
}

// DialTimeout is Dial with an explicit connect timeout. A refused or
// missing socket is reported as wire.ErrDaemonNotRunning so callers can
// match it with errors.Is regardless of the underlying net.OpError.
func DialTimeout(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrDaemonNotRunning, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// request sends one framed request and waits for its matching framed
// response. The daemon always echoes ReqID (spec.md §4.1), so a mismatched
// id signals a protocol desync rather than a stale read.
func (c *Client) request(ctx context.Context, cmd wire.CommandCode, payload []byte) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := atomic.AddUint32(&c.nextID, 1)
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	req := wire.Request{ReqID: id, Command: cmd, Payload: payload}
	if err := wire.EncodeRequest(c.conn, req); err != nil {
		return wire.Response{}, fmt.Errorf("velos: send request: %w", err)
	}

	frame, err := wire.Decode(c.conn)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return wire.Response{}, wire.ErrConnectionTimeout
		}
		return wire.Response{}, fmt.Errorf("%w: %v", wire.ErrProtocol, err)
	}
	resp, err := wire.DecodeResponseBody(frame.Body)
	if err != nil {
		return wire.Response{}, err
	}
	if resp.ReqID != id {
		return wire.Response{}, fmt.Errorf("%w: reqid mismatch: sent %d, got %d", wire.ErrProtocol, id, resp.ReqID)
	}
	return resp, nil
}

// unary is request plus the status->error translation every non-streaming
// call shares: a Status Error response becomes a plain Go error carrying
// the daemon's message.
func (c *Client) unary(ctx context.Context, cmd wire.CommandCode, payload []byte) ([]byte, error) {
	resp, err := c.request(ctx, cmd, payload)
	if err != nil {
		return nil, err
	}
	if resp.Status == wire.StatusError {
		return nil, errors.New(string(resp.Payload))
	}
	return resp.Payload, nil
}

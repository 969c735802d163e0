// Package snippet implements the host side of the snippet RPC protocol:
// newline-delimited JSON requests over a TCP connection that adb forwards to
// the on-device snippet server. Asynchronous RPCs return a callback handle
// whose named events are polled from the device event cache with a timeout.
package snippet

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// dialTimeout bounds the TCP connection setup to the forwarded port.
	dialTimeout = 10 * time.Second

	// rpcGracePeriod is added on top of a caller-supplied event timeout when
	// setting the socket deadline, so the device gets a chance to answer the
	// poll with its own timeout error.
	rpcGracePeriod = 5 * time.Second

	// DefaultCallTimeout applies to synchronous calls without a context
	// deadline.
	DefaultCallTimeout = 60 * time.Second
)

var (
	// ErrEventTimeout is returned when the device event cache has no matching
	// event within the wait window. Measurement loops treat it as an expected
	// failure; everything else treats it as fatal.
	ErrEventTimeout = errors.New("timed out waiting for snippet event")

	// ErrNotAsync is returned by CallAsync when the RPC did not produce a
	// callback handle.
	ErrNotAsync = errors.New("rpc returned no callback handle")
)

// RemoteError is an error raised by the device-side snippet while executing
// an RPC.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("snippet rpc %s failed on device: %s", e.Method, e.Message)
}

// Caller is the RPC surface the operation helpers depend on. *Conn is the
// production implementation; tests substitute fakes.
type Caller interface {
	// Call performs a synchronous RPC and returns the decoded result.
	Call(ctx context.Context, method string, params ...any) (any, error)
	// CallAsync performs an RPC that registers a device-side callback and
	// returns a handle for polling its events.
	CallAsync(ctx context.Context, method string, params ...any) (*CallbackHandler, error)
}

type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type response struct {
	ID       uint64  `json:"id"`
	Result   any     `json:"result"`
	Error    *string `json:"error"`
	Callback *string `json:"callback"`
}

// Conn is a connection to one snippet server. Calls are strictly sequential:
// the protocol has no interleaving, so a single mutex serializes them.
type Conn struct {
	name string
	log  *log.Logger

	mu     sync.Mutex
	conn   net.Conn
	rd     *bufio.Reader
	nextID uint64
}

// Dial connects to a forwarded snippet server port and performs the
// initiation handshake.
func Dial(ctx context.Context, addr, name string, logger *log.Logger) (*Conn, error) {
	if logger == nil {
		logger = log.Default()
	}
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing snippet server %s: %w", addr, err)
	}
	c := &Conn{
		name: name,
		log:  logger.With("snippet", name),
		conn: conn,
		rd:   bufio.NewReader(conn),
	}
	if err := c.handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// handshake sends the initiation knock and verifies the server accepts.
func (c *Conn) handshake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setDeadline(ctx, dialTimeout)
	if err := json.NewEncoder(c.conn).Encode(map[string]any{"cmd": "initiate", "uid": -1}); err != nil {
		return fmt.Errorf("snippet handshake write: %w", err)
	}
	line, err := c.rd.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("snippet handshake read: %w", err)
	}
	var ack struct {
		Status bool `json:"status"`
		UID    int  `json:"uid"`
	}
	if err := json.Unmarshal(line, &ack); err != nil {
		return fmt.Errorf("snippet handshake decode: %w", err)
	}
	if !ack.Status {
		return errors.New("snippet server rejected the session")
	}
	c.log.Debug("snippet session established", "uid", ack.UID)
	return nil
}

// setDeadline applies the context deadline to the socket, falling back to
// now+fallback when the context has none. Callers must hold mu.
func (c *Conn) setDeadline(ctx context.Context, fallback time.Duration) {
	if d, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(d)
		return
	}
	c.conn.SetDeadline(time.Now().Add(fallback))
}

// roundTrip sends one request and reads its response. Callers must hold mu.
func (c *Conn) roundTrip(ctx context.Context, timeout time.Duration, method string, params []any) (*response, error) {
	c.nextID++
	req := request{ID: c.nextID, Method: method, Params: params}
	if req.Params == nil {
		req.Params = []any{}
	}
	c.setDeadline(ctx, timeout)
	if err := json.NewEncoder(c.conn).Encode(req); err != nil {
		return nil, fmt.Errorf("snippet rpc %s write: %w", method, err)
	}
	line, err := c.rd.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("snippet rpc %s read: %w", method, err)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("snippet rpc %s decode: %w", method, err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("snippet rpc %s: response id %d does not match request id %d",
			method, resp.ID, req.ID)
	}
	if resp.Error != nil && *resp.Error != "" {
		// The device reports an event wait that expires as an error; map it
		// to the sentinel so measurement loops can count it instead of
		// failing.
		if isEventTimeout(method, *resp.Error) {
			return nil, fmt.Errorf("%w: %s", ErrEventTimeout, *resp.Error)
		}
		return nil, &RemoteError{Method: method, Message: *resp.Error}
	}
	return &resp, nil
}

func isEventTimeout(method, msg string) bool {
	if !strings.HasPrefix(method, "eventWaitAndGet") {
		return false
	}
	return strings.Contains(strings.ToLower(msg), "timeout")
}

// Call performs a synchronous RPC.
func (c *Conn) Call(ctx context.Context, method string, params ...any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := time.Now()
	resp, err := c.roundTrip(ctx, DefaultCallTimeout, method, params)
	if err != nil {
		return nil, err
	}
	c.log.Debug("rpc done", "method", method, "elapsed", time.Since(start))
	return resp.Result, nil
}

// CallAsync performs an RPC expected to register a device-side callback and
// returns the handle for polling its events. The synchronous return value of
// the RPC, if any, is available through the handle.
func (c *Conn) CallAsync(ctx context.Context, method string, params ...any) (*CallbackHandler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.roundTrip(ctx, DefaultCallTimeout, method, params)
	if err != nil {
		return nil, err
	}
	if resp.Callback == nil || *resp.Callback == "" {
		return nil, fmt.Errorf("%w: method %s", ErrNotAsync, method)
	}
	return NewCallbackHandler(*resp.Callback, resp.Result, c), nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

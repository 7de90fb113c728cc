package broker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/agentrt/internal/rterr"
	"github.com/sony/gobreaker"
)

// maxFrameBytes bounds a single IPC frame; the broker process is trusted but
// a runaway response must not exhaust memory.
const maxFrameBytes = 8 << 20 // 8 MiB

// Client is a connection to a secretsbrokerd process. One Client instance
// serializes all requests over its connection: the wire protocol is
// request/response pairs correlated by ID, sent one at a time.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	cb     *gobreaker.CircuitBreaker
	caps   map[Capability]bool
	capsMu sync.RWMutex
}

// Dial connects to a secretsbrokerd process listening on a Unix domain
// socket and performs the capability handshake.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, rterr.Wrap(rterr.KindBrokerUnavailable, "failed to dial secrets broker", err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "secrets-broker",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	c := &Client{conn: conn, cb: cb, caps: make(map[Capability]bool)}

	health, err := c.Health(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.capsMu.Lock()
	for _, cap := range health.Capabilities {
		c.caps[cap] = true
	}
	c.capsMu.Unlock()

	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// HasCapability reports whether the broker granted cap at handshake.
func (c *Client) HasCapability(cap Capability) bool {
	c.capsMu.RLock()
	defer c.capsMu.RUnlock()
	return c.caps[cap]
}

func (c *Client) requireCapability(cap Capability) error {
	if !c.HasCapability(cap) {
		return rterr.New(rterr.KindCapabilityMissing, fmt.Sprintf("broker did not grant capability: %s", cap))
	}
	return nil
}

// call sends one request and waits for its matching response, running
// through the circuit breaker. The connection is used by at most one
// in-flight call at a time (mu serializes callers).
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.callLocked(ctx, method, params, out)
	})
	if err != nil {
		if cbErr, ok := asBreakerError(err); ok {
			return rterr.Wrap(rterr.KindBrokerUnavailable, "secrets broker circuit open", cbErr)
		}
		return err
	}
	return nil
}

func asBreakerError(err error) (error, bool) {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return err, true
	}
	return nil, false
}

func (c *Client) callLocked(ctx context.Context, method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return rterr.Wrap(rterr.KindInvalidParams, "failed to marshal broker request", err)
	}

	req := request{ID: uuid.NewString(), Method: method, Params: raw}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Time{})
	}

	if err := writeFrame(c.conn, req); err != nil {
		return rterr.Wrap(rterr.KindBrokerUnavailable, "failed to write broker request", err)
	}

	var resp response
	if err := readFrame(c.conn, &resp); err != nil {
		return rterr.Wrap(rterr.KindBrokerUnavailable, "failed to read broker response", err)
	}
	if resp.ID != req.ID {
		return rterr.New(rterr.KindFramingError, "broker response id mismatch")
	}
	if resp.Error != nil {
		return rterr.New(rterr.Kind(resp.Error.Kind), resp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return rterr.Wrap(rterr.KindFramingError, "failed to unmarshal broker result", err)
	}
	return nil
}

func writeFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(payload) > maxFrameBytes {
		return fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxFrameBytes {
		return fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	var out HealthResult
	if err := c.call(ctx, "health", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if err := c.requireCapability(CapLLMComplete); err != nil {
		return nil, err
	}
	var out CompletionResult
	if err := c.call(ctx, string(CapLLMComplete), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Embed(ctx context.Context, req EmbedRequest) (*EmbedResult, error) {
	if err := c.requireCapability(CapEmbed); err != nil {
		return nil, err
	}
	var out EmbedResult
	if err := c.call(ctx, string(CapEmbed), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SignMessage(ctx context.Context, req SignMessageRequest) (*SignResult, error) {
	if err := c.requireCapability(CapSignMessage); err != nil {
		return nil, err
	}
	var out SignResult
	if err := c.call(ctx, string(CapSignMessage), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SignTypedData(ctx context.Context, req SignTypedDataRequest) (*SignResult, error) {
	if err := c.requireCapability(CapSignTypedData); err != nil {
		return nil, err
	}
	var out SignResult
	if err := c.call(ctx, string(CapSignTypedData), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAddress(ctx context.Context, req GetAddressRequest) (*GetAddressResult, error) {
	if err := c.requireCapability(CapGetAddress); err != nil {
		return nil, err
	}
	var out GetAddressResult
	if err := c.call(ctx, string(CapGetAddress), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

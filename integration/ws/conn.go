package ws

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/channelkit/core/transport"
)

// Conn is a live WebSocket channel. Implements transport.Channel.
//
// A background read loop services control frames (pongs, close) and
// marks the connection dead on read failure. Writes are serialized with
// a mutex since gorilla supports at most one concurrent writer.
type Conn struct {
	name         string
	conn         *websocket.Conn
	writeTimeout time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
	pong    chan struct{}
}

func newConn(name string, wsConn *websocket.Conn, writeTimeout, probeTimeout time.Duration, logger *slog.Logger) *Conn {
	c := &Conn{
		name:         name,
		conn:         wsConn,
		writeTimeout: writeTimeout,
		probeTimeout: probeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
		pong:         make(chan struct{}, 1),
	}

	wsConn.SetPongHandler(func(string) error {
		select {
		case c.pong <- struct{}{}:
		default:
		}
		return nil
	})

	go c.readLoop()

	return c
}

// readLoop drains incoming frames so control handlers fire. Delivery
// channels are write-mostly; data frames from the peer are discarded.
func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if c.closed.CompareAndSwap(false, true) {
				c.logger.Debug("websocket read loop ended",
					slog.String("channel", c.name),
					slog.Any("error", err))
			}
			return
		}
	}
}

// Send writes the payload as a single text frame.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if c.closed.Load() {
		return transport.NewError(transport.OpSend, c.name, ErrConnectionClosed)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.closed.Store(true)
		return transport.NewError(transport.OpSend, c.name, err)
	}
	return nil
}

// Probe performs a ping/pong round trip to verify the peer is alive.
func (c *Conn) Probe(ctx context.Context) error {
	if c.closed.Load() {
		return transport.NewError(transport.OpProbe, c.name, ErrConnectionClosed)
	}

	// Drain a stale pong left over from an earlier probe.
	select {
	case <-c.pong:
	default:
	}

	deadline := time.Now().Add(c.probeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.PingMessage, nil, deadline)
	c.writeMu.Unlock()
	if err != nil {
		c.closed.Store(true)
		return transport.NewError(transport.OpProbe, c.name, err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-c.pong:
		return nil
	case <-c.done:
		return transport.NewError(transport.OpProbe, c.name, ErrConnectionClosed)
	case <-ctx.Done():
		return transport.NewError(transport.OpProbe, c.name, ctx.Err())
	case <-timer.C:
		return transport.NewError(transport.OpProbe, c.name, ErrProbeTimeout)
	}
}

// Close sends a close frame and tears down the connection. Idempotent.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout))
	c.writeMu.Unlock()

	if err := c.conn.Close(); err != nil {
		return transport.NewError(transport.OpClose, c.name, err)
	}
	return nil
}

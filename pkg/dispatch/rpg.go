package dispatch

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"socialsync/pkg/transport"
	"socialsync/pkg/wire"
)

const (
	reconnectBackoff = 5 * time.Second
	heartbeatEvery   = 30 * time.Second
	dialTimeout      = 10 * time.Second
)

// RPGChannel is the persistent, session-authenticated streaming connection
// carrying SESSION_REQUIRED and EITHER traffic after login.
type RPGChannel struct {
	queue     *transport.QueueManager
	addr      string
	creds     Credentials
	sessionFn SessionFunc

	// onConnect and onDisconnect run on every connectivity transition;
	// the host wires offline resets and initial list pulls through them.
	onConnect    func()
	onDisconnect func()

	connected atomic.Bool
	wake      chan struct{}
}

func NewRPGChannel(queue *transport.QueueManager, addr string, creds Credentials, sessionFn SessionFunc, onConnect, onDisconnect func()) *RPGChannel {
	c := &RPGChannel{
		queue:        queue,
		addr:         addr,
		creds:        creds,
		sessionFn:    sessionFn,
		onConnect:    onConnect,
		onDisconnect: onDisconnect,
		wake:         make(chan struct{}, 1),
	}
	queue.OnQueueChanged(c.Wake)
	return c
}

// Online reports whether the streaming connection is currently established.
func (c *RPGChannel) Online() bool {
	return c.connected.Load()
}

// Wake nudges the write loop.
func (c *RPGChannel) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run maintains the connection until the context is cancelled, redialing
// with backoff. No connection is attempted without an established session.
func (c *RPGChannel) Run(ctx context.Context) {
	slog.Info("Starting channel", "component", "RPGChannel", "addr", c.addr)

	for {
		if ctx.Err() != nil {
			return
		}
		if !c.sessionFn().Established() {
			c.sleep(ctx, reconnectBackoff)
			continue
		}

		conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
		if err != nil {
			slog.Warn("Dial failed", "component", "RPGChannel", "error", err)
			c.sleep(ctx, reconnectBackoff)
			continue
		}

		c.serve(ctx, conn)

		// The connection thread cannot vouch for in-flight deliveries
		// once it dies; convert them to timed-out outcomes.
		c.queue.ClearActive(transport.ChannelRPG, true)
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
		c.sleep(ctx, reconnectBackoff)
	}
}

// serve runs the read and write loops for one connection and returns when
// either side fails.
func (c *RPGChannel) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	c.connected.Store(true)
	defer c.connected.Store(false)
	slog.Info("Connected", "component", "RPGChannel", "addr", c.addr)
	if c.onConnect != nil {
		c.onConnect()
	}

	readErr := make(chan error, 1)
	go c.readLoop(conn, readErr)

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()
	ticker := time.NewTicker(drainTick)
	defer ticker.Stop()

	// Anything already queued before the connection came up.
	c.drain(conn)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			slog.Warn("Connection lost", "component", "RPGChannel", "error", err)
			return
		case <-c.wake:
			if !c.drain(conn) {
				return
			}
		case <-ticker.C:
			if !c.drain(conn) {
				return
			}
		case <-heartbeat.C:
			if err := wire.WriteFrame(conn, wire.MsgHeartbeat, 0, nil); err != nil {
				slog.Warn("Heartbeat failed", "component", "RPGChannel", "error", err)
				return
			}
		}
	}
}

// drain transmits every eligible pending request. Returns false when the
// connection is no longer usable.
func (c *RPGChannel) drain(conn net.Conn) bool {
	sess := c.sessionFn()
	if !sess.Established() {
		return false
	}

	for _, req := range c.queue.ClaimPending(transport.ChannelRPG) {
		payload := encodeRequest(req, c.creds, sess)
		if err := wire.WriteFrame(conn, wire.MsgRequest, req.ID(), payload); err != nil {
			slog.Warn("Write failed", "component", "RPGChannel",
				"request_id", req.ID(), "error", err)
			return false
		}
		if req.FireAndForget {
			c.queue.Discard(req.ID())
		}
	}
	return true
}

// readLoop decodes inbound frames into outcomes until the stream breaks.
func (c *RPGChannel) readLoop(conn net.Conn, done chan<- error) {
	for {
		msgType, correlationID, payload, err := wire.ReadFrame(conn)
		if err != nil {
			done <- err
			return
		}

		switch msgType {
		case wire.MsgResponse:
			outcome, err := wire.DecodeOutcome(correlationID, payload)
			if err != nil {
				slog.Warn("Undecodable response", "component", "RPGChannel",
					"request_id", correlationID, "error", err)
				continue
			}
			c.queue.Publish(outcome)
		case wire.MsgPush:
			outcome, err := wire.DecodeOutcome(0, payload)
			if err != nil {
				slog.Warn("Undecodable push", "component", "RPGChannel", "error", err)
				continue
			}
			c.queue.Publish(outcome)
		case wire.MsgHeartbeat:
			// keepalive only
		default:
			slog.Debug("Ignoring unknown frame type", "component", "RPGChannel",
				"type", msgType)
		}
	}
}

func (c *RPGChannel) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

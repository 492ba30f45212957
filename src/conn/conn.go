// Package conn wraps one raw byte stream as a WebSocket connection: it
// runs the upgrade handshake, decodes frames, monitors liveness through an
// application-level heartbeat and reports its lifecycle as events.
package conn

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/roomcast/server/src/clock"
	"github.com/roomcast/server/src/types"
	"github.com/roomcast/server/src/wire"
)

// EventType names the observable outcomes of a connection.
type EventType int

const (
	// Opened fires once, after a successful handshake.
	Opened EventType = iota
	// Message carries a decoded non-control frame.
	Message
	// Closed fires when the client sends a close frame or the stream ends.
	Closed
	// HeartbeatLost fires when the heartbeat loss timer expires.
	HeartbeatLost
	// Invalid is the final event of every connection; after it no further
	// events are dispatched.
	Invalid
)

// Invalidation reasons carried by Invalid events.
const (
	ReasonClose         = "close"
	ReasonHeartbeatLost = "heartbeatLost"
	ReasonHandshake     = "handshake"
)

// Event is one lifecycle or message notification from a connection.
type Event struct {
	Type   EventType
	Conn   *Conn
	Frame  wire.Frame // set for Message
	Reason string     // set for Invalid
}

// Options configures the heartbeat protocol and the optional inbound rate
// limiter.
type Options struct {
	NetworkDelay          time.Duration
	HeartbeatInterval     time.Duration
	MaxHeartbeatLoseCount int
	MessageRate           float64 // messages per second, 0 disables
	MessageBurst          int
}

type state int

const (
	statePendingHandshake state = iota
	stateOpen
	stateClosed
)

// Conn is one client connection. It is created on raw stream accept and
// owned by the connection registry until invalidated.
type Conn struct {
	id   string
	sock net.Conn
	opts Options

	events  chan<- Event
	clock   clock.Clock
	logger  zerolog.Logger
	limiter *rate.Limiter

	send chan []byte
	done chan struct{}

	mu              sync.Mutex
	state           state
	pendingTimer    clock.Timer
	lossTimer       clock.Timer
	lastHeartbeatID any
	roomID          *int
	user            *types.User
}

// New wraps an accepted stream. Call Start to begin the handshake.
func New(sock net.Conn, events chan<- Event, opts Options, clk clock.Clock, logger zerolog.Logger) *Conn {
	c := &Conn{
		id:     uuid.New().String(),
		sock:   sock,
		opts:   opts,
		events: events,
		clock:  clk,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	c.logger = logger.With().Str("conn_id", c.id).Logger()
	if opts.MessageRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.MessageRate), opts.MessageBurst)
	}
	return c
}

// ID returns the connection's unique id.
func (c *Conn) ID() string { return c.id }

// Start runs the handshake and pumps in background goroutines.
func (c *Conn) Start() {
	go c.writePump()
	go c.readLoop()
}

// Room returns the room this connection is attached to, if any.
func (c *Conn) Room() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roomID == nil {
		return 0, false
	}
	return *c.roomID, true
}

// SetRoom attaches the connection to a room.
func (c *Conn) SetRoom(roomID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = &roomID
}

// ClearRoom detaches the connection from its room.
func (c *Conn) ClearRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = nil
}

// SetUser records the identity the connection joined with, for membership
// cleanup when the connection goes away.
func (c *Conn) SetUser(u types.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &u
}

// User returns the identity recorded by SetUser.
func (c *Conn) User() (types.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return types.User{}, false
	}
	return *c.user, true
}

// LastHeartbeatID returns the content of the most recent heartbeat.
func (c *Conn) LastHeartbeatID() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeatID
}

// IsOpen reports whether the connection is in the open state.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// Send encodes v as a text frame and queues it. Sends on a connection
// that is not open, or whose buffer is full, are dropped: one stale
// receiver must never abort a broadcast.
func (c *Conn) Send(v any) {
	c.mu.Lock()
	open := c.state == stateOpen
	c.mu.Unlock()
	if !open {
		return
	}

	data, err := wire.Encode(v)
	if err != nil {
		c.logger.Debug().Err(err).Msg("encode failed, dropping send")
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn().Msg("send buffer full, dropping")
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case data := <-c.send:
			if _, err := c.sock.Write(data); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
			}
		case <-c.done:
			return
		}
	}
}

// readLoop drives the whole lifecycle: handshake, then frames until the
// connection closes.
func (c *Conn) readLoop() {
	r := bufio.NewReader(c.sock)

	if err := wire.Handshake(r, c.sock); err != nil {
		// Protocol violation pre-open: end the stream without responding.
		c.logger.Debug().Err(err).Msg("handshake rejected")
		if c.beginClose() {
			c.events <- Event{Type: Invalid, Conn: c, Reason: ReasonHandshake}
		}
		return
	}

	c.mu.Lock()
	c.state = stateOpen
	c.mu.Unlock()
	c.logger.Debug().Msg("connection open")
	c.events <- Event{Type: Opened, Conn: c}
	c.armPending(true)

	for {
		frame, err := wire.ReadFrame(r)
		if err != nil && !errors.Is(err, wire.ErrPayloadNotJSON) {
			// Stream ended or unreadable. Heartbeat loss closes the
			// socket under us; in that case the loss path already
			// emitted its events.
			if c.beginClose() {
				c.events <- Event{Type: Closed, Conn: c}
				c.events <- Event{Type: Invalid, Conn: c, Reason: ReasonClose}
			}
			return
		}
		if err != nil {
			// Undecodable payload is a diagnostic, not a failure; the
			// frame passes through with its raw bytes.
			c.logger.Debug().Err(err).Msg("payload kept as raw bytes")
		}

		if frame.Opcode == wire.OpcodeClose {
			c.logger.Debug().Msg("client sent close frame")
			if c.beginClose() {
				c.events <- Event{Type: Closed, Conn: c}
				c.events <- Event{Type: Invalid, Conn: c, Reason: ReasonClose}
			}
			return
		}

		if payload, ok := frame.Value.(map[string]any); ok &&
			types.Payload(payload).Type() == types.TypeHeartbeat {
			c.receiveHeartbeat(types.Payload(payload))
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn().Msg("inbound rate limit exceeded, dropping message")
			continue
		}

		c.emitMessage(frame)
	}
}

func (c *Conn) emitMessage(frame wire.Frame) {
	c.mu.Lock()
	open := c.state == stateOpen
	c.mu.Unlock()
	if open {
		c.events <- Event{Type: Message, Conn: c, Frame: frame}
	}
}

// receiveHeartbeat updates liveness, restarts the heartbeat cycle and
// echoes the heartbeat back unchanged.
func (c *Conn) receiveHeartbeat(p types.Payload) {
	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return
	}
	c.lastHeartbeatID = p.Content()
	c.stopTimersLocked()
	c.mu.Unlock()

	c.armPending(false)
	c.Send(p)
}

// armPending starts the first-stage heartbeat timer. The first window
// after the handshake allows two network delays; every later window is one
// heartbeat interval plus one network delay.
func (c *Conn) armPending(first bool) {
	timeout := c.opts.HeartbeatInterval + c.opts.NetworkDelay
	if first {
		timeout = 2 * c.opts.NetworkDelay
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOpen {
		return
	}
	c.pendingTimer = c.clock.AfterFunc(timeout, c.onPendingTimeout)
}

// onPendingTimeout arms the second-stage loss timer. One missed beat does
// not terminate the connection; the loss window bounds how long a dead
// connection can go undetected.
func (c *Conn) onPendingTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOpen {
		return
	}
	window := time.Duration(c.opts.MaxHeartbeatLoseCount-1) *
		(c.opts.HeartbeatInterval + c.opts.NetworkDelay)
	c.lossTimer = c.clock.AfterFunc(window, c.onHeartbeatLost)
}

func (c *Conn) onHeartbeatLost() {
	if c.beginClose() {
		c.logger.Warn().Msg("heartbeat lost, closing connection")
		c.events <- Event{Type: HeartbeatLost, Conn: c}
		c.events <- Event{Type: Invalid, Conn: c, Reason: ReasonHeartbeatLost}
	}
}

// beginClose performs the one-way transition to closed. It reports whether
// the caller won the transition and therefore owns the closing events.
func (c *Conn) beginClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return false
	}
	c.state = stateClosed
	c.stopTimersLocked()
	c.sock.Close()
	close(c.done)
	return true
}

func (c *Conn) stopTimersLocked() {
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
		c.pendingTimer = nil
	}
	if c.lossTimer != nil {
		c.lossTimer.Stop()
		c.lossTimer = nil
	}
}

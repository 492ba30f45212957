package hub

import (
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roomcast/server/src/clock"
	"github.com/roomcast/server/src/conn"
	"github.com/roomcast/server/src/room"
	"github.com/roomcast/server/src/types"
)

// MessageBridge publishes room broadcasts to other server instances.
// Defined here to avoid a circular import with the bridge package.
type MessageBridge interface {
	Publish(roomID int, p types.Payload) error
	Available() bool
}

// Server is the composition root: it accepts raw connections, wires them
// into the hub, and interprets their decoded messages against the room
// registry.
type Server struct {
	hub   *Hub
	rooms *room.Registry
	opts  conn.Options

	events chan conn.Event
	done   chan struct{}

	clock  clock.Clock
	logger zerolog.Logger

	mu     sync.RWMutex
	bridge MessageBridge
}

// NewServer wires a server to its room registry. The registry's change
// notifications are routed through this server's hub.
func NewServer(rooms *room.Registry, opts conn.Options, clk clock.Clock, logger zerolog.Logger) *Server {
	s := &Server{
		hub:    New(logger),
		rooms:  rooms,
		opts:   opts,
		events: make(chan conn.Event, 256),
		done:   make(chan struct{}),
		clock:  clk,
		logger: logger.With().Str("component", "server").Logger(),
	}
	rooms.SetNotifier(s)
	return s
}

// Hub returns the connection registry.
func (s *Server) Hub() *Hub { return s.hub }

// SetBridge attaches a cross-instance message bridge.
func (s *Server) SetBridge(b MessageBridge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridge = b
}

// Run processes connection events until Stop. All registry mutation
// happens here, one event at a time, in per-connection arrival order.
func (s *Server) Run() {
	for {
		select {
		case ev := <-s.events:
			s.handleEvent(ev)
		case <-s.done:
			return
		}
	}
}

// Stop halts the event loop.
func (s *Server) Stop() {
	close(s.done)
}

// Serve accepts raw connections from ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		sock, err := ln.Accept()
		if err != nil {
			return err
		}
		s.Attach(sock)
	}
}

// Attach wraps an accepted stream as a connection, registers it and
// starts its handshake.
func (s *Server) Attach(sock net.Conn) *conn.Conn {
	c := conn.New(sock, s.events, s.opts, s.clock, s.logger)
	s.hub.Add(c)
	c.Start()
	return c
}

func (s *Server) handleEvent(ev conn.Event) {
	switch ev.Type {
	case conn.Opened:
		s.logger.Info().Str("conn_id", ev.Conn.ID()).Msg("connection opened")
	case conn.Message:
		s.handleMessage(ev)
	case conn.Closed:
		s.logger.Info().Str("conn_id", ev.Conn.ID()).Msg("connection closed")
	case conn.HeartbeatLost:
		s.logger.Warn().Str("conn_id", ev.Conn.ID()).Msg("connection lost heartbeat")
	case conn.Invalid:
		s.handleInvalid(ev)
	}
}

// handleInvalid deregisters the connection and, when it was joined to a
// room, removes its member entry so rooms do not accumulate ghosts.
func (s *Server) handleInvalid(ev conn.Event) {
	s.hub.Remove(ev.Conn)
	s.logger.Info().
		Str("conn_id", ev.Conn.ID()).
		Str("reason", ev.Reason).
		Msg("connection invalidated")

	roomID, joined := ev.Conn.Room()
	user, known := ev.Conn.User()
	if joined && known {
		s.rooms.Leave(roomID, user)
	}
}

func (s *Server) handleMessage(ev conn.Event) {
	payload, ok := ev.Frame.Value.(map[string]any)
	if !ok {
		s.logger.Debug().Msg("non-object payload, dropping")
		return
	}
	p := types.Payload(payload)

	switch {
	case p.IsChat():
		s.handleChat(ev.Conn, p)
	case p.Type() == types.TypeReconnect:
		s.handleReconnect(ev.Conn, p)
	default:
		s.logger.Debug().Str("type", p.Type()).Msg("unhandled message type")
	}
}

// handleChat routes a chat-domain message: membership changes for Join and
// Leave, then append to the room's log and fan out to the room. A missing
// room is answered to the sender alone with an in-band error marker.
func (s *Server) handleChat(c *conn.Conn, p types.Payload) {
	roomID, _ := p.RoomID()
	if !s.rooms.Exists(roomID) {
		c.Send(p.WithRoomError(types.RoomErrorNotFound))
		return
	}

	user := types.User{UID: p.UID(), Uname: p.Uname()}

	switch p.Type() {
	case types.TypeJoin:
		c.SetRoom(roomID)
		c.SetUser(user)
		s.rooms.Join(roomID, user)
	case types.TypeLeave:
		// Member removal first, so the stored leave message carries no
		// color; the sender's cleared room keeps it out of the fan-out.
		c.ClearRoom()
		s.rooms.Leave(roomID, user)
	}

	msg, ok := s.rooms.Append(roomID, p)
	if !ok {
		return
	}
	s.broadcastToRoom(roomID, msg, true)
}

// handleReconnect re-attaches the connection to its room and replies with
// the messages it missed. The member entry is not re-created.
func (s *Server) handleReconnect(c *conn.Conn, p types.Payload) {
	roomID, lastMsgID, ok := p.ReconnectInfo()
	if !ok {
		s.logger.Debug().Msg("reconnect without room id, dropping")
		return
	}
	c.SetRoom(roomID)

	reply := p.Clone()
	reply["content"] = s.rooms.MessagesSince(roomID, lastMsgID)
	c.Send(reply)
}

// broadcastToRoom fans a payload out to local members of the room and,
// when publish is set, to other instances through the bridge.
func (s *Server) broadcastToRoom(roomID int, p types.Payload, publish bool) {
	s.hub.Broadcast(p, InRoom(roomID))

	if !publish {
		return
	}
	s.mu.RLock()
	b := s.bridge
	s.mu.RUnlock()
	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(roomID, p); err != nil {
		s.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// DeliverLocal hands a payload relayed from another instance to this
// instance's members of the room. It never re-publishes.
func (s *Server) DeliverLocal(roomID int, p types.Payload) {
	s.broadcastToRoom(roomID, p, false)
}

// RoomUsersChanged implements room.Notifier: the updated member list goes
// to every connection attached to the room.
func (s *Server) RoomUsersChanged(roomID int, users []types.User) {
	s.broadcastToRoom(roomID, types.RoomUsersChanged(users), true)
}

// RoomListChanged implements room.Notifier: room existence churn goes to
// connections still on the room-selection screen.
func (s *Server) RoomListChanged() {
	s.hub.Broadcast(types.RoomListChanged(), InLobby())
}

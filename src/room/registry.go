// Package room owns the set of chat rooms: member lists, append-only
// message logs with monotonic ids, color assignment and idle reclamation.
package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/server/src/clock"
	"github.com/roomcast/server/src/types"
)

// Notifier receives room-change notifications. Calls happen synchronously
// with the mutation that caused them, so by the time a registry operation
// returns, every target connection has the notification in its outbound
// buffer.
type Notifier interface {
	// RoomUsersChanged fires on every member-list change of a room.
	RoomUsersChanged(roomID int, users []types.User)
	// RoomListChanged fires on every room creation or deletion,
	// including idle auto-deletion.
	RoomListChanged()
}

// Snapshot is a point-in-time copy of a room, safe to hand to HTTP
// handlers and JSON encoders. Field names match the wire contract.
type Snapshot struct {
	RoomID    int             `json:"roomId"`
	RoomName  string          `json:"roomName"`
	UserList  []types.User    `json:"userList"`
	MsgList   []types.Payload `json:"msgList"`
	NextMsgID int             `json:"msgId"`
}

type room struct {
	roomID    int
	roomName  string
	userList  []types.User
	msgList   []types.Payload
	nextMsgID int
	colors    []colorRef
}

// Registry is the process-wide owner of all rooms. All methods are safe
// for concurrent use; the HTTP API and the connection event loop share one
// instance.
type Registry struct {
	mu         sync.Mutex
	rooms      map[int]*room
	order      []int // creation order, for stable listings
	nextRoomID int
	idleTimers map[int]clock.Timer

	idleTimeout time.Duration
	clock       clock.Clock
	notifier    Notifier
	logger      zerolog.Logger
}

// NewRegistry creates an empty registry. Room ids start at 0 and are never
// reused.
func NewRegistry(idleTimeout time.Duration, clk clock.Clock, logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:       make(map[int]*room),
		idleTimers:  make(map[int]clock.Timer),
		idleTimeout: idleTimeout,
		clock:       clk,
		logger:      logger.With().Str("component", "rooms").Logger(),
	}
}

// SetNotifier attaches the broadcast notifier. Set once at wiring time,
// before any traffic.
func (r *Registry) SetNotifier(n Notifier) { r.notifier = n }

// Create allocates the next room id, stores a fresh room under it and
// returns a snapshot.
func (r *Registry) Create(name string) Snapshot {
	r.mu.Lock()
	rm := &room{
		roomID:   r.nextRoomID,
		roomName: name,
		colors:   newColorPool(),
	}
	r.rooms[rm.roomID] = rm
	r.order = append(r.order, rm.roomID)
	r.nextRoomID++
	snap := snapshotOf(rm)
	r.mu.Unlock()

	r.logger.Info().Int("room_id", snap.RoomID).Str("name", name).Msg("room created")
	r.notifyRoomList()
	return snap
}

// Delete removes the room unconditionally. Deleting an absent id is a
// no-op.
func (r *Registry) Delete(roomID int) {
	r.mu.Lock()
	_, existed := r.rooms[roomID]
	if existed {
		delete(r.rooms, roomID)
		for i, id := range r.order {
			if id == roomID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	if t, ok := r.idleTimers[roomID]; ok {
		t.Stop()
		delete(r.idleTimers, roomID)
	}
	r.mu.Unlock()

	if existed {
		r.logger.Info().Int("room_id", roomID).Msg("room deleted")
		r.notifyRoomList()
	}
}

// Join appends the user to the room's member list with a color drawn from
// the pool. It reports false, mutating nothing, when the room does not
// exist.
func (r *Registry) Join(roomID int, user types.User) bool {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	user.Color = refColor(rm.colors)
	rm.userList = append(rm.userList, user)
	users := append([]types.User(nil), rm.userList...)
	r.cancelIdleLocked(roomID)
	r.mu.Unlock()

	r.notifyUsers(roomID, users)
	return true
}

// Leave removes the member matching the user's uid and releases its color
// back to the pool.
func (r *Registry) Leave(roomID int, user types.User) bool {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	kept := rm.userList[:0]
	for _, u := range rm.userList {
		if types.UIDEqual(u.UID, user.UID) {
			unrefColor(rm.colors, u.Color)
			continue
		}
		kept = append(kept, u)
	}
	rm.userList = kept
	users := append([]types.User(nil), rm.userList...)
	if len(users) == 0 {
		r.armIdleLocked(roomID)
	}
	r.mu.Unlock()

	r.notifyUsers(roomID, users)
	return true
}

// Append assigns the next msgId, stamps the sender's current color onto a
// copy of the payload and appends it to the room's log. The stored message
// is immutable from the caller's point of view. It reports false, dropping
// the message, when the room does not exist.
func (r *Registry) Append(roomID int, p types.Payload) (types.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}

	msg := p.Clone()
	msg["msgId"] = rm.nextMsgID
	for _, u := range rm.userList {
		if types.UIDEqual(u.UID, p.UID()) {
			msg["color"] = u.Color
			break
		}
	}
	rm.msgList = append(rm.msgList, msg)
	rm.nextMsgID++
	return msg, true
}

// MessagesSince returns all stored messages with msgId > fromMsgID in
// storage order. An absent room yields an empty slice.
func (r *Registry) MessagesSince(roomID, fromMsgID int) []types.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []types.Payload{}
	rm, ok := r.rooms[roomID]
	if !ok {
		return out
	}
	for _, m := range rm.msgList {
		if id, ok := toMsgID(m["msgId"]); ok && id > fromMsgID {
			out = append(out, m)
		}
	}
	return out
}

// Exists reports whether the room id is currently mapped.
func (r *Registry) Exists(roomID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Get returns a snapshot of one room.
func (r *Registry) Get(roomID int) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(rm), true
}

// List returns snapshots of all rooms in creation order.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, snapshotOf(r.rooms[id]))
	}
	return out
}

// Users returns a copy of the room's current member list.
func (r *Registry) Users(roomID int) []types.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]types.User(nil), rm.userList...)
}

// armIdleLocked starts the idle-close timer for a now-empty room. At most
// one timer per room is pending.
func (r *Registry) armIdleLocked(roomID int) {
	if _, ok := r.idleTimers[roomID]; ok {
		return
	}
	r.logger.Debug().Int("room_id", roomID).Msg("room empty, idle close armed")
	r.idleTimers[roomID] = r.clock.AfterFunc(r.idleTimeout, func() {
		r.mu.Lock()
		delete(r.idleTimers, roomID)
		r.mu.Unlock()
		r.logger.Info().Int("room_id", roomID).Msg("idle window elapsed, closing room")
		r.Delete(roomID)
	})
}

func (r *Registry) cancelIdleLocked(roomID int) {
	if t, ok := r.idleTimers[roomID]; ok {
		t.Stop()
		delete(r.idleTimers, roomID)
		r.logger.Debug().Int("room_id", roomID).Msg("idle close cancelled")
	}
}

func (r *Registry) notifyUsers(roomID int, users []types.User) {
	if r.notifier != nil {
		r.notifier.RoomUsersChanged(roomID, users)
	}
}

func (r *Registry) notifyRoomList() {
	if r.notifier != nil {
		r.notifier.RoomListChanged()
	}
}

func snapshotOf(rm *room) Snapshot {
	return Snapshot{
		RoomID:    rm.roomID,
		RoomName:  rm.roomName,
		UserList:  append([]types.User(nil), rm.userList...),
		MsgList:   append([]types.Payload(nil), rm.msgList...),
		NextMsgID: rm.nextMsgID,
	}
}

func toMsgID(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

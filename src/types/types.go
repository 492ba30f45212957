// Package types holds the payload and identity types shared between the
// wire layer, the room registry and the server.
package types

import (
	"reflect"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Control payload types. Anything whose type begins with an uppercase
// character is a chat-domain message instead.
const (
	TypeHeartbeat       = "heartbeat"
	TypeReconnect       = "reconnect"
	TypeJoin            = "Join"
	TypeLeave           = "Leave"
	TypeRoomUserChanged = "refresh_room_user"
	TypeRoomListChanged = "refresh_room_list"
)

// RoomErrorNotFound marks a reply whose target room does not exist.
const RoomErrorNotFound = "NotFound"

// Payload is one decoded application message. Beyond the recognized fields
// the content is freeform, so it stays a map and round-trips untouched.
type Payload map[string]any

// User is a lightweight copy of a member's identity kept in a room's user
// list for broadcast filtering, never a live connection reference.
type User struct {
	UID   any    `json:"uid"`
	Uname string `json:"uname"`
	Color string `json:"color,omitempty"`
}

// Type returns the discriminator field, or "" when absent.
func (p Payload) Type() string {
	t, _ := p["type"].(string)
	return t
}

// UID returns the sender identity as received.
func (p Payload) UID() any { return p["uid"] }

// Uname returns the sender display name, or "".
func (p Payload) Uname() string {
	u, _ := p["uname"].(string)
	return u
}

// RoomID returns the target room id. JSON numbers arrive as float64 and
// reconnect payloads may carry the id as a string, so both are accepted.
func (p Payload) RoomID() (int, bool) {
	return toInt(p["roomId"])
}

// Content returns the freeform content field.
func (p Payload) Content() any { return p["content"] }

// ReconnectInfo extracts {roomId, lastMsgId} from a reconnect payload's
// content.
func (p Payload) ReconnectInfo() (roomID, lastMsgID int, ok bool) {
	content, isMap := p.Content().(map[string]any)
	if !isMap {
		return 0, 0, false
	}
	roomID, ok = toInt(content["roomId"])
	lastMsgID, _ = toInt(content["lastMsgId"])
	return roomID, lastMsgID, ok
}

// Clone returns a shallow copy; stored messages are copies so later caller
// mutation cannot reach the room's log.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// IsChat reports whether the payload belongs to the chat domain. The wire
// contract distinguishes chat messages purely by case: the first character
// of type is unchanged by upper-casing. Digits and symbols therefore count
// as chat, matching the behavior clients rely on.
func (p Payload) IsChat() bool {
	t := p.Type()
	if t == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(t)
	return unicode.ToUpper(r) == r
}

// WithRoomError returns a copy of p carrying an in-band room error marker.
func (p Payload) WithRoomError(reason string) Payload {
	out := p.Clone()
	out["roomError"] = reason
	return out
}

// RoomUsersChanged builds the notification sent to a room's members when
// its user list changes.
func RoomUsersChanged(users []User) Payload {
	return Payload{"type": TypeRoomUserChanged, "content": users}
}

// RoomListChanged builds the notification sent to lobby connections when a
// room is created or deleted.
func RoomListChanged() Payload {
	return Payload{"type": TypeRoomListChanged, "content": TypeRoomListChanged}
}

// UIDEqual compares two uid values as received off the wire.
func UIDEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

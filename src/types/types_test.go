package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsChat(t *testing.T) {
	tests := []struct {
		typ  string
		want bool
	}{
		{"Join", true},
		{"Leave", true},
		{"Hi", true},
		{"heartbeat", false},
		{"reconnect", false},
		{"refresh_room_user", false},
		// Case-stable characters count as chat; this is part of the
		// wire contract.
		{"1on1", true},
		{"_sys", true},
		{"", false},
	}
	for _, tt := range tests {
		p := Payload{"type": tt.typ}
		assert.Equal(t, tt.want, p.IsChat(), "type %q", tt.typ)
	}
}

func TestRoomID(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
		ok   bool
	}{
		{"json number", float64(3), 3, true},
		{"string", "7", 7, true},
		{"garbage string", "seven", 0, false},
		{"absent", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Payload{}
			if tt.in != nil {
				p["roomId"] = tt.in
			}
			got, ok := p.RoomID()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconnectInfo(t *testing.T) {
	p := Payload{
		"type":    TypeReconnect,
		"content": map[string]any{"roomId": "2", "lastMsgId": float64(5)},
	}
	roomID, lastMsgID, ok := p.ReconnectInfo()
	assert.True(t, ok)
	assert.Equal(t, 2, roomID)
	assert.Equal(t, 5, lastMsgID)

	_, _, ok = Payload{"type": TypeReconnect, "content": "oops"}.ReconnectInfo()
	assert.False(t, ok)
}

func TestWithRoomErrorCopies(t *testing.T) {
	p := Payload{"type": "Hi", "roomId": float64(9)}
	out := p.WithRoomError(RoomErrorNotFound)

	assert.Equal(t, RoomErrorNotFound, out["roomError"])
	assert.Equal(t, "Hi", out["type"])
	_, leaked := p["roomError"]
	assert.False(t, leaked, "original payload must stay untouched")
}

func TestUIDEqual(t *testing.T) {
	assert.True(t, UIDEqual(float64(1), float64(1)))
	assert.True(t, UIDEqual("u1", "u1"))
	assert.False(t, UIDEqual(float64(1), "1"))
	assert.False(t, UIDEqual(nil, float64(0)))
}

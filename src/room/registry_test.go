package room

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcast/server/src/clock"
	"github.com/roomcast/server/src/types"
)

// recordingNotifier captures notifications in call order.
type recordingNotifier struct {
	userChanges []userChange
	listChanges int
}

type userChange struct {
	roomID int
	users  []types.User
}

func (n *recordingNotifier) RoomUsersChanged(roomID int, users []types.User) {
	n.userChanges = append(n.userChanges, userChange{roomID: roomID, users: users})
}

func (n *recordingNotifier) RoomListChanged() { n.listChanges++ }

func newTestRegistry(t *testing.T) (*Registry, *recordingNotifier, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	reg := NewRegistry(time.Minute, clk, zerolog.Nop())
	n := &recordingNotifier{}
	reg.SetNotifier(n)
	return reg, n, clk
}

func TestCreateAssignsMonotonicIDs(t *testing.T) {
	reg, n, _ := newTestRegistry(t)

	a := reg.Create("a")
	b := reg.Create("b")
	assert.Equal(t, 0, a.RoomID)
	assert.Equal(t, 1, b.RoomID)
	assert.Equal(t, 2, n.listChanges)

	// Deleted ids are never reused.
	reg.Delete(b.RoomID)
	c := reg.Create("c")
	assert.Equal(t, 2, c.RoomID)
}

func TestDeleteIsIdempotent(t *testing.T) {
	reg, n, _ := newTestRegistry(t)
	reg.Create("a")

	reg.Delete(42)
	assert.True(t, reg.Exists(0))
	assert.Len(t, reg.List(), 1)
	// Deleting an absent id must not notify either.
	assert.Equal(t, 1, n.listChanges)
}

func TestMessageOrdering(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	snap := reg.Create("a")
	reg.Join(snap.RoomID, types.User{UID: float64(1), Uname: "alice"})

	const n = 5
	for i := 0; i < n; i++ {
		msg, ok := reg.Append(snap.RoomID, types.Payload{
			"type": "Hi", "uid": float64(1), "content": fmt.Sprintf("m%d", i),
		})
		require.True(t, ok)
		assert.Equal(t, i, msg["msgId"])
	}

	since := reg.MessagesSince(snap.RoomID, 2)
	require.Len(t, since, 2)
	assert.Equal(t, 3, since[0]["msgId"])
	assert.Equal(t, 4, since[1]["msgId"])
}

func TestAppendStampsSenderColor(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	snap := reg.Create("a")
	reg.Join(snap.RoomID, types.User{UID: float64(1), Uname: "alice"})

	msg, ok := reg.Append(snap.RoomID, types.Payload{"type": "Hi", "uid": float64(1)})
	require.True(t, ok)
	assert.Equal(t, palette[0], msg["color"])

	// Unknown sender gets no color field.
	msg, ok = reg.Append(snap.RoomID, types.Payload{"type": "Hi", "uid": float64(9)})
	require.True(t, ok)
	_, hasColor := msg["color"]
	assert.False(t, hasColor)
}

func TestAppendToMissingRoomDropsMessage(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, ok := reg.Append(7, types.Payload{"type": "Hi"})
	assert.False(t, ok)
	assert.Empty(t, reg.MessagesSince(7, -1))
}

func TestJoinMissingRoomIsNoOp(t *testing.T) {
	reg, n, _ := newTestRegistry(t)
	assert.False(t, reg.Join(3, types.User{UID: float64(1)}))
	assert.Empty(t, n.userChanges)
}

func TestColorAssignmentPrefersReleased(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	snap := reg.Create("a")

	// One more member than there are colors: the overflow member shares
	// the first color.
	for i := 0; i <= len(palette); i++ {
		reg.Join(snap.RoomID, types.User{UID: float64(i)})
	}
	users := reg.Users(snap.RoomID)
	require.Len(t, users, len(palette)+1)
	for i := 0; i < len(palette); i++ {
		assert.Equal(t, palette[i], users[i].Color)
	}
	assert.Equal(t, palette[0], users[len(palette)].Color)

	// The first member leaves, releasing one reference on palette[0];
	// the next join picks it as the least-referenced color.
	reg.Leave(snap.RoomID, types.User{UID: float64(0)})
	reg.Join(snap.RoomID, types.User{UID: float64(99)})
	users = reg.Users(snap.RoomID)
	assert.Equal(t, palette[0], users[len(users)-1].Color)
}

func TestMemberChangeNotifications(t *testing.T) {
	reg, n, _ := newTestRegistry(t)
	snap := reg.Create("a")

	reg.Join(snap.RoomID, types.User{UID: float64(1), Uname: "alice"})
	reg.Join(snap.RoomID, types.User{UID: float64(2), Uname: "bob"})
	reg.Leave(snap.RoomID, types.User{UID: float64(1)})

	require.Len(t, n.userChanges, 3)
	assert.Len(t, n.userChanges[0].users, 1)
	assert.Len(t, n.userChanges[1].users, 2)
	require.Len(t, n.userChanges[2].users, 1)
	assert.Equal(t, "bob", n.userChanges[2].users[0].Uname)
}

func TestIdleAutoClose(t *testing.T) {
	reg, n, clk := newTestRegistry(t)
	snap := reg.Create("a")
	user := types.User{UID: float64(1)}

	reg.Join(snap.RoomID, user)
	reg.Leave(snap.RoomID, user)
	assert.True(t, reg.Exists(snap.RoomID))

	clk.Advance(time.Minute)
	assert.False(t, reg.Exists(snap.RoomID))
	// Creation plus idle deletion.
	assert.Equal(t, 2, n.listChanges)
}

func TestIdleCloseCancelledByJoin(t *testing.T) {
	reg, _, clk := newTestRegistry(t)
	snap := reg.Create("a")
	user := types.User{UID: float64(1)}

	reg.Join(snap.RoomID, user)
	reg.Leave(snap.RoomID, user)

	clk.Advance(30 * time.Second)
	reg.Join(snap.RoomID, types.User{UID: float64(2)})
	clk.Advance(10 * time.Minute)

	assert.True(t, reg.Exists(snap.RoomID), "join within the window must cancel the idle close")
}

func TestRoomLifecycleScenario(t *testing.T) {
	reg, _, clk := newTestRegistry(t)
	snap := reg.Create("A")
	user := types.User{UID: float64(1), Uname: "u1"}

	require.True(t, reg.Join(snap.RoomID, user))
	msg, ok := reg.Append(snap.RoomID, types.Payload{"type": "Hi", "uid": float64(1)})
	require.True(t, ok)
	assert.Equal(t, 0, msg["msgId"])

	// msgId 0 is the whole log; catch-up is strictly after the cursor.
	assert.Len(t, reg.MessagesSince(snap.RoomID, -1), 1)
	assert.Empty(t, reg.MessagesSince(snap.RoomID, 0))

	reg.Leave(snap.RoomID, user)
	assert.Empty(t, reg.Users(snap.RoomID))

	clk.Advance(time.Minute)
	assert.False(t, reg.Exists(snap.RoomID))
}

func TestSnapshotIsACopy(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	snap := reg.Create("a")
	reg.Join(snap.RoomID, types.User{UID: float64(1)})

	got, ok := reg.Get(snap.RoomID)
	require.True(t, ok)
	got.UserList[0].Uname = "mutated"

	fresh, _ := reg.Get(snap.RoomID)
	assert.NotEqual(t, "mutated", fresh.UserList[0].Uname)
}

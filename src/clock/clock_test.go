package clock

import (
	"testing"
	"time"
)

func TestMockFiresInDeadlineOrder(t *testing.T) {
	m := NewMock()
	var order []string

	m.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	m.AfterFunc(time.Second, func() { order = append(order, "a") })

	m.Advance(500 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("nothing should have fired yet, got %v", order)
	}

	m.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want [a b]", order)
	}
}

func TestMockStop(t *testing.T) {
	m := NewMock()
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("first Stop should report cancellation")
	}
	if timer.Stop() {
		t.Error("second Stop should report nothing to cancel")
	}

	m.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer must not fire")
	}
}

func TestMockCallbackMayArmTimers(t *testing.T) {
	m := NewMock()
	chained := false
	m.AfterFunc(time.Second, func() {
		m.AfterFunc(time.Second, func() { chained = true })
	})

	m.Advance(time.Second)
	if chained {
		t.Error("chained timer is not due yet")
	}
	m.Advance(time.Second)
	if !chained {
		t.Error("chained timer should have fired")
	}
}

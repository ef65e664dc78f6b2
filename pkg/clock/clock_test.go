package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var order []string

	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	stopped := c.AfterFunc(1500*time.Millisecond, func() { order = append(order, "x") })

	if !stopped.Stop() {
		t.Fatal("Stop() on a pending timer should report true")
	}
	if stopped.Stop() {
		t.Error("second Stop() should report false")
	}

	c.Advance(1 * time.Second)
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("after 1s order = %v", order)
	}

	c.Advance(5 * time.Second)
	if len(order) != 2 || order[1] != "b" {
		t.Fatalf("after 6s order = %v", order)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
	if got := c.Now(); !got.Equal(time.Unix(6, 0)) {
		t.Errorf("Now() = %v", got)
	}
}

func TestFakeCallbackSchedulesWithinWindow(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := 0
	c.AfterFunc(time.Second, func() {
		fired++
		c.AfterFunc(time.Second, func() { fired++ })
	})

	c.Advance(3 * time.Second)
	if fired != 2 {
		t.Errorf("fired = %d, want 2", fired)
	}
}

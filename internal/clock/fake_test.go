package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, time.November, 3, 12, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	c.AfterFunc(time.Second, func() { order = append(order, "first") })

	c.Advance(500 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("fired early: %v", order)
	}

	c.Advance(5 * time.Second)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d", c.Pending())
	}
}

func TestFakeTimerStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop on armed timer returned false")
	}
	if timer.Stop() {
		t.Fatal("second Stop returned true")
	}
	c.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestFakeTickerReschedules(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Hour)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		c.Advance(time.Hour)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	ticker.Stop()
	c.Advance(time.Hour)
	select {
	case <-ticker.C:
		t.Fatal("tick after Stop")
	default:
	}
}

func TestFakeAfterFuncScheduledFromCallback(t *testing.T) {
	c := Fake(epoch)
	count := 0
	var arm func()
	arm = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, arm)
		}
	}
	c.AfterFunc(time.Second, arm)

	c.Advance(time.Second)
	c.Advance(time.Second)
	c.Advance(time.Second)
	if count != 3 {
		t.Fatalf("count = %d", count)
	}
}

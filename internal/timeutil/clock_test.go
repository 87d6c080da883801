package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	if now := c.Now(); now.Before(before) {
		t.Errorf("Now() = %v, before %v", now, before)
	}
	if d := c.Since(before.Add(-time.Second)); d < time.Second {
		t.Errorf("Since() = %v, want >= 1s", d)
	}

	ticker := c.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	c := NewMockClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
	c.Advance(90 * time.Second)
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
}

func TestMockClock_Ticker(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(5 * time.Second)

	tests := []struct {
		advance time.Duration
		fires   bool
	}{
		{4 * time.Second, false},
		{time.Second, true},
		{4 * time.Second, false},
		{time.Second, true},
	}
	for i, tt := range tests {
		c.Advance(tt.advance)
		select {
		case <-ticker.C():
			if !tt.fires {
				t.Fatalf("advance %d: ticker fired early", i)
			}
		default:
			if tt.fires {
				t.Fatalf("advance %d: ticker did not fire", i)
			}
		}
	}

	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockClock_TickerDropsUnreadTicks(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second)
	c.Advance(time.Second)
	c.Advance(time.Second)

	if got := <-ticker.C(); !got.Equal(time.Unix(1, 0)) {
		t.Errorf("tick = %v, want the first one", got)
	}
	select {
	case <-ticker.C():
		t.Error("second tick should have been dropped")
	default:
	}
}

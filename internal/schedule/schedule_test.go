package schedule

import (
	"testing"
	"time"
)

func TestManual_FireWhileRunning(t *testing.T) {
	m := NewManual()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	if !m.Fire(at) {
		t.Fatal("Fire on a running scheduler returned false")
	}
	select {
	case got := <-m.C():
		if !got.Equal(at) {
			t.Errorf("tick = %v, want %v", got, at)
		}
	default:
		t.Fatal("no tick delivered")
	}
}

func TestManual_StopDropsTicks(t *testing.T) {
	m := NewManual()
	m.Stop()
	if m.Running() {
		t.Error("Running() = true after Stop")
	}
	if m.Fire(time.Now()) {
		t.Error("Fire after Stop returned true")
	}
	select {
	case <-m.C():
		t.Error("tick delivered while stopped")
	default:
	}

	m.Reset(15 * time.Second)
	if !m.Running() {
		t.Error("Reset did not rearm the scheduler")
	}
	if m.Interval() != 15*time.Second {
		t.Errorf("Interval() = %v, want 15s", m.Interval())
	}
	if !m.Fire(time.Now()) {
		t.Error("Fire after Reset returned false")
	}
}

func TestTicker_Ticks(t *testing.T) {
	tk := NewTicker(5 * time.Millisecond)
	defer tk.Stop()

	select {
	case <-tk.C():
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestTicker_StopAndReset(t *testing.T) {
	tk := NewTicker(time.Hour)
	tk.Stop()
	tk.Reset(5 * time.Millisecond)
	defer tk.Stop()

	select {
	case <-tk.C():
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not fire after Reset")
	}
}

var (
	_ Scheduler = (*Ticker)(nil)
	_ Scheduler = (*Manual)(nil)
)

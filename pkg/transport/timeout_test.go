package transport

import (
	"testing"
	"time"
)

func TestWatcherExpiredOrder(t *testing.T) {
	w := NewTimeoutWatcher()
	base := time.Now()

	w.Arm(3, base.Add(30*time.Second))
	w.Arm(1, base.Add(10*time.Second))
	w.Arm(2, base.Add(20*time.Second))

	expired := w.Expired(base.Add(25 * time.Second))
	if len(expired) != 2 {
		t.Fatalf("expected 2 expired, got %d", len(expired))
	}
	if expired[0] != 1 || expired[1] != 2 {
		t.Errorf("expected earliest-first order [1 2], got %v", expired)
	}

	if next, ok := w.Next(); !ok || !next.Equal(base.Add(30*time.Second)) {
		t.Errorf("expected next deadline at +30s, got %v %v", next, ok)
	}
}

func TestWatcherDisarm(t *testing.T) {
	w := NewTimeoutWatcher()
	base := time.Now()

	w.Arm(1, base.Add(10*time.Second))
	w.Arm(2, base.Add(20*time.Second))
	w.Disarm(1)

	expired := w.Expired(base.Add(time.Minute))
	if len(expired) != 1 || expired[0] != 2 {
		t.Errorf("expected only id 2 after disarm, got %v", expired)
	}
}

func TestWatcherStop(t *testing.T) {
	w := NewTimeoutWatcher()
	base := time.Now()

	w.Arm(1, base)
	w.Stop()

	if expired := w.Expired(base.Add(time.Minute)); len(expired) != 0 {
		t.Errorf("stopped watcher must track nothing, got %v", expired)
	}

	// A stopped watcher ignores new arms.
	w.Arm(2, base)
	if expired := w.Expired(base.Add(time.Minute)); len(expired) != 0 {
		t.Errorf("stopped watcher accepted an arm, got %v", expired)
	}
}

func TestWatcherDisarmIgnoresUnarmedIDs(t *testing.T) {
	w := NewTimeoutWatcher()

	for id := uint64(1); id <= 500; id++ {
		w.Disarm(id)
	}

	if n := len(w.disarmed); n != 0 {
		t.Errorf("disarmed map retains %d entries for ids never armed", n)
	}
}

func TestWatcherDropsStateOnceEntrySurfaces(t *testing.T) {
	w := NewTimeoutWatcher()
	base := time.Now()

	w.Arm(1, base)
	w.Arm(2, base)
	w.Disarm(1)
	w.Expired(base.Add(time.Second))

	if len(w.armed) != 0 || len(w.disarmed) != 0 {
		t.Errorf("watcher retains state after drain: armed=%d disarmed=%d",
			len(w.armed), len(w.disarmed))
	}

	// Disarming an id whose expiry already surfaced is a no-op too.
	w.Disarm(2)
	if n := len(w.disarmed); n != 0 {
		t.Errorf("late disarm left %d entries", n)
	}
}

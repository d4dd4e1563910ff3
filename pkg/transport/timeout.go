package transport

import (
	"container/heap"
	"time"
)

// deadlineEntry is a lightweight entry in the watcher's heap. Only the
// request ID and its deadline are stored.
type deadlineEntry struct {
	requestID uint64
	deadline  time.Time
}

// deadlineHeap implements heap.Interface as a min-heap ordered by deadline.
type deadlineHeap []*deadlineEntry

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *deadlineHeap) Push(x any) {
	*h = append(*h, x.(*deadlineEntry))
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[0 : n-1]
	return item
}

// TimeoutWatcher tracks armed requests independently of queue traffic. It
// only detects expiry; the caller draining Expired is responsible for
// synthesizing timed-out outcomes and removing the queue entries.
type TimeoutWatcher struct {
	entries deadlineHeap
	// armed holds the IDs with a live heap entry; disarmed marks armed
	// entries dropped before expiry, removed lazily when the entry
	// surfaces. Both maps stay bounded by the heap size.
	armed    map[uint64]bool
	disarmed map[uint64]bool
	stopped  bool
}

func NewTimeoutWatcher() *TimeoutWatcher {
	return &TimeoutWatcher{
		armed:    make(map[uint64]bool),
		disarmed: make(map[uint64]bool),
	}
}

// Arm registers a deadline for the request ID.
func (w *TimeoutWatcher) Arm(requestID uint64, deadline time.Time) {
	if w.stopped {
		return
	}
	w.armed[requestID] = true
	delete(w.disarmed, requestID)
	heap.Push(&w.entries, &deadlineEntry{requestID: requestID, deadline: deadline})
}

// Disarm drops tracking for the request ID. A no-op unless the ID is
// currently armed; fire-and-forget and zero-timeout requests never leave
// state behind. The heap entry is removed lazily when it surfaces, which
// keeps Disarm O(1).
func (w *TimeoutWatcher) Disarm(requestID uint64) {
	if !w.armed[requestID] {
		return
	}
	delete(w.armed, requestID)
	w.disarmed[requestID] = true
}

// Expired removes and returns all armed request IDs whose deadline is at or
// before now, earliest first. Lazily dropped (disarmed) entries are skipped.
func (w *TimeoutWatcher) Expired(now time.Time) []uint64 {
	var expired []uint64
	for w.entries.Len() > 0 {
		next := w.entries[0]
		if next.deadline.After(now) {
			break
		}
		heap.Pop(&w.entries)
		if w.disarmed[next.requestID] {
			delete(w.disarmed, next.requestID)
			continue
		}
		delete(w.armed, next.requestID)
		expired = append(expired, next.requestID)
	}
	return expired
}

// Next returns the earliest pending deadline, false when nothing is armed.
func (w *TimeoutWatcher) Next() (time.Time, bool) {
	for w.entries.Len() > 0 {
		next := w.entries[0]
		if !w.disarmed[next.requestID] {
			return next.deadline, true
		}
		heap.Pop(&w.entries)
		delete(w.disarmed, next.requestID)
	}
	return time.Time{}, false
}

// Stop detaches all tracking. Used at shutdown; a stopped watcher ignores
// further Arm calls.
func (w *TimeoutWatcher) Stop() {
	w.entries = nil
	w.armed = make(map[uint64]bool)
	w.disarmed = make(map[uint64]bool)
	w.stopped = true
}

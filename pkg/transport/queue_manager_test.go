package transport

import (
	"sync"
	"testing"
	"time"
)

func newTestManager() *QueueManager {
	return NewQueueManager(nil, nil)
}

func testRequest(op string) *Request {
	return NewRequest(op, EnginePresence, AuthEither)
}

func TestAddAssignsUniqueIncreasingIDs(t *testing.T) {
	m := newTestManager()

	seen := make(map[uint64]bool)
	var last uint64
	for i := 0; i < 50; i++ {
		id, err := m.Add(testRequest("presence/get_list"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		seen[id] = true
		last = id
	}
}

func TestAddRejectsInvalidRequest(t *testing.T) {
	m := newTestManager()
	if _, err := m.Add(NewRequest("", EnginePresence, AuthEither)); err == nil {
		t.Error("expected error for empty operation")
	}
	if _, err := m.Add(NewRequest("op", "", AuthEither)); err == nil {
		t.Error("expected error for empty engine")
	}
}

func TestPendingForFiltersByChannelAndActive(t *testing.T) {
	m := newTestManager()

	appOnly := NewRequest("login/authenticate", EngineLogin, AuthAppOnly)
	sessionOnly := NewRequest("presence/get_list", EnginePresence, AuthSessionRequired)
	either := NewRequest("contacts/get_changes", EngineContacts, AuthEither)
	for _, req := range []*Request{appOnly, sessionOnly, either} {
		if _, err := m.Add(req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	httpPending := m.PendingFor(ChannelHTTP)
	if len(httpPending) != 2 {
		t.Fatalf("expected 2 http-eligible requests, got %d", len(httpPending))
	}
	rpgPending := m.PendingFor(ChannelRPG)
	if len(rpgPending) != 2 {
		t.Fatalf("expected 2 rpg-eligible requests, got %d", len(rpgPending))
	}

	// Active requests are excluded to prevent duplicate transmission.
	m.Activate(either.ID())
	if got := len(m.PendingFor(ChannelHTTP)); got != 1 {
		t.Errorf("expected 1 http-eligible request after activation, got %d", got)
	}
	if got := len(m.PendingFor(ChannelRPG)); got != 1 {
		t.Errorf("expected 1 rpg-eligible request after activation, got %d", got)
	}
}

func TestPublishResolvesOwnerFromOriginalRequest(t *testing.T) {
	var notified []EngineID
	m := NewQueueManager(nil, func(e EngineID) { notified = append(notified, e) })

	req := NewRequest("presence/get_list", EnginePresence, AuthSessionRequired)
	id, _ := m.Add(req)

	// Owner comes from the queued request, not from the outcome.
	m.Publish(&Outcome{RequestID: id, Kind: OutcomeNormal, Engine: EngineLogin})

	outcome := m.Claim(EnginePresence)
	if outcome == nil {
		t.Fatal("expected outcome for presence engine")
	}
	if outcome.RequestID != id {
		t.Errorf("expected request id %d, got %d", id, outcome.RequestID)
	}
	if len(notified) != 1 || notified[0] != EnginePresence {
		t.Errorf("expected one notification for presence, got %v", notified)
	}
	if reqs, _ := m.Depths(); reqs != 0 {
		t.Errorf("expected request removed on publish, %d left", reqs)
	}
}

func TestPublishDropsLateOutcome(t *testing.T) {
	m := newTestManager()

	id, _ := m.Add(testRequest("presence/get_list"))
	m.Publish(&Outcome{RequestID: id, Kind: OutcomeNormal})
	// Second outcome for the same request: the request is gone, so the
	// late arrival must be dropped to keep at most one outcome per ID.
	m.Publish(&Outcome{RequestID: id, Kind: OutcomeNormal})

	if m.Claim(EnginePresence) == nil {
		t.Fatal("expected first outcome")
	}
	if extra := m.Claim(EnginePresence); extra != nil {
		t.Errorf("expected at most one outcome per request, got second %+v", extra)
	}
}

func TestSessionInvalidShortCircuits(t *testing.T) {
	logouts := 0
	m := NewQueueManager(func() { logouts++ }, nil)

	// Several outstanding requests.
	for i := 0; i < 5; i++ {
		if _, err := m.Add(testRequest("presence/get_list")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	id, _ := m.Add(testRequest("contacts/get_changes"))

	m.Publish(&Outcome{
		RequestID: id,
		Kind:      OutcomeServerError,
		Items: []Item{{
			Kind: PayloadServerError,
			Err:  &ServerError{Code: "AUTH_INVALID_SESSION"},
		}},
	})

	if logouts != 1 {
		t.Errorf("expected exactly one logout action, got %d", logouts)
	}
	for _, engine := range []EngineID{EnginePresence, EngineContacts, EngineLogin} {
		if o := m.Claim(engine); o != nil {
			t.Errorf("session-invalid outcome must never surface via Claim, got %+v", o)
		}
	}
}

func TestFireAndForgetNeverArmed(t *testing.T) {
	m := newTestManager()

	req := testRequest("chat/send_message")
	req.FireAndForget = true
	req.Timeout = time.Second
	id, _ := m.Add(req)

	if !req.ExpiresAt().IsZero() {
		t.Error("fire-and-forget request must not carry an expiry")
	}

	// Expiring far in the future must find nothing armed.
	m.SweepExpired(time.Now().Add(time.Hour))
	if m.HasOutcome(id) {
		t.Error("fire-and-forget request must never time out")
	}

	m.Activate(id)
	m.Discard(id)
	if reqs, resps := m.Depths(); reqs != 0 || resps != 0 {
		t.Errorf("expected empty queues after discard, got %d/%d", reqs, resps)
	}
}

func TestTimeoutSweepSynthesizesOutcome(t *testing.T) {
	m := newTestManager()

	req := testRequest("presence/get_list")
	req.Timeout = 50 * time.Millisecond
	id, _ := m.Add(req)

	m.SweepExpired(time.Now().Add(time.Second))

	outcome := m.Claim(EnginePresence)
	if outcome == nil {
		t.Fatal("expected synthesized timeout outcome")
	}
	if outcome.Kind != OutcomeTimedOut {
		t.Errorf("expected timed_out, got %s", outcome.Kind)
	}
	if outcome.RequestID != id {
		t.Errorf("expected request id %d, got %d", id, outcome.RequestID)
	}
	if reqs, _ := m.Depths(); reqs != 0 {
		t.Errorf("expected request removed, %d left", reqs)
	}
}

func TestRemoveSweepsStaleRequests(t *testing.T) {
	m := newTestManager()

	stale := testRequest("presence/get_list")
	stale.CreatedAt = time.Now().Add(-16 * time.Minute)
	staleID, _ := m.Add(stale)

	fresh := testRequest("contacts/get_changes")
	freshID, _ := m.Add(fresh)

	removed := m.Remove(freshID)
	if removed == nil || removed.ID() != freshID {
		t.Fatal("expected fresh request returned from Remove")
	}

	outcome := m.Claim(EnginePresence)
	if outcome == nil {
		t.Fatal("expected synthesized outcome for stale request")
	}
	if outcome.RequestID != staleID || outcome.Kind != OutcomeTimedOut {
		t.Errorf("expected timed_out for stale id %d, got %+v", staleID, outcome)
	}
}

func TestClearAllCompleteness(t *testing.T) {
	m := newTestManager()

	ids := make([]uint64, 0, 4)
	for _, engine := range []EngineID{EnginePresence, EnginePresence, EngineContacts, EngineLogin} {
		id, _ := m.Add(NewRequest("op", engine, AuthEither))
		ids = append(ids, id)
	}

	m.ClearAll()

	reqs, resps := m.Depths()
	if reqs != 0 {
		t.Errorf("expected empty request queue, got %d", reqs)
	}
	if resps != len(ids) {
		t.Errorf("expected %d synthesized outcomes, got %d", len(ids), resps)
	}

	claimed := make(map[uint64]bool)
	for _, engine := range []EngineID{EnginePresence, EngineContacts, EngineLogin} {
		for {
			o := m.Claim(engine)
			if o == nil {
				break
			}
			if o.Kind != OutcomeTimedOut {
				t.Errorf("expected timed_out, got %s", o.Kind)
			}
			if claimed[o.RequestID] {
				t.Errorf("duplicate outcome for request %d", o.RequestID)
			}
			claimed[o.RequestID] = true
		}
	}
	if len(claimed) != len(ids) {
		t.Errorf("expected one outcome per request, got %d of %d", len(claimed), len(ids))
	}
}

func TestClearActiveOnlyAffectsTransmitted(t *testing.T) {
	m := newTestManager()

	sent := NewRequest("presence/get_list", EnginePresence, AuthSessionRequired)
	sentID, _ := m.Add(sent)
	m.Activate(sentID)

	queued := NewRequest("presence/set_availability", EnginePresence, AuthSessionRequired)
	queuedID, _ := m.Add(queued)

	httpSent := NewRequest("login/authenticate", EngineLogin, AuthAppOnly)
	httpID, _ := m.Add(httpSent)
	m.Activate(httpID)

	m.ClearActive(ChannelRPG, true)

	outcome := m.Claim(EnginePresence)
	if outcome == nil || outcome.RequestID != sentID || outcome.Kind != OutcomeTimedOut {
		t.Fatalf("expected timed_out for transmitted rpg request, got %+v", outcome)
	}
	if o := m.Claim(EnginePresence); o != nil {
		t.Errorf("queued request must survive ClearActive, got %+v", o)
	}
	if o := m.Claim(EngineLogin); o != nil {
		t.Errorf("http-channel request must survive rpg ClearActive, got %+v", o)
	}

	// The untouched requests are still queued.
	if got := len(m.PendingFor(ChannelRPG)); got != 1 {
		t.Errorf("expected queued rpg request still pending, got %d", got)
	}
	_ = queuedID
}

func TestClaimPreservesPerOwnerOrder(t *testing.T) {
	m := newTestManager()

	first, _ := m.Add(testRequest("a"))
	second, _ := m.Add(testRequest("b"))
	other, _ := m.Add(NewRequest("c", EngineContacts, AuthEither))

	m.Publish(&Outcome{RequestID: first, Kind: OutcomeNormal})
	m.Publish(&Outcome{RequestID: other, Kind: OutcomeNormal})
	m.Publish(&Outcome{RequestID: second, Kind: OutcomeNormal})

	if o := m.Claim(EnginePresence); o == nil || o.RequestID != first {
		t.Fatalf("expected first outcome first, got %+v", o)
	}
	if o := m.Claim(EnginePresence); o == nil || o.RequestID != second {
		t.Fatalf("expected second outcome second, got %+v", o)
	}
	if o := m.Claim(EngineContacts); o == nil || o.RequestID != other {
		t.Fatalf("expected contacts outcome, got %+v", o)
	}
}

func TestAddBatchNotifiesOnce(t *testing.T) {
	m := newTestManager()

	notifications := 0
	m.OnQueueChanged(func() { notifications++ })

	reqs := []*Request{testRequest("a"), testRequest("b"), testRequest("c")}
	ids, err := m.AddBatch(reqs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	if notifications != 1 {
		t.Errorf("expected one batched notification, got %d", notifications)
	}
}

func TestClaimPendingMarksActive(t *testing.T) {
	m := newTestManager()
	id, _ := m.Add(testRequest("a"))

	claimed := m.ClaimPending(ChannelRPG)
	if len(claimed) != 1 || claimed[0].ID() != id {
		t.Fatalf("expected to claim the request, got %v", claimed)
	}
	if !claimed[0].Active() {
		t.Error("claimed request must be marked active")
	}
	if again := m.ClaimPending(ChannelHTTP); len(again) != 0 {
		t.Errorf("active request must not be claimable again, got %v", again)
	}
}

func TestConcurrentDrainsClaimEachRequestOnce(t *testing.T) {
	// An EITHER request is eligible for both channels; with both drains
	// racing, exactly one of them may ever transmit it.
	for iter := 0; iter < 200; iter++ {
		m := newTestManager()
		id, err := m.Add(NewRequest("presence/get_list", EnginePresence, AuthEither))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var mu sync.Mutex
		transmitted := make(map[uint64]int)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, channel := range []Channel{ChannelHTTP, ChannelRPG} {
			wg.Add(1)
			go func(channel Channel) {
				defer wg.Done()
				<-start
				for _, req := range m.ClaimPending(channel) {
					mu.Lock()
					transmitted[req.ID()]++
					mu.Unlock()
				}
			}(channel)
		}
		close(start)
		wg.Wait()

		if n := transmitted[id]; n != 1 {
			t.Fatalf("request transmitted %d times, want exactly 1", n)
		}
	}
}

func TestFireAndForgetLeavesNoWatcherState(t *testing.T) {
	m := newTestManager()

	for i := 0; i < 500; i++ {
		req := testRequest("chat/send_message")
		req.FireAndForget = true
		id, err := m.Add(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		m.Activate(id)
		m.Discard(id)
	}

	if n := len(m.watcher.armed); n != 0 {
		t.Errorf("watcher retains %d armed entries for fire-and-forget traffic", n)
	}
	if n := len(m.watcher.disarmed); n != 0 {
		t.Errorf("watcher retains %d disarmed entries for requests that were never armed", n)
	}
}

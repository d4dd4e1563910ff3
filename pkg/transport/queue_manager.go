package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// QueueManager is the single lock domain wrapping the request and response
// queues. Caller submits, transport drains, receive correlation and timeout
// sweeps all run on different goroutines; every mutation goes through here
// so they never interleave inconsistently.
type QueueManager struct {
	mu        sync.Mutex
	requests  *requestQueue
	responses *responseQueue
	watcher   *TimeoutWatcher

	// onSessionInvalid runs the forced-logout escalation. Called without
	// the queue lock held.
	onSessionInvalid func()
	// onOutcome notifies the engine dispatcher that an outcome is ready
	// for the given owner. Called without the queue lock held.
	onOutcome func(EngineID)

	listenerMu sync.Mutex
	listeners  []func()
}

// NewQueueManager constructs an explicit transport core instance. Both
// callbacks may be nil.
func NewQueueManager(onSessionInvalid func(), onOutcome func(EngineID)) *QueueManager {
	watcher := NewTimeoutWatcher()
	return &QueueManager{
		requests:         newRequestQueue(watcher),
		responses:        newResponseQueue(),
		watcher:          watcher,
		onSessionInvalid: onSessionInvalid,
		onOutcome:        onOutcome,
	}
}

// OnQueueChanged registers a listener invoked after requests are enqueued.
// The transport channels use this to wake their drain loops.
func (m *QueueManager) OnQueueChanged(fn func()) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *QueueManager) notifyQueueChanged() {
	m.listenerMu.Lock()
	listeners := make([]func(), len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Add enqueues the request, assigns its ID and notifies queue listeners.
func (m *QueueManager) Add(req *Request) (uint64, error) {
	id, err := m.addQuiet(req)
	if err != nil {
		return 0, err
	}
	m.notifyQueueChanged()
	return id, nil
}

// AddQuiet enqueues without notifying queue listeners. Used to batch
// several enqueues ahead of a single notification.
func (m *QueueManager) AddQuiet(req *Request) (uint64, error) {
	return m.addQuiet(req)
}

// AddBatch enqueues all requests and emits one queue-changed notification.
func (m *QueueManager) AddBatch(reqs []*Request) ([]uint64, error) {
	ids := make([]uint64, 0, len(reqs))
	for _, req := range reqs {
		id, err := m.addQuiet(req)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	m.notifyQueueChanged()
	return ids, nil
}

func (m *QueueManager) addQuiet(req *Request) (uint64, error) {
	if err := validate.Struct(req); err != nil {
		return 0, fmt.Errorf("invalid request: %w", err)
	}
	m.mu.Lock()
	id := m.requests.add(req, time.Now())
	m.mu.Unlock()

	slog.Debug("Request enqueued", "component", "QueueManager",
		"request_id", id, "operation", req.Operation, "engine", req.Engine,
		"fire_and_forget", req.FireAndForget)
	return id, nil
}

// PendingFor returns the inactive requests eligible for the channel.
// Read-only; transport drains must use ClaimPending instead, which marks
// the returned requests active under the same lock acquisition.
func (m *QueueManager) PendingFor(channel Channel) []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests.pendingFor(channel)
}

// ClaimPending atomically snapshots the inactive requests eligible for the
// channel and marks them active. Snapshot and activation happen under one
// lock acquisition so two channels draining concurrently can never claim
// the same EITHER request.
func (m *QueueManager) ClaimPending(channel Channel) []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	claimed := m.requests.pendingFor(channel)
	for _, req := range claimed {
		req.active = true
	}
	return claimed
}

// Activate marks requests as handed to a transport channel, excluding them
// from further PendingFor results.
func (m *QueueManager) Activate(ids ...uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if req := m.requests.get(id); req != nil {
			req.active = true
		}
	}
}

// Discard silently drops a request with no synthesized outcome. Only valid
// for fire-and-forget requests once transmitted.
func (m *QueueManager) Discard(id uint64) {
	m.mu.Lock()
	m.requests.remove(id)
	m.mu.Unlock()
}

// Remove deletes and returns the request for the ID, absent as nil. As a
// side effect it sweeps any other request older than the staleness bound
// into a synthesized timed-out outcome, so queue growth stays bounded even
// when responses silently never arrive.
func (m *QueueManager) Remove(id uint64) *Request {
	now := time.Now()

	m.mu.Lock()
	req := m.requests.remove(id)
	notify := m.sweepStaleLocked(now, id)
	m.mu.Unlock()

	m.fanOut(notify)
	return req
}

// Publish routes a decoded or synthesized outcome into the response queue.
//
// A session-invalid error payload short-circuits: the outcome is dropped
// and the forced-logout escalation runs exactly once, instead of every
// in-flight request rediscovering the same failure. Otherwise the
// correlated request (when any) is removed atomically with the insertion
// and its engine ID, not anything from the wire, decides the owner. Late
// outcomes whose request is already resolved are dropped to keep at most
// one outcome per request ID.
func (m *QueueManager) Publish(o *Outcome) {
	if o.sessionInvalid() {
		slog.Warn("Session invalidated by server, forcing logout",
			"component", "QueueManager", "request_id", o.RequestID)
		if m.onSessionInvalid != nil {
			m.onSessionInvalid()
		}
		return
	}

	m.mu.Lock()
	if o.RequestID != 0 {
		req := m.requests.remove(o.RequestID)
		if req == nil {
			m.mu.Unlock()
			slog.Debug("Dropping outcome for unknown request",
				"component", "QueueManager", "request_id", o.RequestID)
			return
		}
		o.Engine = req.Engine
	}
	m.responses.publish(o)
	m.mu.Unlock()

	slog.Debug("Outcome published", "component", "QueueManager",
		"request_id", o.RequestID, "kind", o.Kind.String(), "engine", o.Engine)
	m.fanOut([]EngineID{o.Engine})
}

// Claim removes and returns the first queued outcome owned by the engine,
// nil when none is ready. Single consumer per owner, pull model.
func (m *QueueManager) Claim(engine EngineID) *Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.responses.claim(engine)
}

// HasOutcome reports whether an outcome for the request ID is already
// queued. Guards the race between active-request sweeps and legitimate
// late arrivals.
func (m *QueueManager) HasOutcome(requestID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.responses.exists(requestID)
}

// ClearActive converts transmitted requests with no outcome yet pending
// into timed-out outcomes. With channelOnly set, only requests eligible for
// the given channel are affected. Called when a connection thread dies and
// cannot vouch for its in-flight deliveries.
func (m *QueueManager) ClearActive(channel Channel, channelOnly bool) {
	m.mu.Lock()
	var notify []EngineID
	for _, req := range m.requests.actives(channel, channelOnly) {
		if m.responses.exists(req.id) {
			continue
		}
		m.requests.remove(req.id)
		notify = append(notify, m.synthesizeTimeoutLocked(req))
	}
	m.mu.Unlock()

	if len(notify) > 0 {
		slog.Info("Cleared active requests", "component", "QueueManager",
			"channel", channel.String(), "channel_only", channelOnly, "count", len(notify))
	}
	m.fanOut(notify)
}

// ClearAll removes every outstanding request and synthesizes one timed-out
// outcome per request. The hard-disconnect/logout path; no caller is left
// waiting forever.
func (m *QueueManager) ClearAll() {
	m.mu.Lock()
	reqs := m.requests.all()
	var notify []EngineID
	for _, req := range reqs {
		m.requests.remove(req.id)
		if m.responses.exists(req.id) {
			continue
		}
		notify = append(notify, m.synthesizeTimeoutLocked(req))
	}
	m.mu.Unlock()

	slog.Info("Cleared all requests", "component", "QueueManager", "count", len(reqs))
	m.fanOut(notify)
}

// SweepExpired drains the timeout watcher and converts each expired request
// into a timed-out outcome.
func (m *QueueManager) SweepExpired(now time.Time) {
	m.mu.Lock()
	var notify []EngineID
	for _, id := range m.watcher.Expired(now) {
		req := m.requests.get(id)
		if req == nil || m.responses.exists(id) {
			continue
		}
		m.requests.remove(id)
		notify = append(notify, m.synthesizeTimeoutLocked(req))
	}
	m.mu.Unlock()

	m.fanOut(notify)
}

// Run drives the timeout sweep on a ticker until the context is cancelled.
func (m *QueueManager) Run(ctx context.Context, tick time.Duration) {
	slog.Info("Starting timeout sweep loop", "component", "QueueManager", "tick", tick)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Context cancelled, shutting down", "component", "QueueManager")
			m.Stop()
			return
		case now := <-ticker.C:
			m.SweepExpired(now)
		}
	}
}

// Stop detaches timeout tracking. Outstanding requests are left to the
// staleness sweep.
func (m *QueueManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watcher.Stop()
}

// Depths returns the current queue sizes, for diagnostics.
func (m *QueueManager) Depths() (requests, responses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests.len(), m.responses.len()
}

// sweepStaleLocked converts requests older than the staleness bound into
// timed-out outcomes. Caller holds the lock; returns the owners to notify.
func (m *QueueManager) sweepStaleLocked(now time.Time, except uint64) []EngineID {
	var notify []EngineID
	for _, req := range m.requests.stale(now, except) {
		if m.responses.exists(req.id) {
			continue
		}
		m.requests.remove(req.id)
		slog.Warn("Swept stale request", "component", "QueueManager",
			"request_id", req.id, "operation", req.Operation, "age", now.Sub(req.CreatedAt))
		notify = append(notify, m.synthesizeTimeoutLocked(req))
	}
	return notify
}

// synthesizeTimeoutLocked publishes a timed-out outcome for the request.
// Caller holds the lock and has already removed the queue entry.
func (m *QueueManager) synthesizeTimeoutLocked(req *Request) EngineID {
	m.responses.publish(&Outcome{
		RequestID: req.id,
		Kind:      OutcomeTimedOut,
		Engine:    req.Engine,
	})
	return req.Engine
}

func (m *QueueManager) fanOut(engines []EngineID) {
	if m.onOutcome == nil {
		return
	}
	for _, engine := range engines {
		m.onOutcome(engine)
	}
}

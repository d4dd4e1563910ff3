package transport

import (
	"time"
)

// staleAfter bounds how long an unresolved request may sit in the queue
// before the opportunistic sweep converts it into a timed-out outcome.
const staleAfter = 15 * time.Minute

// requestQueue holds all not-yet-resolved outbound requests in insertion
// order. It is not safe for concurrent use; every call path goes through
// the QueueManager lock.
type requestQueue struct {
	order   []uint64
	byID    map[uint64]*Request
	nextID  uint64
	watcher *TimeoutWatcher
}

func newRequestQueue(watcher *TimeoutWatcher) *requestQueue {
	// Seed IDs from wall-clock seconds so IDs never collide across process
	// restarts while a response from the previous run is still in flight.
	return &requestQueue{
		byID:    make(map[uint64]*Request),
		nextID:  uint64(time.Now().Unix()),
		watcher: watcher,
	}
}

// add assigns the next ID, stores the request and arms the timeout watcher
// when the request carries a positive timeout and is not fire-and-forget.
func (q *requestQueue) add(req *Request, now time.Time) uint64 {
	q.nextID++
	req.id = q.nextID
	q.order = append(q.order, req.id)
	q.byID[req.id] = req

	if req.Timeout > 0 && !req.FireAndForget {
		req.expiresAt = now.Add(req.Timeout)
		q.watcher.Arm(req.id, req.expiresAt)
	}
	return req.id
}

func (q *requestQueue) get(id uint64) *Request {
	return q.byID[id]
}

// remove deletes and returns the request, nil when absent.
func (q *requestQueue) remove(id uint64) *Request {
	req, ok := q.byID[id]
	if !ok {
		return nil
	}
	delete(q.byID, id)
	for i, qid := range q.order {
		if qid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.watcher.Disarm(id)
	return req
}

// pendingFor returns the inactive requests eligible for the channel, in
// insertion order. Active requests are excluded so a request is never
// transmitted twice.
func (q *requestQueue) pendingFor(channel Channel) []*Request {
	var pending []*Request
	for _, id := range q.order {
		req := q.byID[id]
		if !req.active && req.EligibleFor(channel) {
			pending = append(pending, req)
		}
	}
	return pending
}

// stale returns requests created before the staleness cutoff, excluding the
// given ID.
func (q *requestQueue) stale(now time.Time, except uint64) []*Request {
	cutoff := now.Add(-staleAfter)
	var old []*Request
	for _, id := range q.order {
		if id == except {
			continue
		}
		if req := q.byID[id]; req.CreatedAt.Before(cutoff) {
			old = append(old, req)
		}
	}
	return old
}

// actives returns the transmitted requests, optionally filtered to one
// channel's eligibility.
func (q *requestQueue) actives(channel Channel, channelOnly bool) []*Request {
	var active []*Request
	for _, id := range q.order {
		req := q.byID[id]
		if !req.active {
			continue
		}
		if channelOnly && !req.EligibleFor(channel) {
			continue
		}
		active = append(active, req)
	}
	return active
}

// all returns every queued request in insertion order.
func (q *requestQueue) all() []*Request {
	reqs := make([]*Request, 0, len(q.order))
	for _, id := range q.order {
		reqs = append(reqs, q.byID[id])
	}
	return reqs
}

func (q *requestQueue) len() int {
	return len(q.order)
}

// responseQueue holds decoded and synthesized outcomes awaiting pickup, in
// insertion order. Like requestQueue it relies on the QueueManager lock.
type responseQueue struct {
	outcomes []*Outcome
}

func newResponseQueue() *responseQueue {
	return &responseQueue{}
}

func (q *responseQueue) publish(o *Outcome) {
	q.outcomes = append(q.outcomes, o)
}

// claim removes and returns the first outcome owned by the engine, nil when
// none is queued. Scanning in insertion order preserves per-owner arrival
// order.
func (q *responseQueue) claim(engine EngineID) *Outcome {
	for i, o := range q.outcomes {
		if o.Engine == engine {
			q.outcomes = append(q.outcomes[:i], q.outcomes[i+1:]...)
			return o
		}
	}
	return nil
}

// exists reports whether an outcome correlated to the request ID is queued.
func (q *responseQueue) exists(requestID uint64) bool {
	if requestID == 0 {
		return false
	}
	for _, o := range q.outcomes {
		if o.RequestID == requestID {
			return true
		}
	}
	return false
}

func (q *responseQueue) len() int {
	return len(q.outcomes)
}

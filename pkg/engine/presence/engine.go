// Package presence keeps local presence and chat state synchronized with
// the backend. It consumes the transport core: timeout-bearing list pulls,
// fire-and-forget sends, paged batch reconciliation and the offline reset
// that pre-empts everything else.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"socialsync/pkg/engine"
	"socialsync/pkg/models"
	"socialsync/pkg/transport"
)

// Operation names issued by this engine.
const (
	opGetPresenceList   = "presence/get_list"
	opSetAvailability   = "presence/set_availability"
	opSendMessage       = "chat/send_message"
	opStartConversation = "chat/start_conversation"
)

const (
	// pageSize is how many users are reconciled per run slice.
	pageSize = 10
	// notifyEveryPages bounds UI churn while a large batch drains.
	notifyEveryPages = 5
	// requestTimeout applies to every non-fire-and-forget request.
	requestTimeout = 60 * time.Second
)

// State is the engine's run-loop state.
type State int

const (
	StateIdle State = iota
	StateBatchProcessing
)

// Store is the local-store contract this engine reconciles into.
type Store interface {
	GetPresence(localContactID int64) (*models.User, error)
	SetPresence(user *models.User) error
	SetAllOfflineExcept(localContactID int64) error
	MeProfile() (localContactID int64, userID string, err error)
	FindConversationID(localContactID int64, network models.NetworkID) (string, error)
	SaveConversation(localContactID int64, network models.NetworkID, conversationID string) error
	PruneConversationsExcept(localContactID int64) error
	RemoveConversation(conversationID string) error
	ContactByConversation(conversationID string) (int64, error)
	ResolveRemoteUserID(localContactID int64, network models.NetworkID) (string, error)
	AddTimelineEntry(entry models.TimelineEntry) error
}

// pendingMessage is a buffered outbound message waiting for its
// conversation to be created.
type pendingMessage struct {
	localContactID int64
	network        models.NetworkID
	body           string
}

// Engine is the presence engine. All state is guarded by mu; Run executes
// one cooperative slice at a time.
type Engine struct {
	queue      *transport.QueueManager
	store      Store
	dispatcher *engine.Dispatcher
	online     func() bool
	wake       func()

	mu           sync.Mutex
	state        State
	pending      []*models.User
	pagesDone    int
	changedIDs   []int64
	outcomeReady bool
	offlineReset bool
	// buffered messages keyed by the remote user ID the conversation was
	// requested for
	buffered map[string]pendingMessage
}

// New constructs the presence engine. online reports current connectivity;
// wake nudges the engine manager and may be nil.
func New(queue *transport.QueueManager, st Store, dispatcher *engine.Dispatcher, online func() bool, wake func()) *Engine {
	return &Engine{
		queue:      queue,
		store:      st,
		dispatcher: dispatcher,
		online:     online,
		wake:       wake,
		state:      StateIdle,
		buffered:   make(map[string]pendingMessage),
	}
}

func (e *Engine) ID() transport.EngineID {
	return transport.EnginePresence
}

// State returns the current run-loop state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// NextRunTime signals an immediate run while an offline reset is pending,
// an outcome awaits claiming, or a batch is mid-drain. Otherwise the engine
// has nothing to do.
func (e *Engine) NextRunTime(now time.Time) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.offlineReset || e.outcomeReady || e.state == StateBatchProcessing {
		return 0
	}
	return engine.NoRun
}

// OnOutcome marks that the transport has an outcome ready for this engine.
func (e *Engine) OnOutcome() {
	e.mu.Lock()
	e.outcomeReady = true
	e.mu.Unlock()
}

// OfflineReset schedules the priority pre-emption for connectivity loss or
// logout: the next run discards any pending batch and marks everyone but
// the me profile offline.
func (e *Engine) OfflineReset() {
	e.mu.Lock()
	e.offlineReset = true
	e.mu.Unlock()
	e.nudge()
}

// Run executes one cooperative slice: offline reset first (it always wins),
// then outcome claiming, then one page of batch reconciliation.
func (e *Engine) Run() {
	e.mu.Lock()
	if e.offlineReset {
		e.offlineReset = false
		e.pending = nil
		e.pagesDone = 0
		e.changedIDs = nil
		e.state = StateIdle
		e.mu.Unlock()
		e.applyOfflineReset()
		return
	}
	claim := e.outcomeReady
	e.outcomeReady = false
	e.mu.Unlock()

	if claim {
		for {
			outcome := e.queue.Claim(transport.EnginePresence)
			if outcome == nil {
				break
			}
			e.HandleServerResponse(outcome)
		}
	}

	e.mu.Lock()
	processing := e.state == StateBatchProcessing
	e.mu.Unlock()
	if processing {
		e.processPage()
	}
}

// RequestPresenceList enqueues a full presence list pull. Safe to call
// repeatedly; duplicates simply queue again.
func (e *Engine) RequestPresenceList() {
	req := transport.NewRequest(opGetPresenceList, transport.EnginePresence, transport.AuthSessionRequired)
	req.Timeout = requestTimeout
	if _, err := e.queue.Add(req); err != nil {
		slog.Error("Failed to enqueue presence list request",
			"component", "PresenceEngine", "error", err)
	}
}

// SetMyAvailability applies the status to every linked network: local store
// first so the UI reflects intent immediately, then the request. A silent
// no-op when no connection is established.
func (e *Engine) SetMyAvailability(status models.OnlineStatus) {
	if !e.online() {
		slog.Info("Ignoring availability change while offline",
			"component", "PresenceEngine", "status", status.String())
		return
	}

	meID, meUserID, err := e.store.MeProfile()
	if err != nil {
		slog.Error("No me profile, cannot set availability",
			"component", "PresenceEngine", "error", err)
		return
	}

	me, err := e.store.GetPresence(meID)
	if err != nil || len(me.Presences) == 0 {
		me = models.NewUser(meUserID, map[models.NetworkID]models.OnlineStatus{
			models.NetworkInternal: status,
		})
	}
	for i := range me.Presences {
		me.Presences[i].Status = status
	}
	me.RecomputeAggregate()
	if err := e.store.SetPresence(me); err != nil {
		slog.Error("Failed to write availability locally",
			"component", "PresenceEngine", "error", err)
	}

	req := transport.NewRequest(opSetAvailability, transport.EnginePresence, transport.AuthSessionRequired)
	req.FireAndForget = true
	req.Params.Set("status", models.Str(status.String()))
	if _, err := e.queue.Add(req); err != nil {
		slog.Error("Failed to enqueue availability request",
			"component", "PresenceEngine", "error", err)
	}
}

// SetMyAvailabilityFor applies availability on a single network only.
func (e *Engine) SetMyAvailabilityFor(p models.NetworkPresence) {
	if !e.online() {
		slog.Info("Ignoring availability change while offline",
			"component", "PresenceEngine", "network", int(p.Network))
		return
	}

	meID, meUserID, err := e.store.MeProfile()
	if err != nil {
		slog.Error("No me profile, cannot set availability",
			"component", "PresenceEngine", "error", err)
		return
	}

	me, err := e.store.GetPresence(meID)
	if err != nil {
		me = models.NewUser(meUserID, nil)
	}
	updated := false
	for i := range me.Presences {
		if me.Presences[i].Network == p.Network {
			me.Presences[i].Status = p.Status
			updated = true
		}
	}
	if !updated {
		me.Presences = append(me.Presences, models.NetworkPresence{
			UserID: meUserID, Network: p.Network, Status: p.Status,
		})
	}
	me.RecomputeAggregate()
	if err := e.store.SetPresence(me); err != nil {
		slog.Error("Failed to write availability locally",
			"component", "PresenceEngine", "error", err)
	}

	req := transport.NewRequest(opSetAvailability, transport.EnginePresence, transport.AuthSessionRequired)
	req.FireAndForget = true
	req.Params.Set("network", models.Int(int64(p.Network)))
	req.Params.Set("status", models.Str(p.Status.String()))
	if _, err := e.queue.Add(req); err != nil {
		slog.Error("Failed to enqueue availability request",
			"component", "PresenceEngine", "error", err)
	}
}

// SendMessage sends a chat message to a contact on the given network. With
// an existing conversation the send is fire-and-forget; otherwise the
// message is buffered until the create-conversation ack arrives.
func (e *Engine) SendMessage(localContactID int64, body string, network models.NetworkID) error {
	convID, err := e.store.FindConversationID(localContactID, network)
	if err == nil {
		e.sendToConversation(localContactID, convID, body, network)
		return nil
	}

	remoteUserID, err := e.store.ResolveRemoteUserID(localContactID, network)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.buffered[remoteUserID] = pendingMessage{
		localContactID: localContactID,
		network:        network,
		body:           body,
	}
	e.mu.Unlock()

	req := transport.NewRequest(opStartConversation, transport.EnginePresence, transport.AuthSessionRequired)
	req.Timeout = requestTimeout
	req.Params.Set("user", models.Str(remoteUserID))
	req.Params.Set("network", models.Int(int64(network)))
	if _, err := e.queue.Add(req); err != nil {
		return err
	}
	return nil
}

func (e *Engine) sendToConversation(localContactID int64, conversationID, body string, network models.NetworkID) {
	req := transport.NewRequest(opSendMessage, transport.EnginePresence, transport.AuthSessionRequired)
	req.FireAndForget = true
	req.Params.Set("conversation", models.Str(conversationID))
	req.Params.Set("body", models.Str(body))
	req.Params.Set("network", models.Int(int64(network)))
	if _, err := e.queue.Add(req); err != nil {
		slog.Error("Failed to enqueue chat message",
			"component", "PresenceEngine", "error", err)
		return
	}

	if err := e.store.AddTimelineEntry(models.TimelineEntry{
		LocalContactID: localContactID,
		Network:        network,
		Summary:        body,
		Incoming:       false,
		Timestamp:      time.Now(),
	}); err != nil {
		slog.Error("Failed to record sent message",
			"component", "PresenceEngine", "error", err)
	}
}

func (e *Engine) nudge() {
	if e.wake != nil {
		e.wake()
	}
}

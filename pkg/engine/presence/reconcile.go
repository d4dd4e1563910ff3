package presence

import (
	"log/slog"

	"socialsync/pkg/engine"
	"socialsync/pkg/models"
	"socialsync/pkg/transport"
)

var _ engine.Engine = (*Engine)(nil)

// HandleServerResponse demultiplexes one claimed outcome by payload kind.
// Session invalidation never reaches this point; the response queue
// escalates it before delivery.
func (e *Engine) HandleServerResponse(outcome *transport.Outcome) {
	if outcome.Kind == transport.OutcomeTimedOut {
		// Treated like a server error for UI purposes. No automatic retry;
		// the next natural trigger re-issues the request.
		slog.Warn("Request timed out", "component", "PresenceEngine",
			"request_id", outcome.RequestID)
		return
	}

	for i := range outcome.Items {
		item := &outcome.Items[i]
		switch item.Kind {
		case transport.PayloadPresenceList, transport.PayloadAvailabilityPush:
			e.startBatch(item.Users)

		case transport.PayloadChatMessage:
			e.receiveChatMessage(item.Message)

		case transport.PayloadConversationCreated:
			e.conversationCreated(item.UserID, item.ConversationID)

		case transport.PayloadConversationClosed:
			if err := e.store.RemoveConversation(item.ConversationID); err != nil {
				slog.Error("Failed to drop closed conversation",
					"component", "PresenceEngine", "conversation", item.ConversationID, "error", err)
			}

		case transport.PayloadSystemNotice:
			e.systemNotice(item.Notice)

		case transport.PayloadServerError:
			slog.Warn("Server error", "component", "PresenceEngine",
				"request_id", outcome.RequestID, "code", item.Err.Code,
				"message", item.Err.Message)
		}
	}
}

// startBatch appends the users to the pending backlog and enters
// BATCH_PROCESSING. Empty batches are logged and skipped.
func (e *Engine) startBatch(users []*models.User) {
	if len(users) == 0 {
		slog.Warn("Skipping presence payload with empty user list",
			"component", "PresenceEngine")
		return
	}

	e.mu.Lock()
	e.pending = append(e.pending, users...)
	if e.state == StateIdle {
		e.state = StateBatchProcessing
		e.pagesDone = 0
		e.changedIDs = nil
	}
	total := len(e.pending)
	e.mu.Unlock()

	slog.Info("Presence batch queued", "component", "PresenceEngine",
		"added", len(users), "pending", total)
	e.nudge()
}

// processPage reconciles one fixed-size page of the pending batch into the
// local store. One bad record does not block the rest of the page.
func (e *Engine) processPage() {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.state = StateIdle
		e.mu.Unlock()
		return
	}
	n := pageSize
	if n > len(e.pending) {
		n = len(e.pending)
	}
	page := e.pending[:n]
	e.pending = e.pending[n:]
	e.mu.Unlock()

	meUserID := e.meUserID()
	var changed []int64
	for _, user := range page {
		if user.UserID == meUserID {
			// The me profile never shows its PC entry; drop it and
			// re-derive the aggregate.
			user.RemoveNetwork(models.NetworkPC)
		}
		if err := e.store.SetPresence(user); err != nil {
			slog.Error("Failed to persist presence, skipping entry",
				"component", "PresenceEngine", "user", user.UserID, "error", err)
			continue
		}
		changed = append(changed, user.LocalContactID)
	}

	e.mu.Lock()
	e.pagesDone++
	e.changedIDs = append(e.changedIDs, changed...)
	drained := len(e.pending) == 0
	notify := drained || e.pagesDone%notifyEveryPages == 0
	var ids []int64
	if notify {
		ids = e.changedIDs
		e.changedIDs = nil
	}
	if drained {
		e.state = StateIdle
	}
	e.mu.Unlock()

	if notify && len(ids) > 0 {
		e.dispatcher.Publish(models.Event{Type: models.EventContactsChanged, Payload: ids})
	}
	if !drained {
		e.nudge()
	}
}

// applyOfflineReset marks every known user offline except the me profile
// and notifies the dispatcher for all users. Always wins over in-progress
// batch processing.
func (e *Engine) applyOfflineReset() {
	meID, _, err := e.store.MeProfile()
	if err != nil {
		meID = -1
	}
	if err := e.store.SetAllOfflineExcept(meID); err != nil {
		slog.Error("Failed to mark users offline",
			"component", "PresenceEngine", "error", err)
	}
	slog.Info("Offline reset applied", "component", "PresenceEngine", "me", meID)
	e.dispatcher.Publish(models.Event{Type: models.EventAllContactsChanged})
}

func (e *Engine) receiveChatMessage(msg *models.ChatMessage) {
	if msg == nil {
		return
	}
	contactID, err := e.store.ContactByConversation(msg.ConversationID)
	if err != nil {
		slog.Warn("Chat message for unknown conversation",
			"component", "PresenceEngine", "conversation", msg.ConversationID)
		return
	}
	msg.LocalContactID = contactID

	if err := e.store.AddTimelineEntry(models.TimelineEntry{
		LocalContactID: contactID,
		Network:        msg.Network,
		Summary:        msg.Body,
		Incoming:       true,
		Timestamp:      msg.Timestamp,
	}); err != nil {
		slog.Error("Failed to record received message",
			"component", "PresenceEngine", "error", err)
	}
	e.dispatcher.Publish(models.Event{Type: models.EventChatMessage, Payload: msg})
}

// conversationCreated releases the buffered message for the remote user,
// persists the mapping and prunes conversations for other contacts.
func (e *Engine) conversationCreated(remoteUserID, conversationID string) {
	e.mu.Lock()
	pm, ok := e.buffered[remoteUserID]
	if ok {
		delete(e.buffered, remoteUserID)
	}
	e.mu.Unlock()

	if !ok {
		slog.Warn("Conversation ack without buffered message",
			"component", "PresenceEngine", "user", remoteUserID)
		return
	}

	if err := e.store.SaveConversation(pm.localContactID, pm.network, conversationID); err != nil {
		slog.Error("Failed to persist conversation",
			"component", "PresenceEngine", "error", err)
	}
	e.sendToConversation(pm.localContactID, conversationID, pm.body, pm.network)

	if err := e.store.PruneConversationsExcept(pm.localContactID); err != nil {
		slog.Error("Failed to prune old conversations",
			"component", "PresenceEngine", "error", err)
	}
}

func (e *Engine) systemNotice(code transport.NoticeCode) {
	switch code {
	case transport.NoticeMessageSendFailed:
		e.mu.Lock()
		e.buffered = make(map[string]pendingMessage)
		e.mu.Unlock()
		e.dispatcher.Publish(models.Event{Type: models.EventMessageSendFailed})

	case transport.NoticeConversationExpired:
		e.mu.Lock()
		e.buffered = make(map[string]pendingMessage)
		e.mu.Unlock()

	default:
		slog.Debug("Ignoring system notice", "component", "PresenceEngine", "code", string(code))
	}
}

func (e *Engine) meUserID() string {
	_, userID, err := e.store.MeProfile()
	if err != nil {
		return ""
	}
	return userID
}

// PendingBatch returns how many users await reconciliation, for diagnostics.
func (e *Engine) PendingBatch() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

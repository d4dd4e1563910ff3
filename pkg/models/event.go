package models

// EventType classifies notifications fanned out to the UI-facing dispatcher.
type EventType string

const (
	EventContactsChanged    EventType = "contacts_changed"
	EventAllContactsChanged EventType = "all_contacts_changed"
	EventChatMessage        EventType = "chat_message"
	EventMessageSendFailed  EventType = "message_send_failed"
	EventLoggedOut          EventType = "logged_out"
)

// Event is one UI notification. Payload is event-specific: changed contact
// IDs for contacts_changed, a *ChatMessage for chat_message, and so on.
type Event struct {
	Type    EventType
	Payload interface{}
}

package models

import "time"

// ChatMessage is one chat message, outbound or inbound.
type ChatMessage struct {
	LocalContactID int64
	Network        NetworkID
	ConversationID string
	Body           string
	Incoming       bool
	Timestamp      time.Time
}

// Conversation maps a (contact, network) pair to the server-side
// conversation it belongs to.
type Conversation struct {
	LocalContactID int64
	Network        NetworkID
	ConversationID string
}

// TimelineEntry is an activity record appended to the local timeline for a
// sent or received message.
type TimelineEntry struct {
	LocalContactID int64
	Network        NetworkID
	Summary        string
	Incoming       bool
	Timestamp      time.Time
}

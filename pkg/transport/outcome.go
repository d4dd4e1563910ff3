package transport

import "socialsync/pkg/models"

// OutcomeKind is the terminal classification of a request, or Push for
// unsolicited server traffic.
type OutcomeKind int

const (
	OutcomeNormal OutcomeKind = iota
	OutcomeServerError
	OutcomeTimedOut
	OutcomePush
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeServerError:
		return "server_error"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomePush:
		return "push"
	default:
		return "normal"
	}
}

// PayloadKind is the closed set of decoded payload item types. The presence
// engine switches exhaustively on it when demultiplexing.
type PayloadKind int

const (
	PayloadPresenceList PayloadKind = iota
	PayloadAvailabilityPush
	PayloadChatMessage
	PayloadConversationCreated
	PayloadConversationClosed
	PayloadSystemNotice
	PayloadServerError
)

// NoticeCode classifies a system notification payload.
type NoticeCode string

const (
	NoticeMessageSendFailed   NoticeCode = "message_send_failed"
	NoticeConversationExpired NoticeCode = "conversation_expired"
)

// ServerError is a decoded error payload.
type ServerError struct {
	Code    string
	Message string
}

// Session-invalid error codes reported by the backend. Either one forces a
// logout at the response queue boundary.
const (
	errCodeSessionInvalid = "AUTH_INVALID_SESSION"
	errCodeSessionExpired = "AUTH_SESSION_EXPIRED"
)

func (e *ServerError) SessionInvalid() bool {
	return e != nil && (e.Code == errCodeSessionInvalid || e.Code == errCodeSessionExpired)
}

// Item is one decoded payload entry. Exactly the fields implied by Kind are
// populated; everything else stays zero.
type Item struct {
	Kind PayloadKind

	Users          []*models.User      // PresenceList, AvailabilityPush
	Message        *models.ChatMessage // ChatMessage
	ConversationID string              // ConversationCreated, ConversationClosed
	UserID         string              // ConversationCreated: remote party
	Notice         NoticeCode          // SystemNotice
	Err            *ServerError        // ServerError
}

// Outcome is one entry in the response queue: a decoded server reply, an
// unsolicited push, or a synthesized terminal result.
type Outcome struct {
	// RequestID correlates to the originating request; zero for pushes.
	RequestID uint64
	Kind      OutcomeKind
	// Engine is the owning subsystem, resolved from the original request
	// for solicited outcomes and pre-assigned for pushes.
	Engine EngineID
	Items  []Item
}

// sessionInvalid reports whether any payload item signals a dead session.
func (o *Outcome) sessionInvalid() bool {
	for i := range o.Items {
		if o.Items[i].Kind == PayloadServerError && o.Items[i].Err.SessionInvalid() {
			return true
		}
	}
	return false
}

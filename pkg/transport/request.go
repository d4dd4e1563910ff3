package transport

import (
	"time"

	"socialsync/pkg/models"
)

// AuthMode declares which credentials a request must be sent with, which in
// turn decides channel eligibility.
type AuthMode int

const (
	// AuthEither requests carry app credentials and may travel on any channel.
	AuthEither AuthMode = iota
	// AuthAppOnly requests must go over the direct HTTP channel (pre-login traffic).
	AuthAppOnly
	// AuthSessionRequired requests must go over the session-bound RPG channel.
	AuthSessionRequired
)

// Channel identifies one of the two physical transports.
type Channel int

const (
	ChannelHTTP Channel = iota
	ChannelRPG
)

func (c Channel) String() string {
	if c == ChannelRPG {
		return "rpg"
	}
	return "http"
}

// EngineID names the subsystem a request belongs to. Outcomes are routed
// back to the same ID.
type EngineID string

const (
	EngineLogin      EngineID = "login"
	EngineContacts   EngineID = "contacts"
	EnginePresence   EngineID = "presence"
	EngineIdentities EngineID = "identities"
)

// Request describes one outbound call. Fields other than the queue-assigned
// ID, active flag and expiry are fixed at construction; the queue-owned
// fields may only change while holding the QueueManager lock.
type Request struct {
	Operation     string   `validate:"required"`
	Engine        EngineID `validate:"required"`
	Auth          AuthMode
	Params        *models.Bag
	FireAndForget bool
	Timeout       time.Duration
	CreatedAt     time.Time

	id        uint64
	active    bool
	expiresAt time.Time
}

// NewRequest builds a request for the given operation with an empty
// parameter bag. The zero timeout means the request is never armed in the
// timeout watcher and only the staleness sweep bounds its lifetime.
func NewRequest(operation string, engine EngineID, auth AuthMode) *Request {
	return &Request{
		Operation: operation,
		Engine:    engine,
		Auth:      auth,
		Params:    models.NewBag(),
		CreatedAt: time.Now(),
	}
}

// ID returns the queue-assigned request ID, zero until enqueued.
func (r *Request) ID() uint64 {
	return r.id
}

// Active reports whether the request has been handed to a transport channel.
func (r *Request) Active() bool {
	return r.active
}

// ExpiresAt returns the absolute expiry, zero when no timeout was armed.
func (r *Request) ExpiresAt() time.Time {
	return r.expiresAt
}

// EligibleFor reports whether the request may be sent on the given channel.
func (r *Request) EligibleFor(channel Channel) bool {
	switch r.Auth {
	case AuthAppOnly:
		return channel == ChannelHTTP
	case AuthSessionRequired:
		return channel == ChannelRPG
	default:
		return true
	}
}

// Package dispatch performs the actual I/O for the transport core: it
// drains eligible requests from the request queue, transmits them on the
// HTTP or RPG channel, and feeds decoded outcomes back into the response
// queue.
package dispatch

import (
	"time"

	"socialsync/pkg/models"
	"socialsync/pkg/session"
	"socialsync/pkg/transport"
	"socialsync/pkg/wire"
)

// Credentials are the app-level API credentials used to sign every request.
type Credentials struct {
	APIKey    string
	APISecret string
}

// SessionFunc returns the current session context. Passed in explicitly so
// the transport never consults another subsystem's global state.
type SessionFunc func() *session.Session

// drainTick bounds how long a channel waits between drains when no
// queue-changed notification arrives.
const drainTick = 5 * time.Second

// encodeRequest signs and serializes one request. The signature is injected
// into the parameter bag immediately before encoding.
func encodeRequest(req *transport.Request, creds Credentials, sess *session.Session) []byte {
	sessionID := ""
	if sess.Established() && req.Auth != transport.AuthAppOnly {
		sessionID = sess.SessionID
	}
	params := req.Params
	if params == nil {
		params = models.NewBag()
	}
	wire.InjectAuth(params, creds.APIKey, creds.APISecret, sessionID, time.Now().Unix(), req.Operation)
	return wire.EncodeEnvelope(req.Operation, req.ID(), params)
}

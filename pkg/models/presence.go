package models

// OnlineStatus is a user's availability on a single network.
type OnlineStatus int

const (
	StatusOffline OnlineStatus = iota
	StatusIdle
	StatusInvisible
	StatusOnline
)

var statusNames = map[OnlineStatus]string{
	StatusOffline:   "offline",
	StatusIdle:      "idle",
	StatusInvisible: "invisible",
	StatusOnline:    "online",
}

func (s OnlineStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "offline"
}

// ParseStatus maps a wire status string to an OnlineStatus. Unknown values
// fall back to offline rather than failing the whole payload.
func ParseStatus(raw string) OnlineStatus {
	for status, name := range statusNames {
		if name == raw {
			return status
		}
	}
	return StatusOffline
}

// NetworkID identifies a linked third-party network.
type NetworkID int

const (
	NetworkInternal NetworkID = iota
	NetworkMobile
	NetworkPC
	NetworkFacebook
	NetworkGoogle
	NetworkMSN
)

// NetworkPresence is one (user, network, status) triple. Immutable value.
type NetworkPresence struct {
	UserID  string
	Network NetworkID
	Status  OnlineStatus
}

// User is the reconciliation unit for one contact's presence: the raw
// per-network entries plus an aggregated status derived from them.
type User struct {
	UserID         string
	LocalContactID int64 // resolved against the local store, -1 until then
	Aggregated     OnlineStatus
	Presences      []NetworkPresence
}

// NewUser builds a User from a raw per-network status map and derives the
// aggregated status. Precedence: online beats invisible beats idle; offline
// only when nothing better is present.
func NewUser(userID string, statuses map[NetworkID]OnlineStatus) *User {
	u := &User{
		UserID:         userID,
		LocalContactID: -1,
		Aggregated:     StatusOffline,
	}
	for network, status := range statuses {
		u.Presences = append(u.Presences, NetworkPresence{
			UserID:  userID,
			Network: network,
			Status:  status,
		})
	}
	u.RecomputeAggregate()
	return u
}

// RecomputeAggregate re-derives the aggregated status from the remaining
// presence entries. Called after construction and again whenever entries
// are removed (for instance dropping the PC entry from the me profile).
func (u *User) RecomputeAggregate() {
	best := StatusOffline
	for _, p := range u.Presences {
		if rank(p.Status) > rank(best) {
			best = p.Status
		}
	}
	u.Aggregated = best
}

// RemoveNetwork drops the entry for the given network, if present, and
// recomputes the aggregate.
func (u *User) RemoveNetwork(network NetworkID) {
	kept := u.Presences[:0]
	for _, p := range u.Presences {
		if p.Network != network {
			kept = append(kept, p)
		}
	}
	u.Presences = kept
	u.RecomputeAggregate()
}

func rank(s OnlineStatus) int {
	switch s {
	case StatusOnline:
		return 3
	case StatusInvisible:
		return 2
	case StatusIdle:
		return 1
	default:
		return 0
	}
}

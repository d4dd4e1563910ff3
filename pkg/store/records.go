package store

import (
	"time"
)

// ContactRecord is one known contact, keyed locally by LocalContactID and
// remotely by UserID.
type ContactRecord struct {
	LocalContactID int64  `gorm:"primaryKey;autoIncrement" json:"local_contact_id"`
	UserID         string `gorm:"uniqueIndex;not null" json:"user_id"`
	DisplayName    string `json:"display_name"`
	// Aggregated mirrors the derived status so contact lists render
	// without recomposing per-network rows.
	Aggregated int `gorm:"default:0" json:"aggregated"`
}

// PresenceRecord is one (contact, network, status) row.
type PresenceRecord struct {
	ID             int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	LocalContactID int64 `gorm:"index;not null" json:"local_contact_id"`
	Network        int   `gorm:"not null" json:"network"`
	Status         int   `gorm:"not null" json:"status"`
}

// MeProfileRecord maps the local user's own identity. Single row.
type MeProfileRecord struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	LocalContactID int64  `json:"local_contact_id"`
	UserID         string `json:"user_id"`
}

// ConversationRecord maps a (contact, network) pair to its server-side
// conversation.
type ConversationRecord struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	LocalContactID int64  `gorm:"index:idx_conv_contact_network,unique" json:"local_contact_id"`
	Network        int    `gorm:"index:idx_conv_contact_network,unique" json:"network"`
	ConversationID string `gorm:"index;not null" json:"conversation_id"`
}

// IdentityRecord links a contact to their account on a third-party network.
type IdentityRecord struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	LocalContactID int64  `gorm:"index:idx_ident_contact_network,unique" json:"local_contact_id"`
	Network        int    `gorm:"index:idx_ident_contact_network,unique" json:"network"`
	RemoteUserID   string `gorm:"not null" json:"remote_user_id"`
}

// TimelineRecord is one activity row for a sent or received message.
type TimelineRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LocalContactID int64     `gorm:"index" json:"local_contact_id"`
	Network        int       `json:"network"`
	Summary        string    `json:"summary"`
	Incoming       bool      `json:"incoming"`
	Timestamp      time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"timestamp"`
}

// SessionRecord is the persisted session cache. Token arrives already
// AES-encrypted by the session package. Single row.
type SessionRecord struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
}

func (ContactRecord) TableName() string      { return "contacts" }
func (PresenceRecord) TableName() string     { return "presences" }
func (MeProfileRecord) TableName() string    { return "me_profile" }
func (ConversationRecord) TableName() string { return "conversations" }
func (IdentityRecord) TableName() string     { return "identities" }
func (TimelineRecord) TableName() string     { return "timeline" }
func (SessionRecord) TableName() string      { return "session_cache" }

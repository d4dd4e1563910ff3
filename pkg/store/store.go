// Package store is the sqlite-backed local store: presence records keyed
// by local contact ID, the me-profile mapping, conversation lookups, the
// chat timeline and the encrypted session cache.
package store

import (
	"errors"
	"fmt"
	"log/slog"

	"socialsync/pkg/models"
	"socialsync/pkg/session"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

const meProfileRowID = 1
const sessionRowID = 1

// Store wraps the gorm connection with the domain queries the engines use.
type Store struct {
	db *gorm.DB
}

// Open initializes the sqlite database and migrates the schema.
func Open(path string) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=1&_journal_mode=WAL"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if err := db.AutoMigrate(
		&ContactRecord{}, &PresenceRecord{}, &MeProfileRecord{},
		&ConversationRecord{}, &IdentityRecord{}, &TimelineRecord{},
		&SessionRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}

	slog.Info("Local store opened", "component", "Store", "path", path)
	return &Store{db: db}, nil
}

// DB returns the underlying connection for specialized queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// GetPresence loads a contact's presence by local contact ID.
func (s *Store) GetPresence(localContactID int64) (*models.User, error) {
	var contact ContactRecord
	if err := s.db.First(&contact, localContactID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rows []PresenceRecord
	if err := s.db.Where("local_contact_id = ?", localContactID).Find(&rows).Error; err != nil {
		return nil, err
	}

	user := &models.User{
		UserID:         contact.UserID,
		LocalContactID: contact.LocalContactID,
		Aggregated:     models.OnlineStatus(contact.Aggregated),
	}
	for _, row := range rows {
		user.Presences = append(user.Presences, models.NetworkPresence{
			UserID:  contact.UserID,
			Network: models.NetworkID(row.Network),
			Status:  models.OnlineStatus(row.Status),
		})
	}
	return user, nil
}

// SetPresence persists one reconciled user: resolves (or creates) the
// contact row by remote user ID, replaces the per-network presence rows and
// updates the aggregated status. The resolved local contact ID is written
// back onto the user.
func (s *Store) SetPresence(user *models.User) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var contact ContactRecord
		err := tx.Where("user_id = ?", user.UserID).First(&contact).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			contact = ContactRecord{UserID: user.UserID}
			if err := tx.Create(&contact).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		user.LocalContactID = contact.LocalContactID

		if err := tx.Where("local_contact_id = ?", contact.LocalContactID).
			Delete(&PresenceRecord{}).Error; err != nil {
			return err
		}
		for _, p := range user.Presences {
			row := PresenceRecord{
				LocalContactID: contact.LocalContactID,
				Network:        int(p.Network),
				Status:         int(p.Status),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		return tx.Model(&ContactRecord{}).
			Where("local_contact_id = ?", contact.LocalContactID).
			Update("aggregated", int(user.Aggregated)).Error
	})
}

// SetAllOffline marks every contact offline and drops all per-network rows.
func (s *Store) SetAllOffline() error {
	return s.setAllOffline(-1)
}

// SetAllOfflineExcept marks every contact offline except the given one.
// Used on disconnect so the me profile does not flicker.
func (s *Store) SetAllOfflineExcept(localContactID int64) error {
	return s.setAllOffline(localContactID)
}

func (s *Store) setAllOffline(except int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ContactRecord{}).
			Where("local_contact_id <> ?", except).
			Update("aggregated", int(models.StatusOffline)).Error; err != nil {
			return err
		}
		return tx.Where("local_contact_id <> ?", except).
			Delete(&PresenceRecord{}).Error
	})
}

// MeProfile returns the local user's contact mapping.
func (s *Store) MeProfile() (int64, string, error) {
	var me MeProfileRecord
	if err := s.db.First(&me, meProfileRowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", ErrNotFound
		}
		return 0, "", err
	}
	return me.LocalContactID, me.UserID, nil
}

// SetMeProfile stores the local user's contact mapping.
func (s *Store) SetMeProfile(localContactID int64, userID string) error {
	me := MeProfileRecord{ID: meProfileRowID, LocalContactID: localContactID, UserID: userID}
	return s.db.Save(&me).Error
}

// FindConversationID looks up the conversation for a (contact, network)
// pair, ErrNotFound when none exists yet.
func (s *Store) FindConversationID(localContactID int64, network models.NetworkID) (string, error) {
	var conv ConversationRecord
	err := s.db.Where("local_contact_id = ? AND network = ?", localContactID, int(network)).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return conv.ConversationID, nil
}

// SaveConversation upserts the conversation mapping for a (contact,
// network) pair.
func (s *Store) SaveConversation(localContactID int64, network models.NetworkID, conversationID string) error {
	var conv ConversationRecord
	err := s.db.Where("local_contact_id = ? AND network = ?", localContactID, int(network)).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conv = ConversationRecord{
			LocalContactID: localContactID,
			Network:        int(network),
			ConversationID: conversationID,
		}
		return s.db.Create(&conv).Error
	}
	if err != nil {
		return err
	}
	conv.ConversationID = conversationID
	return s.db.Save(&conv).Error
}

// PruneConversationsExcept drops conversation mappings for every contact
// other than the given one.
func (s *Store) PruneConversationsExcept(localContactID int64) error {
	return s.db.Where("local_contact_id <> ?", localContactID).
		Delete(&ConversationRecord{}).Error
}

// RemoveConversation drops the mapping for a server-side conversation ID.
func (s *Store) RemoveConversation(conversationID string) error {
	return s.db.Where("conversation_id = ?", conversationID).
		Delete(&ConversationRecord{}).Error
}

// ContactByConversation resolves which contact a conversation belongs to.
func (s *Store) ContactByConversation(conversationID string) (int64, error) {
	var conv ConversationRecord
	err := s.db.Where("conversation_id = ?", conversationID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return conv.LocalContactID, nil
}

// ResolveRemoteUserID finds the contact's account ID on the given network.
func (s *Store) ResolveRemoteUserID(localContactID int64, network models.NetworkID) (string, error) {
	var identity IdentityRecord
	err := s.db.Where("local_contact_id = ? AND network = ?", localContactID, int(network)).
		First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return identity.RemoteUserID, nil
}

// SaveIdentity upserts a contact's third-party account mapping.
func (s *Store) SaveIdentity(localContactID int64, network models.NetworkID, remoteUserID string) error {
	var identity IdentityRecord
	err := s.db.Where("local_contact_id = ? AND network = ?", localContactID, int(network)).
		First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = IdentityRecord{
			LocalContactID: localContactID,
			Network:        int(network),
			RemoteUserID:   remoteUserID,
		}
		return s.db.Create(&identity).Error
	}
	if err != nil {
		return err
	}
	identity.RemoteUserID = remoteUserID
	return s.db.Save(&identity).Error
}

// AddTimelineEntry appends one activity row.
func (s *Store) AddTimelineEntry(entry models.TimelineEntry) error {
	row := TimelineRecord{
		LocalContactID: entry.LocalContactID,
		Network:        int(entry.Network),
		Summary:        entry.Summary,
		Incoming:       entry.Incoming,
		Timestamp:      entry.Timestamp,
	}
	return s.db.Create(&row).Error
}

// SaveSession encrypts and persists the session cache row.
func (s *Store) SaveSession(sess *session.Session, secretKey string) error {
	encrypted, err := session.EncryptStruct(*sess, secretKey)
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}
	row := SessionRecord{
		ID:        sessionRowID,
		SessionID: encrypted.SessionID,
		UserID:    encrypted.UserID,
		Token:     encrypted.Token,
	}
	return s.db.Save(&row).Error
}

// LoadSession reloads and decrypts the cached session, ErrNotFound when no
// session was persisted.
func (s *Store) LoadSession(secretKey string) (*session.Session, error) {
	var row SessionRecord
	if err := s.db.First(&row, sessionRowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess := session.Session{SessionID: row.SessionID, UserID: row.UserID, Token: row.Token}
	decrypted, err := session.DecryptStruct(sess, secretKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt session: %w", err)
	}
	return &decrypted, nil
}

// ClearSession purges the cached session. Part of the forced-logout path.
func (s *Store) ClearSession() error {
	return s.db.Where("id = ?", sessionRowID).Delete(&SessionRecord{}).Error
}

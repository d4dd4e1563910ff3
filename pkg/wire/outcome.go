package wire

import (
	"fmt"
	"time"

	"socialsync/pkg/models"
	"socialsync/pkg/transport"
)

// Item type discriminators used inside response payloads.
const (
	itemPresenceList        = "presence_list"
	itemAvailability        = "availability"
	itemChatMessage         = "chat_message"
	itemConversationCreated = "conversation_created"
	itemConversationClosed  = "conversation_closed"
	itemNotice              = "notice"
	itemError               = "error"
)

// DecodeOutcome parses a response or push payload into a transport outcome.
// The requestID comes from the framing header (streaming channel) or the
// envelope (HTTP channel); zero marks an unsolicited push, which is
// pre-assigned to the presence engine since every push type belongs to it.
//
// Individual items that fail to decode are skipped; one malformed entry
// does not abort the rest of the payload.
func DecodeOutcome(requestID uint64, payload []byte) (*transport.Outcome, error) {
	_, envelopeID, bag, err := DecodeEnvelope(payload)
	if err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	if requestID == 0 {
		requestID = envelopeID
	}

	outcome := &transport.Outcome{RequestID: requestID, Kind: transport.OutcomeNormal}
	if requestID == 0 {
		outcome.Kind = transport.OutcomePush
		outcome.Engine = transport.EnginePresence
	}

	itemsVal, ok := bag.Get("items")
	if !ok || itemsVal.Kind != models.KindList {
		return outcome, nil
	}

	for _, entry := range itemsVal.List {
		if entry.Kind != models.KindMap || entry.Map == nil {
			continue
		}
		item, err := decodeItem(entry.Map)
		if err != nil {
			continue
		}
		if item.Kind == transport.PayloadServerError && outcome.Kind == transport.OutcomeNormal {
			outcome.Kind = transport.OutcomeServerError
		}
		outcome.Items = append(outcome.Items, item)
	}
	return outcome, nil
}

func decodeItem(bag *models.Bag) (transport.Item, error) {
	kind, _ := bag.Get("type")
	switch kind.Str {
	case itemPresenceList, itemAvailability:
		users, err := decodeUsers(bag)
		if err != nil {
			return transport.Item{}, err
		}
		k := transport.PayloadPresenceList
		if kind.Str == itemAvailability {
			k = transport.PayloadAvailabilityPush
		}
		return transport.Item{Kind: k, Users: users}, nil

	case itemChatMessage:
		msg, err := decodeChatMessage(bag)
		if err != nil {
			return transport.Item{}, err
		}
		return transport.Item{Kind: transport.PayloadChatMessage, Message: msg}, nil

	case itemConversationCreated:
		conv, _ := bag.Get("conversation")
		user, _ := bag.Get("user")
		if conv.Str == "" {
			return transport.Item{}, fmt.Errorf("conversation_created without id")
		}
		return transport.Item{
			Kind:           transport.PayloadConversationCreated,
			ConversationID: conv.Str,
			UserID:         user.Str,
		}, nil

	case itemConversationClosed:
		conv, _ := bag.Get("conversation")
		return transport.Item{Kind: transport.PayloadConversationClosed, ConversationID: conv.Str}, nil

	case itemNotice:
		code, _ := bag.Get("code")
		return transport.Item{Kind: transport.PayloadSystemNotice, Notice: transport.NoticeCode(code.Str)}, nil

	case itemError:
		code, _ := bag.Get("code")
		message, _ := bag.Get("message")
		return transport.Item{
			Kind: transport.PayloadServerError,
			Err:  &transport.ServerError{Code: code.Str, Message: message.Str},
		}, nil

	default:
		return transport.Item{}, fmt.Errorf("unknown item type %q", kind.Str)
	}
}

func decodeUsers(bag *models.Bag) ([]*models.User, error) {
	usersVal, ok := bag.Get("users")
	if !ok || usersVal.Kind != models.KindList || len(usersVal.List) == 0 {
		return nil, fmt.Errorf("payload without users")
	}

	var users []*models.User
	for _, entry := range usersVal.List {
		if entry.Kind != models.KindMap || entry.Map == nil {
			continue
		}
		id, _ := entry.Map.Get("id")
		if id.Str == "" {
			continue
		}
		statuses := make(map[models.NetworkID]models.OnlineStatus)
		if networks, ok := entry.Map.Get("networks"); ok && networks.Kind == models.KindMap && networks.Map != nil {
			for _, key := range networks.Map.Keys() {
				status, _ := networks.Map.Get(key)
				statuses[parseNetwork(key)] = models.ParseStatus(status.Str)
			}
		}
		users = append(users, models.NewUser(id.Str, statuses))
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("payload with empty user list")
	}
	return users, nil
}

func decodeChatMessage(bag *models.Bag) (*models.ChatMessage, error) {
	conv, _ := bag.Get("conversation")
	body, _ := bag.Get("body")
	network, _ := bag.Get("network")
	ts, _ := bag.Get("ts")
	if conv.Str == "" {
		return nil, fmt.Errorf("chat message without conversation")
	}
	msg := &models.ChatMessage{
		ConversationID: conv.Str,
		Body:           body.Str,
		Network:        models.NetworkID(network.Int),
		Incoming:       true,
		Timestamp:      time.Unix(ts.Int, 0),
	}
	return msg, nil
}

var networkNames = map[string]models.NetworkID{
	"internal": models.NetworkInternal,
	"mobile":   models.NetworkMobile,
	"pc":       models.NetworkPC,
	"facebook": models.NetworkFacebook,
	"google":   models.NetworkGoogle,
	"msn":      models.NetworkMSN,
}

func parseNetwork(raw string) models.NetworkID {
	if id, ok := networkNames[raw]; ok {
		return id
	}
	return models.NetworkInternal
}

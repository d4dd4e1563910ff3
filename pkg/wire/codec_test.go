package wire

import (
	"bytes"
	"testing"

	"socialsync/pkg/models"
	"socialsync/pkg/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	params := models.NewBag()
	params.Set("user", models.Str("u-123"))
	params.Set("network", models.Int(3))
	params.Set("urgent", models.Bool(true))
	params.Set("blob", models.Raw([]byte{0xde, 0xad}))
	nested := models.NewBag()
	nested.Set("inner", models.Str("x"))
	params.Set("meta", models.Nested(nested))
	params.Set("tags", models.List(models.Str("a"), models.Str("b")))

	encoded := EncodeEnvelope("presence/get_list", 42, params)

	op, id, decoded, err := DecodeEnvelope(encoded)
	require.NoError(t, err)
	assert.Equal(t, "presence/get_list", op)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, params.Keys(), decoded.Keys())

	v, ok := decoded.Get("network")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.Int)

	v, _ = decoded.Get("meta")
	require.NotNil(t, v.Map)
	inner, _ := v.Map.Get("inner")
	assert.Equal(t, "x", inner.Str)
}

func TestDecodeEnvelopeTruncated(t *testing.T) {
	encoded := EncodeEnvelope("op", 1, models.NewBag())
	_, _, _, err := DecodeEnvelope(encoded[:len(encoded)-3])
	assert.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello")
	require.NoError(t, WriteFrame(&buf, MsgRequest, 77, payload))

	msgType, correlationID, got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgRequest, msgType)
	assert.Equal(t, uint64(77), correlationID)
	assert.Equal(t, payload, got)
}

func TestSignDeterministicAndSessionSensitive(t *testing.T) {
	params := models.NewBag()
	params.Set("a", models.Str("1"))

	sig1 := Sign("secret", "sess", 1000, "op", params)
	sig2 := Sign("secret", "sess", 1000, "op", params)
	assert.Equal(t, sig1, sig2)

	assert.NotEqual(t, sig1, Sign("secret", "", 1000, "op", params))
	assert.NotEqual(t, sig1, Sign("secret", "sess", 1001, "op", params))
	assert.NotEqual(t, sig1, Sign("other", "sess", 1000, "op", params))
}

func buildItemsPayload(requestID uint64, items ...models.Value) []byte {
	bag := models.NewBag()
	bag.Set("items", models.List(items...))
	return EncodeEnvelope("result", requestID, bag)
}

func userItem(itemType string, users ...string) models.Value {
	var userVals []models.Value
	for _, id := range users {
		u := models.NewBag()
		u.Set("id", models.Str(id))
		networks := models.NewBag()
		networks.Set("mobile", models.Str("online"))
		u.Set("networks", models.Nested(networks))
		userVals = append(userVals, models.Nested(u))
	}
	item := models.NewBag()
	item.Set("type", models.Str(itemType))
	item.Set("users", models.List(userVals...))
	return models.Nested(item)
}

func TestDecodeOutcomePresenceList(t *testing.T) {
	payload := buildItemsPayload(9, userItem("presence_list", "u1", "u2"))

	outcome, err := DecodeOutcome(9, payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), outcome.RequestID)
	assert.Equal(t, transport.OutcomeNormal, outcome.Kind)
	require.Len(t, outcome.Items, 1)
	assert.Equal(t, transport.PayloadPresenceList, outcome.Items[0].Kind)
	require.Len(t, outcome.Items[0].Users, 2)
	assert.Equal(t, models.StatusOnline, outcome.Items[0].Users[0].Aggregated)
}

func TestDecodeOutcomeSkipsMalformedItems(t *testing.T) {
	// Empty user list is malformed and skipped; the error item survives.
	errorItem := models.NewBag()
	errorItem.Set("type", models.Str("error"))
	errorItem.Set("code", models.Str("RATE_LIMITED"))
	errorItem.Set("message", models.Str("slow down"))

	payload := buildItemsPayload(4, userItem("availability"), models.Nested(errorItem))

	outcome, err := DecodeOutcome(4, payload)
	require.NoError(t, err)
	require.Len(t, outcome.Items, 1)
	assert.Equal(t, transport.PayloadServerError, outcome.Items[0].Kind)
	assert.Equal(t, transport.OutcomeServerError, outcome.Kind)
	assert.Equal(t, "RATE_LIMITED", outcome.Items[0].Err.Code)
}

func TestDecodeOutcomePushPreAssignedToPresence(t *testing.T) {
	payload := buildItemsPayload(0, userItem("availability", "u1"))

	outcome, err := DecodeOutcome(0, payload)
	require.NoError(t, err)
	assert.Equal(t, transport.OutcomePush, outcome.Kind)
	assert.Equal(t, transport.EnginePresence, outcome.Engine)
	require.Len(t, outcome.Items, 1)
	assert.Equal(t, transport.PayloadAvailabilityPush, outcome.Items[0].Kind)
}

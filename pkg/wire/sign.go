package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"socialsync/pkg/models"
)

// Sign computes the request signature over (session ID if present,
// timestamp, operation name, flattened parameter bag) keyed with the API
// secret. The flattening is canonical: bag insertion order, nested values
// depth first, so both ends produce identical bytes.
func Sign(apiSecret, sessionID string, timestamp int64, operation string, params *models.Bag) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	if sessionID != "" {
		mac.Write([]byte(sessionID))
	}
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte(operation))
	flattenBag(mac, params)
	return hex.EncodeToString(mac.Sum(nil))
}

// InjectAuth adds the authentication parameters to the bag immediately
// before encoding: API key, timestamp, session ID when present, and the
// computed signature.
func InjectAuth(params *models.Bag, apiKey, apiSecret, sessionID string, timestamp int64, operation string) {
	params.Set("auth.key", models.Str(apiKey))
	params.Set("auth.ts", models.Int(timestamp))
	if sessionID != "" {
		params.Set("auth.session", models.Str(sessionID))
	}
	params.Set("auth.sig", models.Str(Sign(apiSecret, sessionID, timestamp, operation, params)))
}

func flattenBag(w interface{ Write([]byte) (int, error) }, bag *models.Bag) {
	if bag == nil {
		return
	}
	for _, key := range bag.Keys() {
		w.Write([]byte(key))
		v, _ := bag.Get(key)
		flattenValue(w, v)
	}
}

func flattenValue(w interface{ Write([]byte) (int, error) }, v models.Value) {
	switch v.Kind {
	case models.KindString:
		w.Write([]byte(v.Str))
	case models.KindInt:
		w.Write([]byte(strconv.FormatInt(v.Int, 10)))
	case models.KindBool:
		w.Write([]byte(strconv.FormatBool(v.Flag)))
	case models.KindBytes:
		w.Write(v.Bytes)
	case models.KindList:
		for _, item := range v.List {
			flattenValue(w, item)
		}
	case models.KindMap:
		flattenBag(w, v.Map)
	default:
		w.Write([]byte(fmt.Sprintf("%v", v)))
	}
}

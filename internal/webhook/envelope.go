package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidPayload is returned for bodies that are not a JSON object.
var ErrInvalidPayload = errors.New("webhook payload is not a json object")

// ParseEnvelope reads the event type and record from a webhook body. Both the
// wrapped form {"eventType"|"type": ..., "data": {...}} and the flat form,
// where the record fields sit next to "type", are accepted.
func ParseEnvelope(body []byte) (string, json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return "", nil, ErrInvalidPayload
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return "", nil, ErrInvalidPayload
	}
	eventType := doc.Get("eventType").String()
	if eventType == "" {
		eventType = doc.Get("type").String()
	}
	if data := doc.Get("data"); data.IsObject() {
		return eventType, json.RawMessage(data.Raw), nil
	}
	return eventType, json.RawMessage(body), nil
}

// VerifySignature checks a hex HMAC-SHA256 of body, optionally prefixed with
// "sha256=". An empty secret disables the check.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the signature VerifySignature accepts for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

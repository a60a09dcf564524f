// internal/webhook/signer.go
//
// HMAC-SHA256 payload signing.
//
// Subscribers verify authenticity by recomputing the HMAC of the raw JSON
// body with their shared secret and comparing it against the
// X-Webhook-Signature header (constant-time).
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Outbound headers attached to every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderEvent     = "X-Webhook-Event"
	HeaderID        = "X-Webhook-ID"
)

// Sign computes the signature header value: `sha256=<hex hmac>`.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify is the subscriber-side check, exported for tests and for any
// internal consumer of our own events.
func Verify(secret string, payload []byte, header string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(header))
}

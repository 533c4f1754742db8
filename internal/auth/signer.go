// Package auth implements the token authority: per-process single-use
// tokens, HMAC request signatures, capability-scoped worker API keys, and
// the client-facing JWT middleware.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Request headers carrying the four pieces of authentication evidence.
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderToken     = "X-Token"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// Signer produces and verifies HMAC-SHA256 signatures over raw request
// bodies. Signing always operates on the literal bytes that travel on the
// wire; re-serialized objects are never signed or verified.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer keyed by the shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex-encoded HMAC-SHA256 of body.
func (s *Signer) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body. Comparison is constant-time.
func (s *Signer) Verify(body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Timestamp formats t as the unix-seconds value carried in X-Timestamp.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// ParseTimestamp accepts either unix seconds or RFC3339.
func ParseTimestamp(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Parse(time.RFC3339, s)
}

package webhooks

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// PlatformKeyHexLen is the required length of a hex-encoded Ed25519 platform public key.
const PlatformKeyHexLen = 64

// MaxWebhookAge bounds how far a signed internal webhook timestamp may drift from now,
// in either direction, before it is rejected as stale or from the future.
const MaxWebhookAge = 5 * time.Minute

var (
	// ErrInvalidPlatformKey is returned when a platform public key is not exactly
	// PlatformKeyHexLen hex characters.
	ErrInvalidPlatformKey = errors.New("webhooks: platform key must be 64 hex characters")
	// ErrBadSignature is returned when a signature fails verification.
	ErrBadSignature = errors.New("webhooks: signature verification failed")
	// ErrStaleTimestamp is returned when a webhook timestamp is outside MaxWebhookAge.
	ErrStaleTimestamp = errors.New("webhooks: timestamp outside allowed window")
)

// ParsePlatformKey decodes and validates a platform's Ed25519 public key. The key must
// be exactly PlatformKeyHexLen hex characters; shorter, longer, or non-hex keys are
// rejected rather than silently truncated or padded.
func ParsePlatformKey(hexKey string) (ed25519.PublicKey, error) {
	if len(hexKey) != PlatformKeyHexLen {
		return nil, ErrInvalidPlatformKey
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlatformKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPlatformKey
	}
	return ed25519.PublicKey(raw), nil
}

// VerifyPlatformSignature checks an external platform's Ed25519 signature over
// timestamp||body, the scheme platforms such as Discord use for interaction webhooks.
func VerifyPlatformSignature(publicKeyHex, signatureHex, timestamp string, body []byte) error {
	pubKey, err := ParsePlatformKey(publicKeyHex)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	message := append([]byte(timestamp), body...)
	if !ed25519.Verify(pubKey, message, sig) {
		return ErrBadSignature
	}
	return nil
}

// SignInternal computes the HMAC-SHA-256 signature used by internal webhook senders,
// hex-encoded. timestamp is a unix-seconds string.
func SignInternal(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyInternalSignature checks an internally-registered webhook's HMAC-SHA-256
// signature and rejects timestamps older than maxAge or in the future. Comparison is
// constant-time. Callers without a configured window should pass MaxWebhookAge.
func VerifyInternalSignature(secret, signatureHex, timestamp string, body []byte, maxAge time.Duration, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	sentAt := time.Unix(ts, 0)
	age := now.Sub(sentAt)
	if age > maxAge || age < -maxAge {
		return ErrStaleTimestamp
	}

	expected := SignInternal(secret, timestamp, body)
	expectedBytes, err := hex.DecodeString(expected)
	if err != nil {
		return ErrBadSignature
	}
	gotBytes, err := hex.DecodeString(signatureHex)
	if err != nil || len(gotBytes) != len(expectedBytes) {
		return ErrBadSignature
	}
	if subtle.ConstantTimeCompare(expectedBytes, gotBytes) != 1 {
		return ErrBadSignature
	}
	return nil
}

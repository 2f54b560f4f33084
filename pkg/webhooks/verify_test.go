package webhooks_test

import (
	"crypto/ed25519"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/pkg/webhooks"
)

func TestParsePlatformKey_RejectsWrongLength(t *testing.T) {
	_, err := webhooks.ParsePlatformKey("abcd")
	require.ErrorIs(t, err, webhooks.ErrInvalidPlatformKey)
}

func TestParsePlatformKey_RejectsNonHex(t *testing.T) {
	_, err := webhooks.ParsePlatformKey(string(make([]byte, 64)))
	require.Error(t, err)
}

func TestVerifyPlatformSignature_ValidSignaturePasses(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	timestamp := "1700000000"
	body := []byte(`{"type":1}`)
	sig := ed25519.Sign(priv, append([]byte(timestamp), body...))

	err = webhooks.VerifyPlatformSignature(hex.EncodeToString(pub), hex.EncodeToString(sig), timestamp, body)
	require.NoError(t, err)
}

func TestVerifyPlatformSignature_TamperedBodyFails(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	timestamp := "1700000000"
	sig := ed25519.Sign(priv, append([]byte(timestamp), []byte(`{"type":1}`)...))

	err = webhooks.VerifyPlatformSignature(hex.EncodeToString(pub), hex.EncodeToString(sig), timestamp, []byte(`{"type":2}`))
	require.ErrorIs(t, err, webhooks.ErrBadSignature)
}

func TestVerifyInternalSignature_ValidPasses(t *testing.T) {
	secret := "internal-secret"
	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"kind":"message_created"}`)
	sig := webhooks.SignInternal(secret, ts, body)

	err := webhooks.VerifyInternalSignature(secret, sig, ts, body, webhooks.MaxWebhookAge, now)
	require.NoError(t, err)
}

func TestVerifyInternalSignature_StaleTimestampRejected(t *testing.T) {
	secret := "internal-secret"
	now := time.Now()
	old := now.Add(-webhooks.MaxWebhookAge - time.Minute)
	ts := strconv.FormatInt(old.Unix(), 10)
	body := []byte(`{"kind":"message_created"}`)
	sig := webhooks.SignInternal(secret, ts, body)

	err := webhooks.VerifyInternalSignature(secret, sig, ts, body, webhooks.MaxWebhookAge, now)
	require.ErrorIs(t, err, webhooks.ErrStaleTimestamp)
}

func TestVerifyInternalSignature_FutureTimestampRejected(t *testing.T) {
	secret := "internal-secret"
	now := time.Now()
	future := now.Add(webhooks.MaxWebhookAge + time.Minute)
	ts := strconv.FormatInt(future.Unix(), 10)
	body := []byte(`{"kind":"message_created"}`)
	sig := webhooks.SignInternal(secret, ts, body)

	err := webhooks.VerifyInternalSignature(secret, sig, ts, body, webhooks.MaxWebhookAge, now)
	require.ErrorIs(t, err, webhooks.ErrStaleTimestamp)
}

func TestVerifyInternalSignature_WrongSecretRejected(t *testing.T) {
	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"kind":"message_created"}`)
	sig := webhooks.SignInternal("right-secret", ts, body)

	err := webhooks.VerifyInternalSignature("wrong-secret", sig, ts, body, webhooks.MaxWebhookAge, now)
	require.ErrorIs(t, err, webhooks.ErrBadSignature)
}

func TestKind_Valid(t *testing.T) {
	require.True(t, webhooks.KindMessageCreated.Valid())
	require.False(t, webhooks.Kind("unknown_kind").Valid())
}

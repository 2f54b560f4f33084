// Package encryption provides encryption and decryption for sensitive settings data
// stored as an encrypted JSON column, using PostgreSQL's pgcrypto extension
// (pgp_sym_encrypt/pgp_sym_decrypt) for the actual cipher.
package encryption

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/internal/config"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// Common errors
var (
	ErrKeyNotConfigured = errors.New("encryption key not configured")
	ErrDecryptionFailed = errors.New("failed to decrypt data")
)

// envelope is the on-disk shape of an encrypted JSON column. A raw database read of
// this column shows only this envelope, carrying a base64 pgp_sym_encrypt payload, or
// Encrypted == nil when the wrapped value was nil. With no key configured the payload is
// the base64 of the plaintext JSON, not ciphertext.
type envelope struct {
	Encrypted *string `json:"encrypted"`
}

// Service encrypts/decrypts settings maps using PostgreSQL pgcrypto, storing them as an
// {"encrypted": ...} JSON envelope rather than a bare ciphertext column.
type Service struct {
	db  *bun.DB
	log *slog.Logger
	key string
}

// NewService builds a Service using CREDENTIALS_ENCRYPTION_KEY from cfg.
func NewService(db *bun.DB, cfg *config.Config, log *slog.Logger) *Service {
	key := cfg.Auth.CredentialsEncryptionKey
	svc := &Service{
		db:  db,
		log: log.With(logger.Scope("encryption")),
		key: key,
	}

	if key == "" {
		if cfg.Environment == "production" {
			svc.log.Error("CREDENTIALS_ENCRYPTION_KEY is required in production")
		} else if cfg.Environment != "test" {
			svc.log.Warn("CREDENTIALS_ENCRYPTION_KEY not set - settings will NOT be encrypted")
		}
	} else if len(key) < 32 {
		if cfg.Environment == "production" {
			svc.log.Error("CREDENTIALS_ENCRYPTION_KEY is too short for AES-256", slog.Int("length", len(key)))
		} else {
			svc.log.Warn("CREDENTIALS_ENCRYPTION_KEY is short for AES-256", slog.Int("length", len(key)))
		}
	}

	return svc
}

// IsConfigured returns true if a key of sufficient length for AES-256 is set.
func (s *Service) IsConfigured() bool {
	return s.key != "" && len(s.key) >= 32
}

// Encrypt wraps settings in an {"encrypted": ...} envelope, pgp_sym_encrypt-ing the
// marshaled JSON under the hood. settings == nil encrypts to {"encrypted": null} so
// that Decrypt(Encrypt(nil)) == nil round-trips cleanly.
func (s *Service) Encrypt(ctx context.Context, settings map[string]interface{}) (string, error) {
	if settings == nil {
		return marshalEnvelope(envelope{})
	}

	plaintext, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settings: %w", err)
	}

	if s.key == "" {
		s.log.Warn("Encryption key not set - settings stored base64-wrapped but unencrypted (INSECURE)")
		encoded := base64.StdEncoding.EncodeToString(plaintext)
		return marshalEnvelope(envelope{Encrypted: &encoded})
	}

	var encoded string
	err = s.db.NewRaw(`
		SELECT encode(pgp_sym_encrypt(?::text, ?::text), 'base64') as encrypted
	`, string(plaintext), s.key).Scan(ctx, &encoded)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	return marshalEnvelope(envelope{Encrypted: &encoded})
}

// Decrypt reverses Encrypt, unwrapping the {"encrypted": ...} envelope first.
// raw == "" or an envelope carrying a null "encrypted" field both decrypt to nil.
func (s *Service) Decrypt(ctx context.Context, raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Encrypted == nil {
		return nil, nil
	}

	if s.key == "" {
		plaintext, err := base64.StdEncoding.DecodeString(*env.Encrypted)
		if err != nil {
			return nil, ErrDecryptionFailed
		}
		var settings map[string]interface{}
		if err := json.Unmarshal(plaintext, &settings); err != nil {
			return nil, ErrDecryptionFailed
		}
		return settings, nil
	}

	var decrypted string
	err := s.db.NewRaw(`
		SELECT pgp_sym_decrypt(decode(?, 'base64'), ?::text) as decrypted
	`, *env.Encrypted, s.key).Scan(ctx, &decrypted)
	if err != nil {
		s.log.Error("Failed to decrypt", slog.String("error", err.Error()))
		return nil, ErrDecryptionFailed
	}

	var settings map[string]interface{}
	if err := json.Unmarshal([]byte(decrypted), &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted settings: %w", err)
	}
	return settings, nil
}

func marshalEnvelope(env envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return string(b), nil
}

// Decrypter is the interface domain packages depend on so tests can substitute
// NullService for Service without a database.
type Decrypter interface {
	Decrypt(ctx context.Context, raw string) (map[string]interface{}, error)
	IsConfigured() bool
}

var _ Decrypter = (*Service)(nil)

// NullService is a no-op encryption service for tests and environments with no key
// configured at all; it still speaks the envelope format so callers don't need to
// branch on which implementation they hold.
type NullService struct{}

// NewNullService creates a null encryption service.
func NewNullService() *NullService {
	return &NullService{}
}

// Encrypt wraps settings in an {"encrypted": ...} envelope without encrypting — the
// payload is plain base64'd JSON, matching Service's unconfigured-key fallback.
func (n *NullService) Encrypt(ctx context.Context, settings map[string]interface{}) (string, error) {
	if settings == nil {
		return marshalEnvelope(envelope{})
	}
	plaintext, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settings: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return marshalEnvelope(envelope{Encrypted: &encoded})
}

// Decrypt reverses NullService.Encrypt.
func (n *NullService) Decrypt(ctx context.Context, raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Encrypted == nil {
		return nil, nil
	}
	plaintext, err := base64.StdEncoding.DecodeString(*env.Encrypted)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	var settings map[string]interface{}
	if err := json.Unmarshal(plaintext, &settings); err != nil {
		return nil, ErrDecryptionFailed
	}
	return settings, nil
}

// IsConfigured always returns false for NullService.
func (n *NullService) IsConfigured() bool {
	return false
}

var _ Decrypter = (*NullService)(nil)

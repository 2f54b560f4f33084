package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/eventbus"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
	webhookverify "github.com/opennotes-ai/opennotes-server/pkg/webhooks"
)

// secretBytes is the number of random bytes used to generate a registration's HMAC
// secret, hex-encoded for transport.
const secretBytes = 32

// ReceivedPayload is published on EventWebhookReceived once a signed webhook passes
// verification.
type ReceivedPayload struct {
	RegistrationID uuid.UUID       `json:"registration_id"`
	Kind           string          `json:"kind"`
	Body           json.RawMessage `json:"body"`
}

// Service registers internal webhook endpoints and verifies + dispatches inbound
// signed requests, both the Ed25519 platform scheme and the HMAC-SHA-256 internal
// scheme described in pkg/webhooks.
type Service struct {
	repo       *Repository
	bus        *eventbus.Bus
	discordKey string
	maxAge     time.Duration
	log        *slog.Logger
}

// NewService builds a Service. discordPublicKeyHex may be empty, in which case platform
// receipt always fails closed.
func NewService(repo *Repository, bus *eventbus.Bus, discordPublicKeyHex string, maxAge time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		bus:        bus,
		discordKey: discordPublicKeyHex,
		maxAge:     maxAge,
		log:        log.With(logger.Scope("webhooks")),
	}
}

// Register creates a new internal webhook registration and returns the plaintext secret
// alongside it. The secret is stored on the registration row so inbound signatures can be
// verified, but no endpoint returns it again — store it now.
func (s *Service) Register(ctx context.Context, communityServerID uuid.UUID, label string) (*Registration, string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", apperror.ErrInternal.WithInternal(fmt.Errorf("generate webhook secret: %w", err))
	}
	secret := hex.EncodeToString(raw)

	reg, err := s.repo.Create(ctx, communityServerID, label, secret)
	if err != nil {
		return nil, "", err
	}
	return reg, secret, nil
}

// ReceiveInternal verifies an internally-registered webhook's HMAC-SHA-256 signature
// and, on success, publishes its body as EventWebhookReceived.
func (s *Service) ReceiveInternal(ctx context.Context, registrationID uuid.UUID, kind, signatureHex, timestamp string, body []byte) error {
	if !webhookverify.Kind(kind).Valid() {
		return apperror.NewBadRequest(fmt.Sprintf("unknown webhook kind %q", kind))
	}

	reg, err := s.repo.GetByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.Status != StatusActive {
		return apperror.ErrForbidden.WithMessage("webhook registration is disabled")
	}

	if err := webhookverify.VerifyInternalSignature(reg.Secret, signatureHex, timestamp, body, s.maxAge, time.Now()); err != nil {
		s.log.Warn("internal webhook signature rejected", slog.String("registration_id", registrationID.String()), slog.Any("error", err))
		return apperror.ErrUnauthorized.WithMessage("invalid webhook signature")
	}

	return s.publish(ctx, registrationID, kind, body)
}

// ReceivePlatform verifies an external platform's Ed25519 signature over
// timestamp||body using the configured Discord public key, and on success publishes the
// body as EventWebhookReceived.
func (s *Service) ReceivePlatform(ctx context.Context, kind, signatureHex, timestamp string, body []byte) error {
	if !webhookverify.Kind(kind).Valid() {
		return apperror.NewBadRequest(fmt.Sprintf("unknown webhook kind %q", kind))
	}
	if s.discordKey == "" {
		return apperror.ErrUnauthorized.WithMessage("platform signature verification is not configured")
	}
	if err := webhookverify.VerifyPlatformSignature(s.discordKey, signatureHex, timestamp, body); err != nil {
		s.log.Warn("platform webhook signature rejected", slog.Any("error", err))
		return apperror.ErrUnauthorized.WithMessage("invalid webhook signature")
	}

	return s.publish(ctx, uuid.Nil, kind, body)
}

func (s *Service) publish(ctx context.Context, registrationID uuid.UUID, kind string, body []byte) error {
	payload, err := json.Marshal(ReceivedPayload{RegistrationID: registrationID, Kind: kind, Body: body})
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("marshal webhook received payload: %w", err))
	}

	correlation := map[string]string{"kind": kind}
	if registrationID != uuid.Nil {
		correlation["registration_id"] = registrationID.String()
	}
	if _, err := s.bus.Publish(ctx, eventbus.EventWebhookReceived, correlation, payload); err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("publish webhook received: %w", err))
	}
	return nil
}

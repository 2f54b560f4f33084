package webhooks_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/domain/webhooks"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/eventbus"
	webhookverify "github.com/opennotes-ai/opennotes-server/pkg/webhooks"
)

type noopLifecycle struct{}

func (noopLifecycle) Append(fx.Hook) {}

func newTestService(t *testing.T, discordKey string) (*webhooks.Service, *webhooks.Repository, *eventbus.Bus) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "webhooks_svc")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	bus := eventbus.NewBus(noopLifecycle{}, cache.NewClientForTest(rdb, slog.Default()), slog.Default())

	repo := webhooks.NewRepository(db.DB, slog.Default())
	svc := webhooks.NewService(repo, bus, discordKey, webhookverify.MaxWebhookAge, slog.Default())
	return svc, repo, bus
}

func TestService_ReceiveInternal_ValidSignaturePublishes(t *testing.T) {
	svc, repo, bus := newTestService(t, "")
	reg, secret, err := svc.Register(context.Background(), uuid.New(), "my-integration")
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.Equal(t, secret, reg.Secret)

	var received eventbus.Event
	done := make(chan struct{})
	require.NoError(t, bus.Subscribe(context.Background(), eventbus.EventWebhookReceived, eventbus.ConsumerOptions{
		ConsumerGroup: "test-watch",
		ConsumerName:  "watcher-1",
		BlockTimeout:  50 * time.Millisecond,
	}, func(ctx context.Context, ev eventbus.Event) error {
		received = ev
		close(done)
		return nil
	}))

	body := []byte(`{"message_id":"123"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := webhookverify.SignInternal(secret, ts, body)

	require.NoError(t, svc.ReceiveInternal(context.Background(), reg.ID, "message_created", sig, ts, body))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook received event")
	}

	var payload webhooks.ReceivedPayload
	require.NoError(t, json.Unmarshal(received.Payload, &payload))
	require.Equal(t, "message_created", payload.Kind)
	require.Equal(t, reg.ID, payload.RegistrationID)
}

func TestService_ReceiveInternal_WrongSignatureRejected(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	reg, _, err := svc.Register(context.Background(), uuid.New(), "my-integration")
	require.NoError(t, err)

	body := []byte(`{"message_id":"123"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := webhookverify.SignInternal("not-the-secret", ts, body)

	err = svc.ReceiveInternal(context.Background(), reg.ID, "message_created", sig, ts, body)
	require.Error(t, err)
}

func TestService_ReceiveInternal_UnknownKindRejected(t *testing.T) {
	svc, repo, _ := newTestService(t, "")
	_ = repo
	reg, secret, err := svc.Register(context.Background(), uuid.New(), "my-integration")
	require.NoError(t, err)

	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := webhookverify.SignInternal(secret, ts, body)

	err = svc.ReceiveInternal(context.Background(), reg.ID, "not_a_real_kind", sig, ts, body)
	require.Error(t, err)
}

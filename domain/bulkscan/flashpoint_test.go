package bulkscan_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/bulkscan"
)

type fakeRunner struct {
	response string
	err      error
}

func (f *fakeRunner) RunPrompt(ctx context.Context, systemPrompt, contextStr, currentMessage string) (string, error) {
	return f.response, f.err
}

func newTestService(t *testing.T, runner bulkscan.PromptRunner) *bulkscan.FlashpointService {
	t.Helper()
	return bulkscan.NewFlashpointService(func() (bulkscan.PromptRunner, error) {
		return runner, nil
	}, "", slog.Default())
}

func TestFlashpointService_Detect_ReportsDerail(t *testing.T) {
	svc := newTestService(t, &fakeRunner{response: `{"will_derail": true, "reasoning": "heated exchange"}`})

	match, err := svc.Detect(context.Background(), bulkscan.BulkScanMessage{MessageID: "m1", Content: "this is unacceptable"}, nil)
	require.NoError(t, err)
	require.NotNil(t, match)
	require.True(t, match.WillDerail)
	require.Equal(t, bulkscan.ConfidenceDerail, match.Confidence)
	require.Equal(t, "heated exchange", match.Reasoning)
}

func TestFlashpointService_Detect_NoDerailReturnsNil(t *testing.T) {
	svc := newTestService(t, &fakeRunner{response: `{"will_derail": false, "reasoning": "friendly chat"}`})

	match, err := svc.Detect(context.Background(), bulkscan.BulkScanMessage{MessageID: "m1", Content: "lovely weather"}, nil)
	require.NoError(t, err)
	require.Nil(t, match)
}

func TestFlashpointService_Detect_TransientErrorSwallowed(t *testing.T) {
	svc := newTestService(t, &fakeRunner{err: errors.New("connection reset by peer")})

	match, err := svc.Detect(context.Background(), bulkscan.BulkScanMessage{MessageID: "m1", Content: "x"}, nil)
	require.NoError(t, err)
	require.Nil(t, match)
}

func TestFlashpointService_Detect_CriticalErrorPropagates(t *testing.T) {
	svc := newTestService(t, &fakeRunner{err: errors.New("invalid api key")})

	_, err := svc.Detect(context.Background(), bulkscan.BulkScanMessage{MessageID: "m1", Content: "x"}, nil)
	require.Error(t, err)
}

func TestFlashpointService_Detect_BuildsDetectorOnce(t *testing.T) {
	calls := 0
	svc := bulkscan.NewFlashpointService(func() (bulkscan.PromptRunner, error) {
		calls++
		return &fakeRunner{response: `{"will_derail": false, "reasoning": ""}`}, nil
	}, "", slog.Default())

	for i := 0; i < 5; i++ {
		_, err := svc.Detect(context.Background(), bulkscan.BulkScanMessage{MessageID: "m1", Content: "x"}, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 1, calls, "the prompt runner factory should only run once across repeated Detect calls")
}

func TestFlashpointService_Detect_MalformedJSONSwallowed(t *testing.T) {
	svc := newTestService(t, &fakeRunner{response: "not json"})

	match, err := svc.Detect(context.Background(), bulkscan.BulkScanMessage{MessageID: "m1", Content: "x"}, nil)
	require.NoError(t, err)
	require.Nil(t, match)
}

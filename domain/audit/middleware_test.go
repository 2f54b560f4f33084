package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestTruncateLargeArrays_CollapsesLongNumericArrays(t *testing.T) {
	nums := make([]any, 15)
	for i := range nums {
		nums[i] = float64(i)
	}
	input := map[string]any{"embedding": nums, "name": "hello"}

	out := truncateLargeArrays(input).(map[string]any)
	arr := out["embedding"].([]any)
	require.Len(t, arr, maxTruncatedArrayLen+1)
	require.Equal(t, "...(5 more)", arr[maxTruncatedArrayLen])
	require.Equal(t, "hello", out["name"])
}

func TestTruncateLargeArrays_LeavesShortArraysUntouched(t *testing.T) {
	input := map[string]any{"tags": []any{"a", "b", "c"}}
	out := truncateLargeArrays(input).(map[string]any)
	require.Equal(t, []any{"a", "b", "c"}, out["tags"])
}

func TestTruncateLargeArrays_LeavesNonNumericLongArraysUntouched(t *testing.T) {
	items := make([]any, 12)
	for i := range items {
		items[i] = "tag"
	}
	input := map[string]any{"tags": items}
	out := truncateLargeArrays(input).(map[string]any)
	require.Len(t, out["tags"].([]any), 12)
}

func TestEnrichUserContext_ValidBearerToken(t *testing.T) {
	e := echo.New()
	token := signTestToken(t, "00000000-0000-0000-0000-000000000002", "carol", "moderator", time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/bulk-scans", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	userID := enrichUserContext(c, testSecret)
	require.NotNil(t, userID)
	require.Equal(t, "00000000-0000-0000-0000-000000000002", userID.String())
}

func TestEnrichUserContext_NoAuthHeaderReturnsNil(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/bulk-scans", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.Nil(t, enrichUserContext(c, testSecret))
}

func TestEnrichUserContext_ServiceAuthHeaderReturnsNil(t *testing.T) {
	e := echo.New()
	token := signTestToken(t, "00000000-0000-0000-0000-000000000003", "dave", "admin", time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/bulk-scans", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", "service-key")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.Nil(t, enrichUserContext(c, testSecret))
}

func TestEnrichUserContext_InvalidTokenDoesNotCrash(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/bulk-scans", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.Nil(t, enrichUserContext(c, testSecret))
}

package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"

	"github.com/opennotes-ai/opennotes-server/internal/config"
)

// maxBodySize bounds how large a request body the middleware will read and persist
// verbatim; larger bodies are replaced by a placeholder.
const maxBodySize = 10 * 1024

// maxTruncatedArrayLen is how many leading numeric-array elements survive truncation.
const maxTruncatedArrayLen = 10

// auditedMethods are the HTTP methods whose requests may produce an audit log entry.
var auditedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// bodyCapturedMethods are the subset of auditedMethods whose request body is read and
// included (truncated) in the audit entry's details.
var bodyCapturedMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// Middleware wraps state-changing requests: it enriches the active span (and baggage)
// with enduser.id/user.username/enduser.role parsed from the bearer token (never
// crashing on an invalid token), then hands Service a best-effort audit entry once the
// request completes.
func Middleware(svc *Service, cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now().UTC()
			req := c.Request()

			if !auditedMethods[req.Method] {
				return next(c)
			}

			userID := enrichUserContext(c, cfg.Auth.JWTSecretKey)

			var body map[string]any
			if bodyCapturedMethods[req.Method] {
				body = captureBody(c)
			}

			handlerErr := next(c)

			if userID == nil {
				return handlerErr
			}

			details := map[string]any{"status_code": c.Response().Status}
			if body != nil {
				details["request_body"] = truncateLargeArrays(body)
			}

			resourceType := req.URL.Path
			if idx := strings.LastIndex(req.URL.Path, "/"); idx >= 0 && idx < len(req.URL.Path)-1 {
				resourceType = req.URL.Path[idx+1:]
			}

			ip := c.RealIP()
			ua := req.UserAgent()

			svc.Persist(Entry{
				UserID:       userID,
				Action:       req.Method + " " + req.URL.Path,
				ResourceType: resourceType,
				Details:      details,
				IPAddress:    &ip,
				UserAgent:    &ua,
				StartedAt:    start,
			})

			return handlerErr
		}
	}
}

// enrichUserContext parses the bearer token (if present and not shadowed by a service
// credential header), sets enduser.id/user.username/enduser.role on the active span and
// enduser.id on baggage, and returns the user's UUID. Any failure along the way — no
// header, non-Bearer scheme, invalid signature, non-UUID subject — returns nil without
// an error: an unauthenticated or unverifiable request is simply not audited.
func enrichUserContext(c echo.Context, jwtSecret string) *uuid.UUID {
	req := c.Request()
	if req.Header.Get("X-API-Key") != "" || req.Header.Get("X-Internal-Auth") != "" {
		return nil
	}

	authHeader := req.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	claims, err := parseUserClaims(token, jwtSecret)
	if err != nil {
		return nil
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil
	}

	span := trace.SpanFromContext(req.Context())
	span.SetAttributes(
		attribute.String("enduser.id", claims.Subject),
		attribute.String("user.username", claims.Username),
		attribute.String("enduser.role", claims.Role),
	)

	member, err := baggage.NewMember("enduser.id", claims.Subject)
	if err == nil {
		if bag, err := baggage.New(member); err == nil {
			*req = *req.WithContext(baggage.ContextWithBaggage(req.Context(), bag))
		}
	}

	return &id
}

func captureBody(c echo.Context) map[string]any {
	req := c.Request()
	if req.ContentLength > maxBodySize {
		return map[string]any{"_truncated": "body exceeds size limit"}
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize+1))
	if err != nil {
		return map[string]any{"_error": "body already consumed"}
	}
	req.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	if len(bodyBytes) > maxBodySize {
		return map[string]any{"_truncated": "body exceeds size limit"}
	}
	if len(bodyBytes) == 0 {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		raw := string(bodyBytes)
		if len(raw) > 100 {
			raw = raw[:100]
		}
		return map[string]any{"_raw": raw}
	}
	return parsed
}

// truncateLargeArrays collapses numeric arrays longer than maxTruncatedArrayLen to
// their first N elements plus a "...(N more)" marker, recursively.
func truncateLargeArrays(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = truncateLargeArrays(item)
		}
		return out
	case []any:
		if len(val) > maxTruncatedArrayLen && allNumeric(val[:maxTruncatedArrayLen]) {
			truncated := make([]any, 0, maxTruncatedArrayLen+1)
			truncated = append(truncated, val[:maxTruncatedArrayLen]...)
			return append(truncated, "...("+strconv.Itoa(len(val)-maxTruncatedArrayLen)+" more)")
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = truncateLargeArrays(item)
		}
		return out
	default:
		return v
	}
}

func allNumeric(items []any) bool {
	for _, item := range items {
		switch item.(type) {
		case float64, int, int64:
		default:
			return false
		}
	}
	return true
}

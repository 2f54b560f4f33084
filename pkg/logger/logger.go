// Package logger provides the application's structured logging setup on top of log/slog.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/fx"
)

// Module wires the root *slog.Logger and the HTTP access logger into the fx app as singletons.
var Module = fx.Module("logger",
	fx.Provide(NewLogger, NewHTTPLogger),
)

// HTTPLogger appends one line per request to a dedicated access-log file, independent of
// the structured application log. Its format is a flat, greppable line rather than JSON so
// it stays easy to tail alongside a reverse proxy's own access log.
type HTTPLogger struct {
	file *os.File
}

// NewHTTPLogger opens the access-log file named by HTTP_LOG_FILE (default http.log) and
// registers an fx shutdown hook to close it.
func NewHTTPLogger(lc fx.Lifecycle) (*HTTPLogger, error) {
	path := os.Getenv("HTTP_LOG_FILE")
	if path == "" {
		path = "http.log"
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open http log file: %w", err)
	}

	hl := &HTTPLogger{file: f}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return f.Close()
		},
	})

	return hl, nil
}

// LogRequest writes one access-log line for a completed HTTP request.
func (h *HTTPLogger) LogRequest(ip, method, uri string, status int, latency time.Duration, userAgent, requestID string) {
	if h == nil || h.file == nil {
		return
	}
	line := fmt.Sprintf("%s %s %s %s %d %s %q %s\n",
		time.Now().UTC().Format(time.RFC3339), ip, method, uri, status, latency, userAgent, requestID)
	_, _ = h.file.WriteString(line)
}

// Scope returns the "scope" attribute every package's constructor attaches to its
// logger so log lines are greppable by subsystem (e.g. "cache", "eventbus", "batchjobs").
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error returns the uniform "error" attribute used across the codebase.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewLogger builds the root logger from LOG_LEVEL and GO_ENV. Text handler in
// development (the default), JSON handler when GO_ENV=production.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("GO_ENV"), "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

package observability

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nlquery/nlquery/internal/config"
)

type ctxKey string

const (
	traceIDKey   ctxKey = "trace_id"
	sessionIDKey ctxKey = "session_id"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	} else {
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(sessionIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

var (
	dsnPasswordPattern = regexp.MustCompile(`([A-Za-z0-9_.-]+):([^@/\s]+)@`)
	keyValuePattern    = regexp.MustCompile(`(?i)(password|passwd|pwd|api[_-]?key|secret|token)=([^&\s]+)`)
)

// Mask redacts credentials embedded in DSNs and key=value pairs.
func Mask(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	masked := dsnPasswordPattern.ReplaceAllString(value, "$1:***@")
	return keyValuePattern.ReplaceAllString(masked, "$1=***")
}

package api

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestEvent identifies the type of backend call being logged.
type RequestEvent string

const (
	EventConnectInit RequestEvent = "connect_init"
	EventCallback    RequestEvent = "callback"
	EventStatus      RequestEvent = "status"
	EventDisconnect  RequestEvent = "disconnect"
	EventRefresh     RequestEvent = "refresh"
)

// auditLogger wraps slog.Logger for structured request-audit logging.
// Distinct from the persisted session-key audit trail: this is the
// operational log of who hit which endpoint.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{logger: logger.With("component", "audit")}
}

func (al *auditLogger) log(event RequestEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}

func (al *auditLogger) logUser(event RequestEvent, r *http.Request, userID string, extra ...slog.Attr) {
	attrs := []slog.Attr{slog.String("user_id", userID)}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

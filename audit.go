package portalguard

import (
	"io"
	"log/slog"

	"github.com/uimp/portalguard/internal/audit"
)

// AuditEvent is one audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink delivers audit events to a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes audit events as newline-delimited JSON.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink writes audit events as structured log records.
type SlogSink = audit.SlogSink

// Audit event types.
const (
	AuditRedirect    = audit.TypeRedirect
	AuditVerifyError = audit.TypeVerifyError
	AuditLogin       = audit.TypeLogin
	AuditLogout      = audit.TypeLogout
	AuditLogoutAll   = audit.TypeLogoutAll
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) SlogSink {
	return SlogSink{Logger: logger}
}

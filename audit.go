package deskauth

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/deskauth/internal/audit"
	"github.com/rs/zerolog"
)

// AuditEvent is one audit record. Reason carries the internal failure kind.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = internalaudit.SinkFunc

// NoOpSink drops every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events in a channel; see Events.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// ZerologSink writes audit events through a zerolog logger at info level,
// failures at warn.
type ZerologSink struct {
	log zerolog.Logger
}

func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return &ZerologSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *ZerologSink) Emit(_ context.Context, e AuditEvent) {
	ev := s.log.Info()
	if !e.Success {
		ev = s.log.Warn()
	}
	ev = ev.Time("at", e.Timestamp).
		Str("event", e.EventType).
		Bool("success", e.Success)
	if e.Namespace != "" {
		ev = ev.Str("namespace", e.Namespace)
	}
	if e.IdentityID != "" {
		ev = ev.Str("identity_id", e.IdentityID)
	}
	if e.TenantID != "" {
		ev = ev.Str("tenant_id", e.TenantID)
	}
	if e.Session != "" {
		ev = ev.Str("session", e.Session)
	}
	if e.IP != "" {
		ev = ev.Str("ip", e.IP)
	}
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	for k, v := range e.Metadata {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit")
}

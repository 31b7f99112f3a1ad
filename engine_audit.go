package deskauth

import (
	"context"

	"github.com/MrEthical07/deskauth/internal"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventSessionIssued      = "session_issued"
	auditEventSessionFailed      = "session_issue_failed"
	auditEventSessionMinted      = "session_minted"
	auditEventSessionInvalid     = "session_invalid"
	auditEventSessionUnverified  = "session_unverified"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventStaleSessionsPurge = "stale_sessions_invalidated"
	auditEventScopeDenyAll       = "scope_deny_all"
)

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, ns Namespace, identityID, tenantID, sessionDigest, reason string, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		Namespace:  string(ns),
		IdentityID: identityID,
		TenantID:   tenantID,
		Session:    internal.ShortDigest(sessionDigest),
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Reason:     reason,
		Metadata:   metadata,
	})
}

package deskauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/deskauth/internal"
	"github.com/MrEthical07/deskauth/internal/flows"
)

// IssueSession mints and persists a session for ident. Under
// Session.EnforceSingleSession every other session of the identity is
// removed in the same store operation. A persistence failure returns an
// error wrapping ErrSessionPersistence and no token.
func (e *Engine) IssueSession(ctx context.Context, ident *Identity) (*IssuedSession, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	issued, _, err := e.issue(ctx, ident)
	return issued, err
}

func (e *Engine) issue(ctx context.Context, ident *Identity) (*IssuedSession, string, error) {
	if ident == nil || ident.ID == "" || !ident.Namespace.Valid() {
		return nil, "", errors.New("issue session: identity with namespace and id required")
	}

	res := flows.RunIssue(ctx, string(ident.Namespace), ident.ID, e.flow.Issue)
	if res.Err != nil {
		e.metricInc(MetricSessionPersistenceFailure)
		e.log.Error().Err(res.Err).
			Str("namespace", string(ident.Namespace)).
			Str("identity_id", ident.ID).
			Msg("session not persisted")
		e.emitAudit(ctx, auditEventSessionFailed, false, ident.Namespace, ident.ID, ident.TenantID, "", "persistence", nil)
		return nil, "", fmt.Errorf("%w: %v", ErrSessionPersistence, res.Err)
	}

	e.metricInc(MetricSessionCreated)
	if res.Superseded > 0 {
		e.metrics.Add(MetricSessionSuperseded, uint64(res.Superseded))
	}
	e.emitAudit(ctx, auditEventSessionIssued, true, ident.Namespace, ident.ID, ident.TenantID, res.Session.Digest, "", nil)

	return &IssuedSession{
		Token:      res.Token,
		IssuedAt:   time.Unix(res.Session.IssuedAt, 0),
		ExpiresAt:  time.Unix(res.Session.ExpiresAt, 0),
		Superseded: res.Superseded,
	}, res.Session.Digest, nil
}

// ValidateSession checks a raw session token. A token whose row outlived
// its expiry is Invalid. A store failure is Unverified, never Valid.
func (e *Engine) ValidateSession(ctx context.Context, token string) ValidationResult {
	if e == nil {
		return ValidationResult{Outcome: OutcomeUnverified, Err: ErrEngineNotReady}
	}
	start := time.Now()
	res := flows.RunValidate(ctx, token, e.flow.Validate)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	return e.validationResult(ctx, res)
}

func (e *Engine) validateDigest(ctx context.Context, digest string) ValidationResult {
	start := time.Now()
	res := flows.RunValidateDigest(ctx, digest, e.flow.Validate)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	return e.validationResult(ctx, res)
}

func (e *Engine) validationResult(ctx context.Context, res flows.ValidateResult) ValidationResult {
	out := ValidationResult{Reason: string(res.Reason)}
	if res.Session != nil {
		out.Namespace = Namespace(res.Session.Namespace)
		out.IdentityID = res.Session.IdentityID
		out.ExpiresAt = time.Unix(res.Session.ExpiresAt, 0)
	}

	digest := ""
	if res.Session != nil {
		digest = res.Session.Digest
	}

	switch res.Outcome {
	case flows.ValidateValid:
		out.Outcome = OutcomeValid
		if ident := e.sessionOwner(ctx, res); ident != nil {
			out.Auth = e.buildAuthContext(ctx, ident)
		}
		e.metricInc(MetricValidateValid)
	case flows.ValidateUnverified:
		out.Outcome = OutcomeUnverified
		out.Err = fmt.Errorf("%w: %v", ErrTransientStore, res.Err)
		e.metricInc(MetricValidateUnverified)
		e.log.Warn().Err(res.Err).Str("session", internal.ShortDigest(digest)).Msg("session could not be verified")
		e.emitAudit(ctx, auditEventSessionUnverified, false, out.Namespace, out.IdentityID, "", digest, out.Reason, nil)
	default:
		out.Outcome = OutcomeInvalid
		out.Err = ErrSessionInvalid
		e.metricInc(MetricValidateInvalid)
		e.log.Debug().Str("reason", out.Reason).Str("session", internal.ShortDigest(digest)).Msg("session rejected")
		e.emitAudit(ctx, auditEventSessionInvalid, false, out.Namespace, out.IdentityID, "", digest, out.Reason, nil)
	}
	return out
}

// sessionOwner returns the identity reloaded during validation. With
// Validation.CheckIdentity off nothing was reloaded, so it is fetched here;
// a failed fetch only leaves the result without an AuthContext.
func (e *Engine) sessionOwner(ctx context.Context, res flows.ValidateResult) *Identity {
	if ident, ok := res.Identity.(*Identity); ok && ident != nil {
		return ident
	}
	if res.Session == nil {
		return nil
	}
	ident, err := e.findIdentity(ctx, Namespace(res.Session.Namespace), res.Session.IdentityID)
	if err != nil {
		e.log.Warn().Err(err).Str("identity_id", res.Session.IdentityID).Msg("session owner not reloaded")
		return nil
	}
	return ident
}

// Logout deletes the session behind token. Unknown and malformed tokens
// are ignored.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if internal.CheckSessionToken(token) != nil {
		return nil
	}
	return e.logoutDigest(ctx, internal.TokenDigest(token))
}

func (e *Engine) logoutDigest(ctx context.Context, digest string) error {
	if err := e.flow.Revoke.DeleteByDigest(ctx, digest); err != nil {
		e.log.Warn().Err(err).Str("session", internal.ShortDigest(digest)).Msg("logout failed")
		return fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", "", "", digest, "", nil)
	return nil
}

// LogoutAll deletes every session of one identity and returns how many
// were removed.
func (e *Engine) LogoutAll(ctx context.Context, ns Namespace, identityID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if !ns.Valid() {
		return 0, ErrInvalidNamespace
	}

	n, err := flows.RunInvalidateStale(ctx, string(ns), identityID, "", e.flow.Revoke)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, ns, identityID, "", "", "", nil)
	return n, nil
}

// InvalidateStaleSessions deletes every session of the identity except the
// one behind keepToken. An empty keepToken keeps none.
func (e *Engine) InvalidateStaleSessions(ctx context.Context, ns Namespace, identityID, keepToken string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if !ns.Valid() {
		return 0, ErrInvalidNamespace
	}

	n, err := flows.RunInvalidateStale(ctx, string(ns), identityID, keepToken, e.flow.Revoke)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	if n > 0 {
		e.metrics.Add(MetricStaleSessionsRemoved, uint64(n))
		e.emitAudit(ctx, auditEventStaleSessionsPurge, true, ns, identityID, "", "", "", map[string]string{
			"removed": fmt.Sprint(n),
		})
	}
	return n, nil
}

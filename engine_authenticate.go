package deskauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/deskauth/internal/flows"
	"github.com/MrEthical07/deskauth/permission"
)

// Authenticate resolves email and secret to an effective AuthContext.
//
// Without a hint the namespaces are searched Matrix, Context, Legacy; the
// first namespace holding an active row for the email decides. Every
// failure is an *AuthFailure wrapping ErrInvalidCredentials with the same
// message; the reason is only visible through FailureReasonOf.
func (e *Engine) Authenticate(ctx context.Context, email, secret string, hint Namespace) (*AuthContext, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	auth, _, err := e.authenticate(ctx, email, secret, hint)
	return auth, err
}

func (e *Engine) authenticate(ctx context.Context, email, secret string, hint Namespace) (*AuthContext, *Identity, error) {
	// An unknown hint searches nothing, so it fails like an unknown email.
	if hint != "" && !hint.Valid() {
		e.log.Debug().Str("hint", string(hint)).Msg("unknown namespace hint")
		return nil, nil, e.authFailure(ctx, FailureNotFound, "")
	}

	res := flows.RunResolve(ctx, email, secret, string(hint), e.flow.Resolve)
	if res.Match == nil {
		return nil, nil, e.authFailure(ctx, failureReasonFromFlow(res.Failure), res.Namespace)
	}

	ident := res.Match.Ref.(*Identity)
	now := e.now()

	touchCtx, cancel := e.storeCtx(ctx)
	if err := e.identities.TouchLastAuthenticated(touchCtx, ident.Namespace, ident.ID, now); err != nil {
		e.log.Warn().Err(err).Str("namespace", string(ident.Namespace)).Str("identity_id", ident.ID).Msg("last-authenticated update failed")
	} else {
		ident.LastAuthenticatedAt = now
	}
	cancel()

	e.maybeUpgradeSecret(ctx, ident, secret)

	auth := e.buildAuthContext(ctx, ident)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, ident.Namespace, ident.ID, ident.TenantID, "", "", nil)
	return auth, ident, nil
}

func (e *Engine) authFailure(ctx context.Context, reason FailureReason, ns string) error {
	e.metricInc(MetricLoginFailure)
	e.metricInc(failureMetric(reason))
	e.log.Info().
		Str("reason", string(reason)).
		Str("namespace", ns).
		Msg("authentication failed")
	e.emitAudit(ctx, auditEventLoginFailure, false, Namespace(ns), "", "", "", string(reason), nil)
	return &AuthFailure{Reason: reason}
}

// maybeUpgradeSecret re-hashes a verified secret stored under weaker
// parameters. Failures are logged and never affect the sign-in.
func (e *Engine) maybeUpgradeSecret(ctx context.Context, ident *Identity, secret string) {
	if !e.config.Password.UpgradeOnLogin || e.upgrader == nil || e.secretWriter == nil {
		return
	}

	needs, err := e.upgrader.NeedsUpgrade(ident.SecretHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.upgrader.Hash(secret)
	if err != nil {
		e.log.Warn().Err(err).Str("identity_id", ident.ID).Msg("secret re-hash failed")
		return
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.secretWriter.UpdateSecretHash(ctx, ident.Namespace, ident.ID, hash); err != nil {
		e.log.Warn().Err(err).Str("identity_id", ident.ID).Msg("secret hash upgrade not stored")
		return
	}
	ident.SecretHash = hash
	e.metricInc(MetricSecretUpgraded)
}

// buildAuthContext resolves capabilities and, for Context identities, the
// bound tenant. Neither step fails the caller.
func (e *Engine) buildAuthContext(ctx context.Context, ident *Identity) *AuthContext {
	role := strings.ToLower(strings.TrimSpace(ident.Role))
	caps, origin := e.permissions.Resolve(ctx, role)
	if origin == permission.OriginDefault {
		e.metricInc(MetricRoleDefaultsApplied)
	}

	auth := &AuthContext{
		Namespace:    ident.Namespace,
		IdentityID:   ident.ID,
		Email:        ident.Email,
		Name:         ident.DisplayName,
		Role:         role,
		Capabilities: caps,
	}

	if ident.Namespace == NamespaceContext && ident.TenantID != "" {
		auth.TenantID = ident.TenantID
		auth.Tenant = e.loadTenant(ctx, ident.TenantID)
	}
	return auth
}

func (e *Engine) loadTenant(ctx context.Context, tenantID string) *Tenant {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	t, err := e.identities.GetTenant(ctx, tenantID)
	if err != nil || t == nil {
		if err != nil && !errors.Is(err, ErrTenantNotFound) {
			e.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("tenant lookup failed")
		}
		return &Tenant{ID: tenantID}
	}
	return t
}

func failureReasonFromFlow(f flows.ResolveFailure) FailureReason {
	switch f {
	case flows.ResolveFailureSecretMismatch:
		return FailureSecretMismatch
	case flows.ResolveFailureInactive:
		return FailureInactive
	default:
		return FailureNotFound
	}
}

func failureMetric(r FailureReason) MetricID {
	switch r {
	case FailureSecretMismatch:
		return MetricLoginSecretMismatch
	case FailureInactive:
		return MetricLoginInactive
	default:
		return MetricLoginNotFound
	}
}

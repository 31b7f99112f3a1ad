package deskauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/deskauth/jwt"
	"github.com/MrEthical07/deskauth/permission"
)

// Revalidation is the result of re-confirming a bearer credential against
// the session store.
type Revalidation struct {
	Result ValidationResult
	// Auth and Bearer are set when Result is Valid. Bearer is a fresh
	// credential carrying the new validated-at time.
	Auth   *AuthContext
	Bearer string
	// Minted is true when a credential without a session reference was
	// given a new session; SessionToken is that session's raw token.
	Minted       bool
	SessionToken string
}

// ParseBearer verifies a bearer credential's signature and lifetime. It does
// not consult the session store.
func (e *Engine) ParseBearer(raw string) (*jwt.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.jwtManager == nil {
		return nil, ErrBearerDisabled
	}
	claims, err := e.jwtManager.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if !Namespace(claims.Namespace).Valid() {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, ErrInvalidNamespace)
	}
	return claims, nil
}

// NeedsRevalidation reports whether claims were last confirmed at least
// Validation.RefreshInterval ago.
func (e *Engine) NeedsRevalidation(claims *jwt.Claims) bool {
	if e == nil || claims == nil {
		return true
	}
	last := claims.LastValidated()
	if last.IsZero() {
		return true
	}
	return !e.now().Before(last.Add(e.config.Validation.RefreshInterval))
}

// AuthFromClaims rebuilds an AuthContext from a verified credential without
// any store access. Capabilities are those embedded at the last refresh.
func (e *Engine) AuthFromClaims(claims *jwt.Claims) *AuthContext {
	if claims == nil {
		return nil
	}
	caps := make(permission.Set, len(claims.Capabilities))
	for _, c := range claims.Capabilities {
		caps[c] = true
	}
	auth := &AuthContext{
		Namespace:    Namespace(claims.Namespace),
		IdentityID:   claims.Subject,
		Role:         claims.Role,
		Capabilities: caps,
		TenantID:     claims.TenantID,
	}
	if claims.TenantID != "" {
		auth.Tenant = &Tenant{ID: claims.TenantID}
	}
	return auth
}

// Revalidate re-confirms a bearer credential at a refresh point.
//
// A credential bound to a session is valid only while that session is.
// A credential that carries no session reference at all, and whose
// signature already verified, is given a new session silently when
// Session.MintUnregistered is set. The returned error is nil only for a
// Valid result.
func (e *Engine) Revalidate(ctx context.Context, claims *jwt.Claims) (*Revalidation, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.jwtManager == nil {
		return nil, ErrBearerDisabled
	}
	if claims == nil {
		return nil, ErrSessionInvalid
	}

	if !claims.Registered() {
		return e.mintForUnregistered(ctx, claims)
	}

	res := e.validateDigest(ctx, claims.Session)
	rv := &Revalidation{Result: res}
	if !res.Valid() {
		return rv, res.Err
	}
	if res.IdentityID != claims.Subject || string(res.Namespace) != claims.Namespace {
		rv.Result = ValidationResult{Outcome: OutcomeInvalid, Reason: "subject_mismatch", Err: ErrSessionInvalid}
		return rv, ErrSessionInvalid
	}

	if res.Auth != nil {
		rv.Auth = res.Auth
	} else {
		rv.Auth = e.AuthFromClaims(claims)
		rv.Auth.Capabilities, _ = e.permissions.Resolve(ctx, claims.Role)
	}

	bearer, err := e.signBearer(rv.Auth, claims.Session, res.ExpiresAt)
	if err != nil {
		return nil, err
	}
	rv.Bearer = bearer
	return rv, nil
}

func (e *Engine) mintForUnregistered(ctx context.Context, claims *jwt.Claims) (*Revalidation, error) {
	ns := Namespace(claims.Namespace)
	invalid := func(reason string) (*Revalidation, error) {
		e.metricInc(MetricValidateInvalid)
		return &Revalidation{Result: ValidationResult{
			Outcome:    OutcomeInvalid,
			Reason:     reason,
			Namespace:  ns,
			IdentityID: claims.Subject,
			Err:        ErrSessionInvalid,
		}}, ErrSessionInvalid
	}

	if !e.config.Session.MintUnregistered {
		return invalid("unregistered")
	}

	ident, err := e.findIdentity(ctx, ns, claims.Subject)
	switch {
	case errors.Is(err, ErrIdentityNotFound):
		return invalid("identity_gone")
	case err != nil:
		e.metricInc(MetricValidateUnverified)
		e.log.Warn().Err(err).Str("identity_id", claims.Subject).Msg("identity reload failed for unregistered credential")
		wrapped := fmt.Errorf("%w: %v", ErrTransientStore, err)
		return &Revalidation{Result: ValidationResult{
			Outcome:    OutcomeUnverified,
			Reason:     "store_error",
			Namespace:  ns,
			IdentityID: claims.Subject,
			Err:        wrapped,
		}}, wrapped
	case !ident.Active:
		return invalid("inactive")
	}

	issued, digest, err := e.issue(ctx, ident)
	if err != nil {
		return &Revalidation{Result: ValidationResult{
			Outcome:    OutcomeUnverified,
			Reason:     "store_error",
			Namespace:  ns,
			IdentityID: ident.ID,
			Err:        err,
		}}, err
	}

	auth := e.buildAuthContext(ctx, ident)
	bearer, err := e.signBearer(auth, digest, issued.ExpiresAt)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionMinted)
	e.metricInc(MetricValidateValid)
	e.log.Info().Str("namespace", string(ns)).Str("identity_id", ident.ID).Msg("session minted for unregistered credential")
	e.emitAudit(ctx, auditEventSessionMinted, true, ns, ident.ID, ident.TenantID, digest, "", nil)

	return &Revalidation{
		Result: ValidationResult{
			Outcome:    OutcomeValid,
			Namespace:  ns,
			IdentityID: ident.ID,
			ExpiresAt:  issued.ExpiresAt,
			Auth:       auth,
		},
		Auth:         auth,
		Bearer:       bearer,
		Minted:       true,
		SessionToken: issued.Token,
	}, nil
}

// LogoutBearer deletes the session a bearer credential is bound to.
func (e *Engine) LogoutBearer(ctx context.Context, claims *jwt.Claims) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if claims == nil || !claims.Registered() {
		return nil
	}
	return e.logoutDigest(ctx, claims.Session)
}

package deskauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/deskauth/internal"
	internalaudit "github.com/MrEthical07/deskauth/internal/audit"
	"github.com/MrEthical07/deskauth/internal/flows"
	"github.com/MrEthical07/deskauth/jwt"
	"github.com/MrEthical07/deskauth/permission"
	"github.com/MrEthical07/deskauth/session"
	"github.com/rs/zerolog"
)

// Engine is the identity and session authority. It holds no per-identity
// state between calls and is safe for concurrent use.
type Engine struct {
	config       Config
	identities   IdentityStore
	secretWriter SecretUpgrader
	sessions     SessionStore
	permissions  *permission.Resolver
	hasher       Hasher
	upgrader     upgradingHasher
	jwtManager   *jwt.Manager
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	log          zerolog.Logger
	now          func() time.Time

	flow flows.Deps
}

// Close drains the audit dispatcher. Stores are owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeCtx bounds one store call by Store.Timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

// Login authenticates, issues a session and, when bearer credentials are
// enabled, signs one bound to that session.
func (e *Engine) Login(ctx context.Context, email, secret string, hint Namespace) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	auth, ident, err := e.authenticate(ctx, email, secret, hint)
	if err != nil {
		return nil, err
	}

	issued, digest, err := e.issue(ctx, ident)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{Auth: auth, Session: *issued}
	if e.jwtManager != nil {
		bearer, err := e.signBearer(auth, digest, issued.ExpiresAt)
		if err != nil {
			e.log.Error().Err(err).Str("identity_id", ident.ID).Msg("bearer signing failed")
			return nil, err
		}
		result.Bearer = bearer
	}
	return result, nil
}

func (e *Engine) signBearer(auth *AuthContext, digest string, expiresAt time.Time) (string, error) {
	return e.jwtManager.Sign(jwt.Grant{
		IdentityID:   auth.IdentityID,
		Namespace:    string(auth.Namespace),
		Role:         auth.Role,
		TenantID:     auth.TenantID,
		Session:      digest,
		Capabilities: auth.Capabilities.Granted(),
		ValidatedAt:  e.now(),
		ExpiresAt:    expiresAt,
	})
}

func (e *Engine) buildFlowDeps(dummyHash string, newToken func() (string, error)) flows.Deps {
	order := make([]string, len(resolutionOrder))
	for i, ns := range resolutionOrder {
		order[i] = string(ns)
	}

	return flows.Deps{
		Resolve: flows.ResolveDeps{
			Order:     order,
			Lookup:    e.lookupCandidate,
			Verify:    e.hasher.Verify,
			DummyHash: dummyHash,
			OnLookupError: func(ns string, err error) {
				e.metricInc(MetricNamespaceLookupError)
				e.log.Warn().Err(err).Str("namespace", ns).Msg("identity lookup failed, trying next namespace")
			},
			OnVerifyError: func(ns string, err error) {
				e.log.Warn().Err(err).Str("namespace", ns).Msg("stored secret hash could not be verified")
			},
		},
		Issue: flows.IssueDeps{
			SingleSession: e.config.Session.EnforceSingleSession,
			TTL:           e.config.Session.TTL,
			Now:           e.now,
			NewToken:      newToken,
			Digest:        internal.TokenDigest,
			Insert: func(ctx context.Context, s *session.Session, ttl time.Duration) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.sessions.Insert(ctx, s, ttl)
			},
			Replace: func(ctx context.Context, s *session.Session, ttl time.Duration) (int, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.sessions.ReplaceForIdentity(ctx, s, ttl)
			},
		},
		Validate: flows.ValidateDeps{
			Now:        e.now,
			CheckToken: internal.CheckSessionToken,
			Digest:     internal.TokenDigest,
			Find: func(ctx context.Context, digest string) (*session.Session, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.sessions.Find(ctx, digest)
			},
			IsNotFound: func(err error) bool {
				return errors.Is(err, session.ErrNotFound)
			},
			IsCorrupt: func(err error) bool {
				return errors.Is(err, session.ErrCorrupt)
			},
			Delete: func(ctx context.Context, digest string) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.sessions.DeleteByDigest(ctx, digest)
			},
			Identity: e.identityStateFunc(),
		},
		Scope: flows.ScopeDeps{
			AssociatedTenants: e.associatedTenants,
			OnError: func(identityID string, err error) {
				e.metricInc(MetricScopeReadError)
				e.log.Error().Err(err).Str("identity_id", identityID).Msg("tenant association read failed, denying all tenants")
			},
		},
		Revoke: flows.RevokeDeps{
			Digest: internal.TokenDigest,
			DeleteByDigest: func(ctx context.Context, digest string) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.sessions.DeleteByDigest(ctx, digest)
			},
			DeleteByIdentity: func(ctx context.Context, ns, id, keep string) (int, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.sessions.DeleteByIdentity(ctx, ns, id, keep)
			},
		},
	}
}

func (e *Engine) lookupCandidate(ctx context.Context, ns, email string) (*flows.Candidate, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	ident, err := e.identities.FindByEmail(ctx, Namespace(ns), email)
	if errors.Is(err, ErrIdentityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, nil
	}
	if ident.Namespace == "" {
		ident.Namespace = Namespace(ns)
	}
	return &flows.Candidate{
		Namespace:  ns,
		Active:     ident.Active,
		SecretHash: ident.SecretHash,
		Ref:        ident,
	}, nil
}

func (e *Engine) identityStateFunc() func(ctx context.Context, ns, id string) (flows.IdentityState, any, error) {
	if !e.config.Validation.CheckIdentity {
		return nil
	}
	return func(ctx context.Context, ns, id string) (flows.IdentityState, any, error) {
		ident, err := e.findIdentity(ctx, Namespace(ns), id)
		switch {
		case errors.Is(err, ErrIdentityNotFound):
			return flows.IdentityMissing, nil, nil
		case err != nil:
			return flows.IdentityMissing, nil, err
		case !ident.Active:
			return flows.IdentityInactive, ident, nil
		}
		return flows.IdentityActive, ident, nil
	}
}

// findIdentity loads one row under the store timeout. A nil row is reported
// as ErrIdentityNotFound.
func (e *Engine) findIdentity(ctx context.Context, ns Namespace, id string) (*Identity, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	ident, err := e.identities.FindByID(ctx, ns, id)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrIdentityNotFound
	}
	if ident.Namespace == "" {
		ident.Namespace = ns
	}
	return ident, nil
}

func (e *Engine) associatedTenants(ctx context.Context, identityID string) ([]string, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	assocs, err := e.identities.ListTenantAssociations(ctx, identityID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(assocs))
	for _, a := range assocs {
		ids = append(ids, a.TenantID)
	}
	return ids, nil
}

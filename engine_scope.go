package deskauth

import (
	"context"

	"github.com/MrEthical07/deskauth/internal/flows"
	"github.com/MrEthical07/deskauth/tenancy"
)

// TenantScope computes which tenants auth may see. It is evaluated on every
// call and never cached:
//
//	Context identity -> exactly its bound tenant
//	Matrix identity  -> its associated tenants; none means deny-all
//	Legacy identity  -> Unrestricted
//
// An association read failure yields deny-all. A nil or unknown auth
// yields deny-all.
func (e *Engine) TenantScope(ctx context.Context, auth *AuthContext) tenancy.Scope {
	if e == nil || auth == nil {
		return tenancy.DenyAll()
	}

	var rule flows.ScopeRule
	switch auth.Namespace {
	case NamespaceContext:
		rule = flows.ScopeOwnTenant
	case NamespaceMatrix:
		rule = flows.ScopeAssociations
	case NamespaceLegacy:
		rule = flows.ScopeEverything
	default:
		e.metricInc(MetricScopeDenyAll)
		return tenancy.DenyAll()
	}

	scope := flows.RunScope(ctx, rule, auth.IdentityID, auth.TenantID, e.flow.Scope)
	switch {
	case scope.IsUnrestricted():
		e.metricInc(MetricScopeUnrestricted)
	case scope.IsDenyAll():
		e.metricInc(MetricScopeDenyAll)
		e.emitAudit(ctx, auditEventScopeDenyAll, true, auth.Namespace, auth.IdentityID, auth.TenantID, "", "", nil)
	default:
		e.metricInc(MetricScopeScoped)
	}
	return scope
}

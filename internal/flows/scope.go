package flows

import (
	"context"

	"github.com/MrEthical07/deskauth/tenancy"
)

// ScopeRule selects how a namespace's tenant visibility is computed.
type ScopeRule int

const (
	// ScopeOwnTenant sees exactly the identity's bound tenant.
	ScopeOwnTenant ScopeRule = iota
	// ScopeAssociations sees the associated tenants; none means deny-all.
	ScopeAssociations
	// ScopeEverything sees every tenant.
	ScopeEverything
)

type ScopeDeps struct {
	AssociatedTenants func(ctx context.Context, identityID string) ([]string, error)
	OnError           func(identityID string, err error)
}

// RunScope computes tenant visibility. It never fails open: a missing bound
// tenant or an association read error yields deny-all.
func RunScope(ctx context.Context, rule ScopeRule, identityID, boundTenant string, deps ScopeDeps) tenancy.Scope {
	switch rule {
	case ScopeEverything:
		return tenancy.Unrestricted()
	case ScopeOwnTenant:
		return tenancy.Scoped(boundTenant)
	case ScopeAssociations:
		ids, err := deps.AssociatedTenants(ctx, identityID)
		if err != nil {
			if deps.OnError != nil {
				deps.OnError(identityID, err)
			}
			return tenancy.DenyAll()
		}
		return tenancy.Scoped(ids...)
	default:
		return tenancy.DenyAll()
	}
}

package deskauth

import (
	"context"
	"time"

	"github.com/MrEthical07/deskauth/permission"
	"github.com/MrEthical07/deskauth/session"
)

// IdentityStore reads the three identity namespaces and the tenant tables.
//
// FindByEmail and FindByID must return inactive rows too; the engine decides
// what inactivity means. Absent rows return ErrIdentityNotFound, absent
// tenants ErrTenantNotFound. Every other error is treated as transient.
type IdentityStore interface {
	FindByEmail(ctx context.Context, ns Namespace, email string) (*Identity, error)
	FindByID(ctx context.Context, ns Namespace, id string) (*Identity, error)
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
	ListTenantAssociations(ctx context.Context, identityID string) ([]TenantAssociation, error)
	TouchLastAuthenticated(ctx context.Context, ns Namespace, id string, at time.Time) error
}

// SecretUpgrader is optionally implemented by an IdentityStore that can
// rewrite a stored secret hash after a successful sign-in.
type SecretUpgrader interface {
	UpdateSecretHash(ctx context.Context, ns Namespace, id, hash string) error
}

// RoleStore reads stored capability maps. A missing row returns
// permission.ErrRoleNotFound.
type RoleStore interface {
	Capabilities(ctx context.Context, role string) (permission.Set, error)
}

// SessionStore persists sessions keyed by token digest.
//
// ReplaceForIdentity must insert the new session and remove every other
// session of the same identity atomically. Find returns session.ErrNotFound
// for unknown digests and does not check expiry.
type SessionStore interface {
	Insert(ctx context.Context, s *session.Session, ttl time.Duration) error
	ReplaceForIdentity(ctx context.Context, s *session.Session, ttl time.Duration) (int, error)
	Find(ctx context.Context, digest string) (*session.Session, error)
	DeleteByDigest(ctx context.Context, digest string) error
	DeleteByIdentity(ctx context.Context, namespace, identityID, keepDigest string) (int, error)
}

// Hasher verifies secrets in constant time.
type Hasher interface {
	Verify(secret, hash string) (bool, error)
}

// upgradingHasher is implemented by hashers that can re-hash on sign-in.
type upgradingHasher interface {
	Hasher
	Hash(secret string) (string, error)
	NeedsUpgrade(hash string) (bool, error)
}

var _ SessionStore = (*session.Store)(nil)

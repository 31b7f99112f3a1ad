package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/deskauth"
	"github.com/google/uuid"
)

// ErrDuplicateEmail is returned by Put when the namespace already holds the
// email under a different id.
var ErrDuplicateEmail = errors.New("email already registered in namespace")

// IdentityStore implements deskauth.IdentityStore and
// deskauth.SecretUpgrader.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[deskauth.Namespace]map[string]deskauth.Identity
	emails     map[deskauth.Namespace]map[string]string
	tenants    map[string]deskauth.Tenant
	assocs     map[string][]deskauth.TenantAssociation
}

func NewIdentityStore() *IdentityStore {
	s := &IdentityStore{
		identities: make(map[deskauth.Namespace]map[string]deskauth.Identity),
		emails:     make(map[deskauth.Namespace]map[string]string),
		tenants:    make(map[string]deskauth.Tenant),
		assocs:     make(map[string][]deskauth.TenantAssociation),
	}
	for _, ns := range deskauth.Namespaces() {
		s.identities[ns] = make(map[string]deskauth.Identity)
		s.emails[ns] = make(map[string]string)
	}
	return s
}

// Put inserts or replaces an identity. An empty ID is assigned a UUID. The
// stored copy is returned.
func (s *IdentityStore) Put(ident deskauth.Identity) (deskauth.Identity, error) {
	if !ident.Namespace.Valid() {
		return deskauth.Identity{}, deskauth.ErrInvalidNamespace
	}
	ident.Email = strings.ToLower(strings.TrimSpace(ident.Email))
	if ident.Email == "" {
		return deskauth.Identity{}, errors.New("email required")
	}
	if ident.ID == "" {
		ident.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.emails[ident.Namespace][ident.Email]; ok && owner != ident.ID {
		return deskauth.Identity{}, ErrDuplicateEmail
	}
	if prev, ok := s.identities[ident.Namespace][ident.ID]; ok && prev.Email != ident.Email {
		delete(s.emails[ident.Namespace], prev.Email)
	}
	s.identities[ident.Namespace][ident.ID] = ident
	s.emails[ident.Namespace][ident.Email] = ident.ID
	return ident, nil
}

// SetActive flips the active flag of one identity.
func (s *IdentityStore) SetActive(ns deskauth.Namespace, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[ns][id]
	if !ok {
		return deskauth.ErrIdentityNotFound
	}
	ident.Active = active
	s.identities[ns][id] = ident
	return nil
}

// Delete removes an identity and, for Matrix identities, its associations.
func (s *IdentityStore) Delete(ns deskauth.Namespace, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[ns][id]
	if !ok {
		return
	}
	delete(s.identities[ns], id)
	delete(s.emails[ns], ident.Email)
	if ns == deskauth.NamespaceMatrix {
		delete(s.assocs, id)
	}
}

func (s *IdentityStore) PutTenant(t deskauth.Tenant) deskauth.Tenant {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Kind == "" {
		t.Kind = deskauth.TenantOrganization
	}

	s.mu.Lock()
	s.tenants[t.ID] = t
	s.mu.Unlock()
	return t
}

// Associate links a Matrix identity to a tenant. Repeating a pair updates
// CanManage.
func (s *IdentityStore) Associate(identityID, tenantID string, canManage bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.assocs[identityID]
	for i := range list {
		if list[i].TenantID == tenantID {
			list[i].CanManage = canManage
			return
		}
	}
	s.assocs[identityID] = append(list, deskauth.TenantAssociation{
		IdentityID: identityID,
		TenantID:   tenantID,
		CanManage:  canManage,
	})
}

func (s *IdentityStore) FindByEmail(ctx context.Context, ns deskauth.Namespace, email string) (*deskauth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[ns][strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, deskauth.ErrIdentityNotFound
	}
	ident := s.identities[ns][id]
	return &ident, nil
}

func (s *IdentityStore) FindByID(ctx context.Context, ns deskauth.Namespace, id string) (*deskauth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.identities[ns][id]
	if !ok {
		return nil, deskauth.ErrIdentityNotFound
	}
	return &ident, nil
}

func (s *IdentityStore) GetTenant(ctx context.Context, tenantID string) (*deskauth.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, deskauth.ErrTenantNotFound
	}
	return &t, nil
}

// ListTenantAssociations returns associations ordered by tenant id.
func (s *IdentityStore) ListTenantAssociations(ctx context.Context, identityID string) ([]deskauth.TenantAssociation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := append([]deskauth.TenantAssociation(nil), s.assocs[identityID]...)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (s *IdentityStore) TouchLastAuthenticated(ctx context.Context, ns deskauth.Namespace, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[ns][id]
	if !ok {
		return deskauth.ErrIdentityNotFound
	}
	ident.LastAuthenticatedAt = at
	s.identities[ns][id] = ident
	return nil
}

func (s *IdentityStore) UpdateSecretHash(ctx context.Context, ns deskauth.Namespace, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[ns][id]
	if !ok {
		return deskauth.ErrIdentityNotFound
	}
	ident.SecretHash = hash
	s.identities[ns][id] = ident
	return nil
}

var (
	_ deskauth.IdentityStore  = (*IdentityStore)(nil)
	_ deskauth.SecretUpgrader = (*IdentityStore)(nil)
)

package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/deskauth"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// identityTables maps each namespace to its table and tenant column
// expression. Only Context identities are bound to a tenant.
var identityTables = map[deskauth.Namespace]struct {
	table  string
	tenant string
}{
	deskauth.NamespaceMatrix:  {"matrix_identities", "''"},
	deskauth.NamespaceContext: {"context_identities", "tenant_id"},
	deskauth.NamespaceLegacy:  {"legacy_identities", "''"},
}

func selectIdentity(ns deskauth.Namespace, where string) (string, error) {
	t, ok := identityTables[ns]
	if !ok {
		return "", deskauth.ErrInvalidNamespace
	}
	return `SELECT id, email, display_name, role, secret_hash, active, ` + t.tenant + `, last_authenticated_at
		FROM ` + t.table + ` WHERE ` + where, nil
}

// IdentityStore implements deskauth.IdentityStore and deskauth.SecretUpgrader.
type IdentityStore struct {
	db  DB
	log zerolog.Logger
}

func NewIdentityStore(db DB, log zerolog.Logger) *IdentityStore {
	return &IdentityStore{
		db:  db,
		log: log.With().Str("component", "pg_identity_store").Logger(),
	}
}

func (s *IdentityStore) FindByEmail(ctx context.Context, ns deskauth.Namespace, email string) (*deskauth.Identity, error) {
	q, err := selectIdentity(ns, `lower(email) = $1`)
	if err != nil {
		return nil, err
	}
	return s.scanIdentity(ns, s.db.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email))))
}

func (s *IdentityStore) FindByID(ctx context.Context, ns deskauth.Namespace, id string) (*deskauth.Identity, error) {
	q, err := selectIdentity(ns, `id = $1`)
	if err != nil {
		return nil, err
	}
	return s.scanIdentity(ns, s.db.QueryRow(ctx, q, id))
}

func (s *IdentityStore) scanIdentity(ns deskauth.Namespace, row pgx.Row) (*deskauth.Identity, error) {
	ident := deskauth.Identity{Namespace: ns}
	var lastAuth *time.Time
	err := row.Scan(
		&ident.ID,
		&ident.Email,
		&ident.DisplayName,
		&ident.Role,
		&ident.SecretHash,
		&ident.Active,
		&ident.TenantID,
		&lastAuth,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, deskauth.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s identity: %w", ns, err)
	}
	if lastAuth != nil {
		ident.LastAuthenticatedAt = *lastAuth
	}
	return &ident, nil
}

func (s *IdentityStore) GetTenant(ctx context.Context, tenantID string) (*deskauth.Tenant, error) {
	var t deskauth.Tenant
	var kind string
	err := s.db.QueryRow(ctx,
		`SELECT id, name, slug, kind FROM tenants WHERE id = $1`, tenantID,
	).Scan(&t.ID, &t.Name, &t.Slug, &kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, deskauth.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	t.Kind = deskauth.TenantKind(kind)
	return &t, nil
}

// ListTenantAssociations returns the Matrix identity's associations ordered
// by tenant id. No rows is an empty slice, not an error.
func (s *IdentityStore) ListTenantAssociations(ctx context.Context, identityID string) ([]deskauth.TenantAssociation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT identity_id, tenant_id, can_manage FROM tenant_associations
		WHERE identity_id = $1 ORDER BY tenant_id`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list tenant associations: %w", err)
	}
	defer rows.Close()

	var out []deskauth.TenantAssociation
	for rows.Next() {
		var a deskauth.TenantAssociation
		if err := rows.Scan(&a.IdentityID, &a.TenantID, &a.CanManage); err != nil {
			return nil, fmt.Errorf("scan tenant association: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant associations: %w", err)
	}
	return out, nil
}

func (s *IdentityStore) TouchLastAuthenticated(ctx context.Context, ns deskauth.Namespace, id string, at time.Time) error {
	t, ok := identityTables[ns]
	if !ok {
		return deskauth.ErrInvalidNamespace
	}
	tag, err := s.db.Exec(ctx, `UPDATE `+t.table+` SET last_authenticated_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("touch last authenticated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return deskauth.ErrIdentityNotFound
	}
	return nil
}

func (s *IdentityStore) UpdateSecretHash(ctx context.Context, ns deskauth.Namespace, id, hash string) error {
	t, ok := identityTables[ns]
	if !ok {
		return deskauth.ErrInvalidNamespace
	}
	tag, err := s.db.Exec(ctx, `UPDATE `+t.table+` SET secret_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update secret hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return deskauth.ErrIdentityNotFound
	}
	s.log.Debug().Str("namespace", string(ns)).Str("identity_id", id).Msg("secret hash upgraded")
	return nil
}

// CreateIdentity inserts a row into the namespace's table. Used by tooling.
func (s *IdentityStore) CreateIdentity(ctx context.Context, ident deskauth.Identity) error {
	t, ok := identityTables[ident.Namespace]
	if !ok {
		return deskauth.ErrInvalidNamespace
	}
	email := strings.ToLower(strings.TrimSpace(ident.Email))

	var err error
	if ident.Namespace == deskauth.NamespaceContext {
		_, err = s.db.Exec(ctx,
			`INSERT INTO `+t.table+` (id, email, display_name, role, secret_hash, active, tenant_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ident.ID, email, ident.DisplayName, ident.Role, ident.SecretHash, ident.Active, ident.TenantID)
	} else {
		_, err = s.db.Exec(ctx,
			`INSERT INTO `+t.table+` (id, email, display_name, role, secret_hash, active)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ident.ID, email, ident.DisplayName, ident.Role, ident.SecretHash, ident.Active)
	}
	if err != nil {
		return fmt.Errorf("create %s identity: %w", ident.Namespace, err)
	}
	return nil
}

var (
	_ deskauth.IdentityStore  = (*IdentityStore)(nil)
	_ deskauth.SecretUpgrader = (*IdentityStore)(nil)
)

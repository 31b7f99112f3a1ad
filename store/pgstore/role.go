package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/permission"
	"github.com/jackc/pgx/v5"
)

// RoleStore reads capability maps from the roles table's jsonb column.
type RoleStore struct {
	db DB
}

func NewRoleStore(db DB) *RoleStore {
	return &RoleStore{db: db}
}

func (s *RoleStore) Capabilities(ctx context.Context, role string) (permission.Set, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT capabilities FROM roles WHERE name = $1`, role).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, permission.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get role capabilities: %w", err)
	}

	caps := permission.Set{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &caps); err != nil {
			return nil, fmt.Errorf("decode role capabilities: %w", err)
		}
	}
	return caps, nil
}

// PutRole upserts a role's capability map.
func (s *RoleStore) PutRole(ctx context.Context, role string, caps permission.Set) error {
	raw, err := json.Marshal(caps)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO roles (name, capabilities) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET capabilities = EXCLUDED.capabilities`,
		role, raw)
	if err != nil {
		return fmt.Errorf("put role: %w", err)
	}
	return nil
}

var _ deskauth.RoleStore = (*RoleStore)(nil)

package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/permission"
)

// RoleStore holds stored capability maps by lower-cased role name.
type RoleStore struct {
	mu    sync.RWMutex
	roles map[string]permission.Set
}

func NewRoleStore() *RoleStore {
	return &RoleStore{roles: make(map[string]permission.Set)}
}

// Set stores caps for role. An empty set is stored as such; the resolver
// then falls back to the built-in defaults.
func (s *RoleStore) Set(role string, caps permission.Set) {
	s.mu.Lock()
	s.roles[strings.ToLower(strings.TrimSpace(role))] = caps.Clone()
	s.mu.Unlock()
}

func (s *RoleStore) Remove(role string) {
	s.mu.Lock()
	delete(s.roles, strings.ToLower(strings.TrimSpace(role)))
	s.mu.Unlock()
}

func (s *RoleStore) Capabilities(ctx context.Context, role string) (permission.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	caps, ok := s.roles[role]
	if !ok {
		return nil, permission.ErrRoleNotFound
	}
	return caps.Clone(), nil
}

var _ deskauth.RoleStore = (*RoleStore)(nil)

package tenancy

import (
	"fmt"
	"sort"
)

// Scope is the tenant visibility of one request. The zero value is deny-all.
type Scope struct {
	unrestricted bool
	ids          map[string]struct{}
}

// Unrestricted returns a scope that sees every tenant.
func Unrestricted() Scope {
	return Scope{unrestricted: true}
}

// Scoped returns a scope restricted to ids. Empty ids are dropped, and a call
// with no usable ids yields deny-all.
func Scoped(ids ...string) Scope {
	s := Scope{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id == "" {
			continue
		}
		s.ids[id] = struct{}{}
	}
	return s
}

// DenyAll returns a restricted scope with no tenants.
func DenyAll() Scope {
	return Scope{}
}

func (s Scope) IsUnrestricted() bool { return s.unrestricted }

// IsDenyAll reports whether s is restricted and empty.
func (s Scope) IsDenyAll() bool {
	return !s.unrestricted && len(s.ids) == 0
}

// Allows reports whether tenantID is visible.
func (s Scope) Allows(tenantID string) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.ids[tenantID]
	return ok
}

// IDs returns the visible tenant ids in sorted order. It returns nil for an
// unrestricted scope, so callers must check IsUnrestricted first.
func (s Scope) IDs() []string {
	if s.unrestricted {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len is the number of visible tenants; -1 when unrestricted.
func (s Scope) Len() int {
	if s.unrestricted {
		return -1
	}
	return len(s.ids)
}

// Predicate returns a PostgreSQL boolean fragment restricting column to the
// scope, using placeholder $argPos, plus the argument to bind. For an
// unrestricted scope it returns "TRUE" and no argument. Deny-all binds an
// empty array, for which "= ANY" never matches.
func (s Scope) Predicate(column string, argPos int) (string, []any) {
	if s.unrestricted {
		return "TRUE", nil
	}
	return fmt.Sprintf("%s = ANY($%d)", column, argPos), []any{s.IDs()}
}

func (s Scope) String() string {
	switch {
	case s.unrestricted:
		return "unrestricted"
	case len(s.ids) == 0:
		return "deny-all"
	default:
		return fmt.Sprintf("scoped%v", s.IDs())
	}
}

// Filter keeps the items whose tenant is visible under s.
func Filter[T any](s Scope, items []T, tenantOf func(T) string) []T {
	if s.unrestricted {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if s.Allows(tenantOf(it)) {
			out = append(out, it)
		}
	}
	return out
}

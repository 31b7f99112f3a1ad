package permission

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// ErrRoleNotFound is returned by a [Source] that has no row for a role.
var ErrRoleNotFound = errors.New("role not found")

// Source reads stored capability maps by role name.
type Source interface {
	Capabilities(ctx context.Context, role string) (Set, error)
}

// Origin tells where a resolved set came from.
type Origin uint8

const (
	// OriginStored means the stored map was non-empty and used verbatim.
	OriginStored Origin = iota + 1
	// OriginDefault means the built-in map replaced a missing or empty one.
	OriginDefault
)

func (o Origin) String() string {
	switch o {
	case OriginStored:
		return "stored"
	case OriginDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Resolver applies the replace-not-merge rule on top of a Source.
// A nil source resolves every role to its defaults.
type Resolver struct {
	source Source
	log    zerolog.Logger
}

// NewResolver builds a Resolver.
func NewResolver(source Source, log zerolog.Logger) *Resolver {
	return &Resolver{
		source: source,
		log:    log.With().Str("component", "permission").Logger(),
	}
}

// Resolve returns the effective capability set for role. It never fails:
// source errors are logged and the built-in defaults are used.
func (r *Resolver) Resolve(ctx context.Context, role string) (Set, Origin) {
	if r == nil || r.source == nil {
		return Defaults(role), OriginDefault
	}

	name := strings.ToLower(strings.TrimSpace(role))
	stored, err := r.source.Capabilities(ctx, name)
	switch {
	case errors.Is(err, ErrRoleNotFound):
		return Defaults(name), OriginDefault
	case err != nil:
		r.log.Warn().Err(err).Str("role", name).Msg("role lookup failed, using built-in capabilities")
		return Defaults(name), OriginDefault
	}

	if stored.Empty() {
		return Defaults(name), OriginDefault
	}
	return stored.Clone(), OriginStored
}

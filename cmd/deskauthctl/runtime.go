package main

import (
	"context"
	"fmt"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/internal/config"
	"github.com/MrEthical07/deskauth/permission"
	"github.com/MrEthical07/deskauth/store/memory"
	"github.com/MrEthical07/deskauth/store/pgstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// runtime is an engine plus the resources it holds.
type runtime struct {
	engine  *deskauth.Engine
	closers []func()
}

func (r *runtime) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func openRuntime(ctx context.Context) (*runtime, error) {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return nil, err
	}

	rt := &runtime{}
	b := deskauth.New().
		WithConfig(engineCfg).
		WithLogger(logger).
		WithAuditSink(deskauth.NewZerologSink(logger))

	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.Connect(ctx, cfg.Postgres.DSN, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		b = b.WithIdentityStore(pgstore.NewIdentityStore(pool, logger)).
			WithRoleStore(pgstore.NewRoleStore(pool))
		if cfg.Session.Store == config.SessionStorePostgres {
			b = b.WithSessionStore(pgstore.NewSessionStore(pool))
		}
	default:
		identities, roles, err := seedMemory(cfg.Seed)
		if err != nil {
			return nil, err
		}
		b = b.WithIdentityStore(identities).WithRoleStore(roles)
	}

	if cfg.Session.Store == config.SessionStoreRedis {
		addr := cfg.Redis.Addr
		if addr == "" {
			// Sessions then live only as long as this process.
			mr, err := miniredis.Run()
			if err != nil {
				rt.Close()
				return nil, fmt.Errorf("start in-process redis: %w", err)
			}
			rt.closers = append(rt.closers, mr.Close)
			addr = mr.Addr()
			logger.Warn().Msg("redis.addr not set; sessions are kept in-process")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		b = b.WithRedis(client)
	}

	engine, err := b.Build()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}

func seedMemory(seed config.SeedConfig) (*memory.IdentityStore, *memory.RoleStore, error) {
	identities := memory.NewIdentityStore()
	for _, t := range seed.Tenants {
		identities.PutTenant(deskauth.Tenant{
			ID:   t.ID,
			Name: t.Name,
			Slug: t.Slug,
			Kind: deskauth.TenantKind(t.Kind),
		})
	}
	for _, si := range seed.Identities {
		ns, err := deskauth.ParseNamespace(si.Namespace)
		if err != nil || ns == "" {
			return nil, nil, fmt.Errorf("seed identity %q: invalid namespace %q", si.Email, si.Namespace)
		}
		if _, err := identities.Put(deskauth.Identity{
			Namespace:   ns,
			ID:          si.ID,
			Email:       si.Email,
			DisplayName: si.Name,
			Role:        si.Role,
			SecretHash:  si.SecretHash,
			Active:      !si.Inactive,
			TenantID:    si.TenantID,
		}); err != nil {
			return nil, nil, fmt.Errorf("seed identity %q: %w", si.Email, err)
		}
	}
	for _, a := range seed.Associations {
		identities.Associate(a.IdentityID, a.TenantID, a.CanManage)
	}

	roles := memory.NewRoleStore()
	for _, r := range seed.Roles {
		caps := make(permission.Set, len(r.Capabilities))
		for _, c := range r.Capabilities {
			caps[c] = true
		}
		roles.Set(r.Name, caps)
	}
	return identities, roles, nil
}

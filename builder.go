package deskauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/deskauth/internal"
	internalaudit "github.com/MrEthical07/deskauth/internal/audit"
	"github.com/MrEthical07/deskauth/jwt"
	"github.com/MrEthical07/deskauth/password"
	"github.com/MrEthical07/deskauth/permission"
	"github.com/MrEthical07/deskauth/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// timingSecret is hashed once at build time; misses verify against it.
const timingSecret = "deskauth-timing-equalizer"

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities IdentityStore
	roles      RoleStore
	sessions   SessionStore
	hasher     Hasher
	timingHash string
	auditSink  AuditSink

	log       zerolog.Logger
	hasLogger bool
	now       func() time.Time

	built bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The builder keeps a copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentityStore sets the source of Matrix, Context and Legacy rows.
// It is required.
func (b *Builder) WithIdentityStore(s IdentityStore) *Builder {
	b.identities = s
	return b
}

// WithRoleStore sets the stored capability maps. Without one every role
// resolves to its built-in defaults.
func (b *Builder) WithRoleStore(s RoleStore) *Builder {
	b.roles = s
	return b
}

// WithSessionStore sets the session store. It takes precedence over
// WithRedis.
func (b *Builder) WithSessionStore(s SessionStore) *Builder {
	b.sessions = s
	return b
}

// WithRedis backs sessions with a Redis session.Store under
// Session.RedisPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHasher overrides the default Argon2id/bcrypt hasher.
func (b *Builder) WithHasher(h Hasher) *Builder {
	b.hasher = h
	return b
}

// WithTimingHash sets the hash verified when no active identity matches,
// so misses cost as much as a wrong secret. It is needed with
// Password.EqualizeTiming when the hasher given to WithHasher cannot Hash.
func (b *Builder) WithTimingHash(hash string) *Builder {
	b.timingHash = hash
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	b.hasLogger = true
	return b
}

// WithClock replaces time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. A Builder
// can be built only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.identities == nil {
		return nil, errors.New("identity store required")
	}

	// -------- SESSION STORE --------
	sessions := b.sessions
	if sessions == nil {
		if b.redis == nil {
			return nil, errors.New("session store or redis client required")
		}
		sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix)
	}

	log := zerolog.Nop()
	if b.hasLogger {
		log = b.log
	}
	log = log.With().Str("component", "deskauth").Logger()

	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:     cfg,
		identities: b.identities,
		sessions:   sessions,
		log:        log,
		now:        now,
	}
	if up, ok := b.identities.(SecretUpgrader); ok {
		engine.secretWriter = up
	}

	// -------- HASHER --------
	hasher := b.hasher
	if hasher == nil {
		multi, err := password.NewMulti(cfg.Password.Params())
		if err != nil {
			return nil, err
		}
		hasher = multi
	}
	engine.hasher = hasher
	if uh, ok := hasher.(upgradingHasher); ok {
		engine.upgrader = uh
	}

	dummy := ""
	if cfg.Password.EqualizeTiming {
		dummy = b.timingHash
		if dummy == "" && engine.upgrader != nil {
			h, err := engine.upgrader.Hash(timingSecret)
			if err != nil {
				return nil, err
			}
			dummy = h
		}
		if dummy == "" {
			return nil, errors.New("password.equalize_timing needs a hasher that can Hash or a WithTimingHash value")
		}
	}

	// -------- PERMISSIONS --------
	var source permission.Source
	if b.roles != nil {
		source = b.roles
	}
	engine.permissions = permission.NewResolver(source, log)

	// -------- BEARER --------
	if cfg.Bearer.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Session.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Bearer.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Bearer.PrivateKey),
			PublicKey:     cloneBytes(cfg.Bearer.PublicKey),
			Issuer:        cfg.Bearer.Issuer,
			Audience:      cfg.Bearer.Audience,
			Leeway:        cfg.Bearer.Leeway,
			KeyID:         cfg.Bearer.KeyID,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm.WithClock(now)
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flow = engine.buildFlowDeps(dummy, internal.NewSessionToken)

	b.built = true

	return engine, nil
}

// Package config loads command-line tool settings from a yaml file and
// DESKAUTH_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/deskauth"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DESKAUTH_REDIS_ADDR.
const EnvPrefix = "DESKAUTH"

type Config struct {
	Backend    string           `mapstructure:"backend"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Session    SessionConfig    `mapstructure:"session"`
	Store      StoreConfig      `mapstructure:"store"`
	Bearer     BearerConfig     `mapstructure:"bearer"`
	Validation ValidationConfig `mapstructure:"validation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Seed       SeedConfig       `mapstructure:"seed"`
}

// Backends accepted in Config.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Session stores accepted in SessionConfig.Store.
const (
	SessionStoreRedis    = "redis"
	SessionStorePostgres = "postgres"
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type SessionConfig struct {
	// Store is "redis" or "postgres".
	Store                string        `mapstructure:"store"`
	TTL                  time.Duration `mapstructure:"ttl"`
	EnforceSingleSession bool          `mapstructure:"enforce_single_session"`
	MintUnregistered     bool          `mapstructure:"mint_unregistered"`
	RedisPrefix          string        `mapstructure:"redis_prefix"`
}

type StoreConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type BearerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	SigningMethod  string `mapstructure:"signing_method"`
	Secret         string `mapstructure:"secret"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
	PublicKeyFile  string `mapstructure:"public_key_file"`
	Issuer         string `mapstructure:"issuer"`
	Audience       string `mapstructure:"audience"`
}

type ValidationConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	CheckIdentity   bool          `mapstructure:"check_identity"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SeedConfig populates the memory backend. Secrets are stored hashes, as
// printed by deskauthctl hash-secret.
type SeedConfig struct {
	Tenants      []SeedTenant      `mapstructure:"tenants"`
	Identities   []SeedIdentity    `mapstructure:"identities"`
	Associations []SeedAssociation `mapstructure:"associations"`
	Roles        []SeedRole        `mapstructure:"roles"`
}

// SeedRole stores a capability map for Name. Listed capabilities are
// granted; everything else is absent.
type SeedRole struct {
	Name         string   `mapstructure:"name"`
	Capabilities []string `mapstructure:"capabilities"`
}

type SeedTenant struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Slug string `mapstructure:"slug"`
	Kind string `mapstructure:"kind"`
}

type SeedIdentity struct {
	Namespace  string `mapstructure:"namespace"`
	ID         string `mapstructure:"id"`
	Email      string `mapstructure:"email"`
	Name       string `mapstructure:"name"`
	Role       string `mapstructure:"role"`
	SecretHash string `mapstructure:"secret_hash"`
	Inactive   bool   `mapstructure:"inactive"`
	TenantID   string `mapstructure:"tenant_id"`
}

type SeedAssociation struct {
	IdentityID string `mapstructure:"identity_id"`
	TenantID   string `mapstructure:"tenant_id"`
	CanManage  bool   `mapstructure:"can_manage"`
}

// Load reads cfgFile, or deskauth.yaml from the working directory and
// $HOME/.config/deskauth when cfgFile is empty. A missing default file is
// not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("deskauth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/deskauth")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := deskauth.DefaultConfig()

	v.SetDefault("backend", BackendMemory)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("session.store", SessionStoreRedis)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.enforce_single_session", d.Session.EnforceSingleSession)
	v.SetDefault("session.mint_unregistered", d.Session.MintUnregistered)
	v.SetDefault("session.redis_prefix", d.Session.RedisPrefix)

	v.SetDefault("store.timeout", d.Store.Timeout)

	v.SetDefault("bearer.enabled", false)
	v.SetDefault("bearer.signing_method", d.Bearer.SigningMethod)
	v.SetDefault("bearer.secret", "")
	v.SetDefault("bearer.private_key_file", "")
	v.SetDefault("bearer.public_key_file", "")
	v.SetDefault("bearer.issuer", "deskauth")
	v.SetDefault("bearer.audience", "")

	v.SetDefault("validation.refresh_interval", d.Validation.RefreshInterval)
	v.SetDefault("validation.check_identity", d.Validation.CheckIdentity)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", "")
}

func validate(cfg *Config) error {
	switch cfg.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres backend requires postgres.dsn")
		}
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	switch cfg.Session.Store {
	case SessionStoreRedis:
	case SessionStorePostgres:
		if cfg.Backend != BackendPostgres {
			return fmt.Errorf("postgres session store requires the postgres backend")
		}
	default:
		return fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q", cfg.Logging.Format)
	}
	return nil
}

// Engine converts the file settings into a deskauth.Config, reading key
// files as needed. The result still goes through deskauth validation at
// Build.
func (c *Config) Engine() (deskauth.Config, error) {
	out := deskauth.DefaultConfig()

	out.Session.TTL = c.Session.TTL
	out.Session.EnforceSingleSession = c.Session.EnforceSingleSession
	out.Session.MintUnregistered = c.Session.MintUnregistered
	out.Session.RedisPrefix = c.Session.RedisPrefix
	out.Store.Timeout = c.Store.Timeout
	out.Validation.RefreshInterval = c.Validation.RefreshInterval
	out.Validation.CheckIdentity = c.Validation.CheckIdentity
	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Enabled

	if !c.Bearer.Enabled {
		return out, nil
	}
	out.Bearer.Enabled = true
	out.Bearer.SigningMethod = c.Bearer.SigningMethod
	out.Bearer.Issuer = c.Bearer.Issuer
	out.Bearer.Audience = c.Bearer.Audience

	switch c.Bearer.SigningMethod {
	case "hs256":
		out.Bearer.PrivateKey = []byte(c.Bearer.Secret)
	default:
		priv, err := os.ReadFile(c.Bearer.PrivateKeyFile)
		if err != nil {
			return out, fmt.Errorf("reading bearer private key: %w", err)
		}
		pub, err := os.ReadFile(c.Bearer.PublicKeyFile)
		if err != nil {
			return out, fmt.Errorf("reading bearer public key: %w", err)
		}
		out.Bearer.PrivateKey = priv
		out.Bearer.PublicKey = pub
	}
	return out, nil
}

package deskauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/deskauth/password"
)

// Config holds every engine setting. Obtain one from DefaultConfig, adjust
// it, and pass it to Builder.WithConfig; the builder keeps its own copy.
type Config struct {
	Session    SessionConfig
	Store      StoreConfig
	Password   PasswordConfig
	Bearer     BearerConfig
	Validation ValidationConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls issuance.
type SessionConfig struct {
	TTL time.Duration
	// EnforceSingleSession removes every other session of an identity when
	// a new one is issued, in the same store operation.
	EnforceSingleSession bool
	// MintUnregistered lets a verified bearer credential that predates
	// server-side sessions obtain one silently.
	MintUnregistered bool
	RedisPrefix      string
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds every store call.
type StoreConfig struct {
	Timeout time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets the Argon2id parameters for new hashes.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	// EqualizeTiming spends one verification on misses so a missing email
	// costs about as much as a wrong secret.
	EqualizeTiming bool
}

// Params converts the section into password.Params.
func (p PasswordConfig) Params() password.Params {
	return password.Params{
		Memory:      p.Memory,
		Time:        p.Time,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
	}
}

/*
====================================
BEARER CONFIG
====================================
*/

// BearerConfig configures the signed credential returned by Login.
type BearerConfig struct {
	Enabled       bool
	SigningMethod string // "ed25519" or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
VALIDATION CONFIG
====================================
*/

// ValidationConfig controls when a bearer credential is re-confirmed
// against the session store.
type ValidationConfig struct {
	// RefreshInterval is the longest a credential is trusted without a
	// store check on non-strict routes.
	RefreshInterval time.Duration
	// CheckIdentity reloads the session owner during validation and rejects
	// sessions of deactivated or deleted identities.
	CheckIdentity bool
}

/*
====================================
AUDIT / METRICS
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:                  24 * time.Hour,
			EnforceSingleSession: true,
			MintUnregistered:     true,
			RedisPrefix:          "da",
		},
		Store: StoreConfig{
			Timeout: 3 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			EqualizeTiming: true,
		},
		Bearer: BearerConfig{
			Enabled:       false,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Validation: ValidationConfig{
			RefreshInterval: 5 * time.Minute,
			CheckIdentity:   true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Bearer.PrivateKey = cloneBytes(cfg.Bearer.PrivateKey)
	out.Bearer.PublicKey = cloneBytes(cfg.Bearer.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.TTL < time.Second {
		return errors.New("Session TTL must be at least 1s")
	}
	if c.Store.Timeout <= 0 {
		return errors.New("Store Timeout must be > 0")
	}

	if err := c.Password.Params().Validate(); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	if c.Bearer.Enabled {
		switch c.Bearer.SigningMethod {
		case "ed25519":
			if len(c.Bearer.PrivateKey) == 0 || len(c.Bearer.PublicKey) == 0 {
				return errors.New("ed25519 bearer requires PrivateKey and PublicKey")
			}
		case "hs256":
			if len(c.Bearer.PrivateKey) < 32 {
				return errors.New("hs256 bearer requires a PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported bearer signing method")
		}
		if c.Validation.RefreshInterval <= 0 {
			return errors.New("Validation RefreshInterval must be > 0 when bearer credentials are enabled")
		}
		if c.Validation.RefreshInterval > c.Session.TTL {
			return errors.New("Validation RefreshInterval must not exceed Session TTL")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}

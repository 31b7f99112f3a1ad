package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Config configures a Manager. VerifyKeys, when set, maps key ids to public
// keys (or shared secrets for hs256) accepted during rotation.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Claims is the bearer credential payload. Subject holds the identity id.
type Claims struct {
	Namespace    string   `json:"ns"`
	Role         string   `json:"role,omitempty"`
	TenantID     string   `json:"tid,omitempty"`
	Session      string   `json:"sid,omitempty"`
	Capabilities []string `json:"caps,omitempty"`
	ValidatedAt  int64    `json:"vat,omitempty"`
	jwt.RegisteredClaims
}

// Registered reports whether the credential is bound to a server-side session.
func (c *Claims) Registered() bool {
	return c.Session != ""
}

// LastValidated returns the vat claim, falling back to iat.
func (c *Claims) LastValidated() time.Time {
	if c.ValidatedAt > 0 {
		return time.Unix(c.ValidatedAt, 0)
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// Grant is the input to Sign.
type Grant struct {
	IdentityID   string
	Namespace    string
	Role         string
	TenantID     string
	Session      string
	Capabilities []string
	ValidatedAt  time.Time
	// ExpiresAt caps the credential lifetime; the session expiry is passed
	// here so the credential never outlives its session.
	ExpiresAt time.Time
}

// Manager signs and parses bearer credentials.
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("bearer TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("bearer leeway must be within [0, 2m]")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := edPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires a public key or verify key set")
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := edPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key set contains an empty kid")
		}
		if _, err := verifyKey(cfg.SigningMethod, key); err != nil {
			return nil, fmt.Errorf("verify key %q: %w", kid, err)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{cfg: cfg, now: time.Now}, nil
}

// WithClock returns a copy of m using now as its time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	out := *m
	out.now = now
	return &out
}

// Sign issues a credential for g. The expiry is the earlier of now+TTL and
// g.ExpiresAt.
func (m *Manager) Sign(g Grant) (string, error) {
	now := m.now()
	exp := now.Add(m.cfg.TTL)
	if !g.ExpiresAt.IsZero() && g.ExpiresAt.Before(exp) {
		exp = g.ExpiresAt
	}
	vat := g.ValidatedAt
	if vat.IsZero() {
		vat = now
	}

	claims := Claims{
		Namespace:    g.Namespace,
		Role:         g.Role,
		TenantID:     g.TenantID,
		Session:      g.Session,
		Capabilities: g.Capabilities,
		ValidatedAt:  vat.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   g.IdentityID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	if m.cfg.KeyID != "" {
		tok.Header["kid"] = m.cfg.KeyID
	}

	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Parse verifies signature, algorithm, expiry, issuer and audience.
func (m *Manager) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience))
	}

	var claims Claims
	tok, err := jwt.NewParser(opts...).ParseWithClaims(raw, &claims, m.keyFunc)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" || claims.Namespace == "" {
		return nil, errors.New("credential missing subject or namespace")
	}
	return &claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)

	if len(m.cfg.VerifyKeys) > 0 {
		key, ok := m.cfg.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return verifyKey(m.cfg.SigningMethod, key)
	}
	if m.cfg.KeyID != "" && kid != m.cfg.KeyID {
		return nil, errors.New("unknown kid")
	}

	if m.cfg.SigningMethod == MethodHS256 {
		return m.cfg.PrivateKey, nil
	}
	return edPublicKey(m.cfg.PublicKey)
}

func (m *Manager) method() jwt.SigningMethod {
	if m.cfg.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey() (any, error) {
	if m.cfg.SigningMethod == MethodHS256 {
		return m.cfg.PrivateKey, nil
	}
	if len(m.cfg.PrivateKey) == 0 {
		return nil, errors.New("manager has no signing key")
	}
	return edPrivateKey(m.cfg.PrivateKey)
}

func verifyKey(method SigningMethod, key []byte) (any, error) {
	if method == MethodHS256 {
		return key, nil
	}
	return edPublicKey(key)
}

func edPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	k, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return k, nil
}

func edPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	k, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return k, nil
}

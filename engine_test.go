package deskauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/password"
	"github.com/MrEthical07/deskauth/permission"
	"github.com/MrEthical07/deskauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "correct horse battery"

var errBackend = errors.New("backend unavailable")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyIdentities fails selected calls of the wrapped memory store.
type flakyIdentities struct {
	*memory.IdentityStore
	emailErr map[deskauth.Namespace]error
	byIDErr  error
	assocErr error
}

func (f *flakyIdentities) FindByEmail(ctx context.Context, ns deskauth.Namespace, email string) (*deskauth.Identity, error) {
	if err := f.emailErr[ns]; err != nil {
		return nil, err
	}
	return f.IdentityStore.FindByEmail(ctx, ns, email)
}

func (f *flakyIdentities) FindByID(ctx context.Context, ns deskauth.Namespace, id string) (*deskauth.Identity, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	return f.IdentityStore.FindByID(ctx, ns, id)
}

func (f *flakyIdentities) ListTenantAssociations(ctx context.Context, identityID string) ([]deskauth.TenantAssociation, error) {
	if f.assocErr != nil {
		return nil, f.assocErr
	}
	return f.IdentityStore.ListTenantAssociations(ctx, identityID)
}

type testEnv struct {
	engine     *deskauth.Engine
	identities *flakyIdentities
	roles      *memory.RoleStore
	hasher     *password.Multi
	mr         *miniredis.Miniredis
	rdb        *redis.Client
	clock      *testClock
}

func testConfig() deskauth.Config {
	cfg := deskauth.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Bearer.Enabled = true
	cfg.Bearer.SigningMethod = "hs256"
	cfg.Bearer.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Bearer.Issuer = "deskauth-test"
	return cfg
}

type envOption func(*envBuild)

type envBuild struct {
	cfg      deskauth.Config
	sessions func(*redis.Client) deskauth.SessionStore
	sink     deskauth.AuditSink
}

func withConfig(mut func(*deskauth.Config)) envOption {
	return func(b *envBuild) { mut(&b.cfg) }
}

func withSessions(wrap func(*redis.Client) deskauth.SessionStore) envOption {
	return func(b *envBuild) { b.sessions = wrap }
}

func withAuditSink(sink deskauth.AuditSink) envOption {
	return func(b *envBuild) {
		b.cfg.Audit.Enabled = true
		b.cfg.Audit.DropIfFull = false
		b.sink = sink
	}
}

func newTestEnv(t testing.TB, opts ...envOption) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	eb := &envBuild{cfg: testConfig()}
	for _, o := range opts {
		o(eb)
	}

	hasher, err := password.NewMulti(eb.cfg.Password.Params())
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	env := &testEnv{
		identities: &flakyIdentities{
			IdentityStore: memory.NewIdentityStore(),
			emailErr:      map[deskauth.Namespace]error{},
		},
		roles:  memory.NewRoleStore(),
		hasher: hasher,
		mr:     mr,
		rdb:    rdb,
		clock:  &testClock{now: time.Unix(1_760_000_000, 0)},
	}

	b := deskauth.New().
		WithConfig(eb.cfg).
		WithIdentityStore(env.identities).
		WithRoleStore(env.roles).
		WithClock(env.clock.Now)
	if eb.sink != nil {
		b = b.WithAuditSink(eb.sink)
	}
	if eb.sessions != nil {
		b = b.WithSessionStore(eb.sessions(rdb))
	} else {
		b = b.WithRedis(rdb)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) addIdentity(t testing.TB, ident deskauth.Identity) deskauth.Identity {
	t.Helper()
	if ident.SecretHash == "" {
		h, err := env.hasher.Hash(testSecret)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		ident.SecretHash = h
	}
	stored, err := env.identities.Put(ident)
	if err != nil {
		t.Fatalf("put identity: %v", err)
	}
	return stored
}

func TestBuildRequiresIdentityStore(t *testing.T) {
	_, err := deskauth.New().WithSessionStore(nil).Build()
	if err == nil {
		t.Fatal("expected build error without identity store")
	}
}

func TestBuildRequiresSessionBackend(t *testing.T) {
	_, err := deskauth.New().WithIdentityStore(memory.NewIdentityStore()).Build()
	if err == nil {
		t.Fatal("expected build error without session store")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	b := deskauth.New().WithConfig(cfg).WithIdentityStore(memory.NewIdentityStore()).WithRedis(rdb)
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build must fail")
	}
}

func TestAuthenticateEachNamespace(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.identities.PutTenant(deskauth.Tenant{ID: "T1", Name: "Acme", Slug: "acme"})

	cases := []struct {
		name  string
		ident deskauth.Identity
		role  string
	}{
		{"matrix", deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "agent@example.com", Role: "agent", Active: true}, "agent"},
		{"context", deskauth.Identity{Namespace: deskauth.NamespaceContext, Email: "cust@example.com", Role: "user", Active: true, TenantID: tenant.ID}, "user"},
		{"legacy", deskauth.Identity{Namespace: deskauth.NamespaceLegacy, Email: "root@example.com", Role: "Admin", Active: true}, "admin"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stored := env.addIdentity(t, tc.ident)

			auth, err := env.engine.Authenticate(context.Background(), tc.ident.Email, testSecret, "")
			if err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			if auth.Namespace != tc.ident.Namespace || auth.IdentityID != stored.ID {
				t.Fatalf("resolved %s/%s, want %s/%s", auth.Namespace, auth.IdentityID, tc.ident.Namespace, stored.ID)
			}
			if auth.Role != tc.role {
				t.Fatalf("role = %q, want %q", auth.Role, tc.role)
			}
			if len(auth.Capabilities.Granted()) == 0 {
				t.Fatal("expected non-empty capabilities")
			}
			if tc.ident.Namespace == deskauth.NamespaceContext {
				if auth.Tenant == nil || auth.Tenant.ID != "T1" || auth.Tenant.Name != "Acme" {
					t.Fatalf("expected bound tenant T1, got %+v", auth.Tenant)
				}
			} else if auth.Tenant != nil {
				t.Fatalf("unexpected tenant on %s identity", tc.ident.Namespace)
			}
		})
	}
}

func TestAuthenticateWrongSecretIsSecretMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "a@example.com", Role: "agent", Active: true})

	_, err := env.engine.Authenticate(context.Background(), "a@example.com", "wrong secret!", "")
	if !errors.Is(err, deskauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if reason, _ := deskauth.FailureReasonOf(err); reason != deskauth.FailureSecretMismatch {
		t.Fatalf("reason = %q", reason)
	}
	if got := env.engine.MetricsSnapshot().Counters[deskauth.MetricLoginSecretMismatch]; got != 1 {
		t.Fatalf("secret mismatch counter = %d", got)
	}
}

func TestAuthenticateFailuresLookIdentical(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceContext, Email: "gone@example.com", Role: "user", Active: false})
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceLegacy, Email: "here@example.com", Role: "user", Active: true})

	_, inactive := env.engine.Authenticate(context.Background(), "gone@example.com", testSecret, "")
	_, missing := env.engine.Authenticate(context.Background(), "nobody@example.com", testSecret, "")
	_, mismatch := env.engine.Authenticate(context.Background(), "here@example.com", "not the secret", "")

	if r, _ := deskauth.FailureReasonOf(inactive); r != deskauth.FailureInactive {
		t.Fatalf("inactive reason = %q", r)
	}
	if r, _ := deskauth.FailureReasonOf(missing); r != deskauth.FailureNotFound {
		t.Fatalf("missing reason = %q", r)
	}
	for _, err := range []error{inactive, missing, mismatch} {
		if !errors.Is(err, deskauth.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
		if err.Error() != inactive.Error() || deskauth.PublicMessage(err) != "invalid credentials" {
			t.Fatalf("failure text differs: %q", err.Error())
		}
	}
}

func TestAuthenticateSearchOrderAndHint(t *testing.T) {
	env := newTestEnv(t)
	m := env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "dup@example.com", Role: "agent", Active: true})
	l := env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceLegacy, Email: "dup@example.com", Role: "admin", Active: true})

	auth, err := env.engine.Authenticate(context.Background(), "  DUP@example.com ", testSecret, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if auth.Namespace != deskauth.NamespaceMatrix || auth.IdentityID != m.ID {
		t.Fatalf("expected matrix identity first, got %s", auth.Namespace)
	}

	auth, err = env.engine.Authenticate(context.Background(), "dup@example.com", testSecret, deskauth.NamespaceLegacy)
	if err != nil {
		t.Fatalf("authenticate with hint: %v", err)
	}
	if auth.Namespace != deskauth.NamespaceLegacy || auth.IdentityID != l.ID {
		t.Fatalf("hint ignored, got %s", auth.Namespace)
	}

	_, err = env.engine.Authenticate(context.Background(), "dup@example.com", testSecret, "ldap")
	if !errors.Is(err, deskauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown hint, got %v", err)
	}
	var failure *deskauth.AuthFailure
	if !errors.As(err, &failure) || failure.Reason != deskauth.FailureNotFound {
		t.Fatalf("expected not_found failure, got %v", err)
	}
	if msg := deskauth.PublicMessage(err); msg != deskauth.PublicMessage(deskauth.ErrInvalidCredentials) {
		t.Fatalf("unknown hint leaked %q", msg)
	}
	if got := env.engine.MetricsSnapshot().Counters[deskauth.MetricLoginFailure]; got != 1 {
		t.Fatalf("expected one login failure counted, got %d", got)
	}
}

func TestAuthenticateInactiveRowDoesNotStopScan(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "x@example.com", Role: "agent", Active: false})
	c := env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceContext, Email: "x@example.com", Role: "user", Active: true})

	auth, err := env.engine.Authenticate(context.Background(), "x@example.com", testSecret, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if auth.Namespace != deskauth.NamespaceContext || auth.IdentityID != c.ID {
		t.Fatalf("expected context identity, got %s", auth.Namespace)
	}
}

func TestAuthenticateLookupErrorTriesNextNamespace(t *testing.T) {
	env := newTestEnv(t)
	env.identities.emailErr[deskauth.NamespaceMatrix] = errBackend
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceLegacy, Email: "y@example.com", Role: "admin", Active: true})

	auth, err := env.engine.Authenticate(context.Background(), "y@example.com", testSecret, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if auth.Namespace != deskauth.NamespaceLegacy {
		t.Fatalf("namespace = %s", auth.Namespace)
	}
	if got := env.engine.MetricsSnapshot().Counters[deskauth.MetricNamespaceLookupError]; got != 1 {
		t.Fatalf("lookup error counter = %d", got)
	}
}

func TestAuthenticateTouchesLastAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	stored := env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "t@example.com", Role: "agent", Active: true})

	if _, err := env.engine.Authenticate(context.Background(), "t@example.com", testSecret, ""); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	got, _ := env.identities.FindByID(context.Background(), deskauth.NamespaceMatrix, stored.ID)
	if !got.LastAuthenticatedAt.Equal(env.clock.Now()) {
		t.Fatalf("last authenticated = %v", got.LastAuthenticatedAt)
	}

	_, _ = env.engine.Authenticate(context.Background(), "t@example.com", "wrong secret!", "")
	env.clock.Advance(time.Minute)
	got, _ = env.identities.FindByID(context.Background(), deskauth.NamespaceMatrix, stored.ID)
	if got.LastAuthenticatedAt.Equal(env.clock.Now()) {
		t.Fatal("failed sign-in must not touch last authenticated")
	}
}

func TestAdminWithEmptyStoredMapGetsFullDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.roles.Set("admin", permission.Set{})
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceLegacy, Email: "root@example.com", Role: "admin", Active: true})

	auth, err := env.engine.Authenticate(context.Background(), "root@example.com", testSecret, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	for _, c := range permission.Catalog() {
		if !auth.Can(c) {
			t.Fatalf("admin missing default capability %q", c)
		}
	}
}

func TestStoredMapReplacesDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.roles.Set("agent", permission.Set{permission.TicketsView: true})
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "ag@example.com", Role: "agent", Active: true})

	auth, err := env.engine.Authenticate(context.Background(), "ag@example.com", testSecret, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !auth.Can(permission.TicketsView) {
		t.Fatal("stored capability missing")
	}
	if auth.Can(permission.TicketsAssign) {
		t.Fatal("stored map must replace defaults, not merge with them")
	}
}

func TestUnknownRoleGetsUserDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceContext, Email: "c@example.com", Role: "contractor", Active: true})

	auth, err := env.engine.Authenticate(context.Background(), "c@example.com", testSecret, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	want := permission.Defaults(permission.RoleUser)
	for k, v := range want {
		if auth.Capabilities[k] != v {
			t.Fatalf("capability %q = %v, want %v", k, auth.Capabilities[k], v)
		}
	}
}

func TestUpgradeOnLoginRehashesBcrypt(t *testing.T) {
	env := newTestEnv(t)
	bc, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	legacyHash, err := bc.Hash(testSecret)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	stored := env.addIdentity(t, deskauth.Identity{
		Namespace:  deskauth.NamespaceLegacy,
		Email:      "old@example.com",
		Role:       "admin",
		Active:     true,
		SecretHash: legacyHash,
	})

	if _, err := env.engine.Authenticate(context.Background(), "old@example.com", testSecret, ""); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	got, _ := env.identities.FindByID(context.Background(), deskauth.NamespaceLegacy, stored.ID)
	if got.SecretHash == legacyHash {
		t.Fatal("expected bcrypt hash to be upgraded")
	}
	if ok, err := env.hasher.Verify(testSecret, got.SecretHash); err != nil || !ok {
		t.Fatalf("upgraded hash does not verify: %v", err)
	}
}

// verifyOnly is a Hasher that cannot produce hashes.
type verifyOnly struct {
	mu   sync.Mutex
	seen []string
}

func (v *verifyOnly) Verify(_, hash string) (bool, error) {
	v.mu.Lock()
	v.seen = append(v.seen, hash)
	v.mu.Unlock()
	return false, nil
}

func TestBuildVerifyOnlyHasherNeedsTimingHash(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.Password.EqualizeTiming = true
	_, err := deskauth.New().
		WithConfig(cfg).
		WithIdentityStore(memory.NewIdentityStore()).
		WithRedis(rdb).
		WithHasher(&verifyOnly{}).
		Build()
	if err == nil {
		t.Fatal("build must refuse timing equalization without a dummy hash")
	}

	hasher := &verifyOnly{}
	engine, err := deskauth.New().
		WithConfig(cfg).
		WithIdentityStore(memory.NewIdentityStore()).
		WithRedis(rdb).
		WithHasher(hasher).
		WithTimingHash("$dummy$hash").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Authenticate(context.Background(), "nobody@example.com", "pw", ""); !errors.Is(err, deskauth.ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}
	hasher.mu.Lock()
	defer hasher.mu.Unlock()
	if len(hasher.seen) != 1 || hasher.seen[0] != "$dummy$hash" {
		t.Fatalf("a miss must verify the dummy hash once, saw %v", hasher.seen)
	}
}

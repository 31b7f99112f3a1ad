package deskauth_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/internal"
	"github.com/MrEthical07/deskauth/session"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// brokenReads fails Find while writes go to Redis.
type brokenReads struct {
	*session.Store
}

func (brokenReads) Find(context.Context, string) (*session.Session, error) {
	return nil, session.ErrRedisUnavailable
}

// stallingWrites blocks writes until the caller's deadline passes.
type stallingWrites struct {
	*session.Store
}

func (stallingWrites) Insert(ctx context.Context, _ *session.Session, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallingWrites) ReplaceForIdentity(ctx context.Context, _ *session.Session, _ time.Duration) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func login(t *testing.T, env *testEnv, email string) *deskauth.LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), email, testSecret, "")
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	if res.Session.Token == "" {
		t.Fatal("login returned no session token")
	}
	return res
}

func TestSecondLoginInvalidatesFirst(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceContext, Email: "user@example.com", Role: "user", Active: true})

	first := login(t, env, "user@example.com")
	second := login(t, env, "user@example.com")

	if second.Session.Superseded != 1 {
		t.Fatalf("superseded = %d, want 1", second.Session.Superseded)
	}
	if res := env.engine.ValidateSession(context.Background(), first.Session.Token); res.Outcome != deskauth.OutcomeInvalid {
		t.Fatalf("first token outcome = %s, want invalid", res.Outcome)
	}
	if res := env.engine.ValidateSession(context.Background(), second.Session.Token); !res.Valid() {
		t.Fatalf("second token outcome = %s, want valid", res.Outcome)
	}
}

func TestSingleSessionOffKeepsBothValid(t *testing.T) {
	env := newTestEnv(t, withConfig(func(c *deskauth.Config) {
		c.Session.EnforceSingleSession = false
	}))
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceContext, Email: "user@example.com", Role: "user", Active: true})

	first := login(t, env, "user@example.com")
	second := login(t, env, "user@example.com")

	for _, tok := range []string{first.Session.Token, second.Session.Token} {
		if res := env.engine.ValidateSession(context.Background(), tok); !res.Valid() {
			t.Fatalf("outcome = %s, want valid", res.Outcome)
		}
	}
}

func TestConcurrentLoginsLeaveExactlyOneSession(t *testing.T) {
	env := newTestEnv(t)
	ident := env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "race@example.com", Role: "agent", Active: true})

	tokens := make([]string, 8)
	var g errgroup.Group
	for i := range tokens {
		g.Go(func() error {
			res, err := env.engine.Login(context.Background(), "race@example.com", testSecret, "")
			if err != nil {
				return err
			}
			tokens[i] = res.Session.Token
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("login: %v", err)
	}

	valid := 0
	for _, tok := range tokens {
		if env.engine.ValidateSession(context.Background(), tok).Valid() {
			valid++
		}
	}
	if valid != 1 {
		t.Fatalf("valid sessions = %d, want 1", valid)
	}

	store := session.NewStore(env.rdb, "da")
	digests, err := store.ActiveDigests(context.Background(), string(ident.Namespace), ident.ID)
	if err != nil {
		t.Fatalf("active digests: %v", err)
	}
	if len(digests) != 1 {
		t.Fatalf("indexed sessions = %d, want 1", len(digests))
	}
}

func TestIssueSessionTokensAreUnique(t *testing.T) {
	env := newTestEnv(t, withConfig(func(c *deskauth.Config) {
		c.Session.EnforceSingleSession = false
	}))

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		ident := &deskauth.Identity{Namespace: deskauth.NamespaceMatrix, ID: "id-" + strconv.Itoa(i), Active: true}
		issued, err := env.engine.IssueSession(context.Background(), ident)
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		if _, dup := seen[issued.Token]; dup {
			t.Fatalf("duplicate token at %d", i)
		}
		seen[issued.Token] = struct{}{}
	}
}

func TestIssueSessionDefaultTTL(t *testing.T) {
	env := newTestEnv(t)
	issued, err := env.engine.IssueSession(context.Background(), &deskauth.Identity{Namespace: deskauth.NamespaceLegacy, ID: "7", Active: true})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got := issued.ExpiresAt.Sub(issued.IssuedAt); got != 24*time.Hour {
		t.Fatalf("ttl = %v, want 24h", got)
	}
}

func TestExpiredRowStillPresentIsInvalid(t *testing.T) {
	env := newTestEnv(t)
	ident := env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceLegacy, Email: "exp@example.com", Role: "admin", Active: true})
	res := login(t, env, "exp@example.com")

	// Redis still holds the row: miniredis only expires keys on FastForward.
	env.clock.Advance(24*time.Hour + time.Second)

	store := session.NewStore(env.rdb, "da")
	digests, _ := store.ActiveDigests(context.Background(), string(ident.Namespace), ident.ID)
	if len(digests) != 1 {
		t.Fatalf("expected the row to still be present, got %d", len(digests))
	}

	out := env.engine.ValidateSession(context.Background(), res.Session.Token)
	if out.Outcome != deskauth.OutcomeInvalid || out.Reason != "expired" {
		t.Fatalf("outcome = %s/%s, want invalid/expired", out.Outcome, out.Reason)
	}
	if !errors.Is(out.Err, deskauth.ErrSessionInvalid) {
		t.Fatalf("err = %v", out.Err)
	}
}

func TestValidateStoreErrorIsUnverified(t *testing.T) {
	env := newTestEnv(t, withSessions(func(rdb *redis.Client) deskauth.SessionStore {
		return brokenReads{Store: session.NewStore(rdb, "da")}
	}))
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "u@example.com", Role: "agent", Active: true})
	res := login(t, env, "u@example.com")

	out := env.engine.ValidateSession(context.Background(), res.Session.Token)
	if out.Outcome != deskauth.OutcomeUnverified {
		t.Fatalf("outcome = %s, want unverified", out.Outcome)
	}
	if out.Valid() {
		t.Fatal("unverified must never be valid")
	}
	if !errors.Is(out.Err, deskauth.ErrTransientStore) {
		t.Fatalf("err = %v", out.Err)
	}
}

func TestIssueTimeoutReturnsNoToken(t *testing.T) {
	for _, single := range []bool{true, false} {
		env := newTestEnv(t,
			withConfig(func(c *deskauth.Config) {
				c.Session.EnforceSingleSession = single
				c.Store.Timeout = 20 * time.Millisecond
			}),
			withSessions(func(rdb *redis.Client) deskauth.SessionStore {
				return stallingWrites{Store: session.NewStore(rdb, "da")}
			}),
		)
		env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "slow@example.com", Role: "agent", Active: true})

		res, err := env.engine.Login(context.Background(), "slow@example.com", testSecret, "")
		if !errors.Is(err, deskauth.ErrSessionPersistence) {
			t.Fatalf("single=%v: expected ErrSessionPersistence, got %v", single, err)
		}
		if res != nil {
			t.Fatalf("single=%v: login returned a result without a persisted session", single)
		}
	}
}

func TestValidateRejectsDeactivatedIdentity(t *testing.T) {
	env := newTestEnv(t)
	ident := env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "d@example.com", Role: "agent", Active: true})
	res := login(t, env, "d@example.com")

	if err := env.identities.SetActive(ident.Namespace, ident.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	out := env.engine.ValidateSession(context.Background(), res.Session.Token)
	if out.Outcome != deskauth.OutcomeInvalid || out.Reason != "inactive" {
		t.Fatalf("outcome = %s/%s", out.Outcome, out.Reason)
	}

	// The row was removed, so reactivation does not revive it.
	_ = env.identities.SetActive(ident.Namespace, ident.ID, true)
	if out := env.engine.ValidateSession(context.Background(), res.Session.Token); out.Reason != "not_found" {
		t.Fatalf("reason after reactivation = %s", out.Reason)
	}
}

func TestValidateIdentityReloadErrorIsUnverified(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceContext, Email: "c@example.com", Role: "user", Active: true})
	res := login(t, env, "c@example.com")

	env.identities.byIDErr = errBackend
	if out := env.engine.ValidateSession(context.Background(), res.Session.Token); out.Outcome != deskauth.OutcomeUnverified {
		t.Fatalf("outcome = %s, want unverified", out.Outcome)
	}
}

func TestValidateMalformedToken(t *testing.T) {
	env := newTestEnv(t)
	out := env.engine.ValidateSession(context.Background(), "not-a-token")
	if out.Outcome != deskauth.OutcomeInvalid || out.Reason != "malformed" {
		t.Fatalf("outcome = %s/%s", out.Outcome, out.Reason)
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "l@example.com", Role: "agent", Active: true})
	res := login(t, env, "l@example.com")

	if err := env.engine.Logout(context.Background(), res.Session.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if out := env.engine.ValidateSession(context.Background(), res.Session.Token); out.Outcome != deskauth.OutcomeInvalid {
		t.Fatalf("outcome after logout = %s", out.Outcome)
	}
	if err := env.engine.Logout(context.Background(), res.Session.Token); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestInvalidateStaleSessionsKeepsOne(t *testing.T) {
	env := newTestEnv(t, withConfig(func(c *deskauth.Config) {
		c.Session.EnforceSingleSession = false
	}))
	ident := env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "s@example.com", Role: "agent", Active: true})

	a := login(t, env, "s@example.com")
	b := login(t, env, "s@example.com")
	c := login(t, env, "s@example.com")

	n, err := env.engine.InvalidateStaleSessions(context.Background(), ident.Namespace, ident.ID, b.Session.Token)
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}
	for tok, want := range map[string]deskauth.ValidationOutcome{
		a.Session.Token: deskauth.OutcomeInvalid,
		b.Session.Token: deskauth.OutcomeValid,
		c.Session.Token: deskauth.OutcomeInvalid,
	} {
		if got := env.engine.ValidateSession(context.Background(), tok).Outcome; got != want {
			t.Fatalf("outcome = %s, want %s", got, want)
		}
	}

	n, err = env.engine.LogoutAll(context.Background(), ident.Namespace, ident.ID)
	if err != nil || n != 1 {
		t.Fatalf("logout all = %d, %v", n, err)
	}
	if env.engine.ValidateSession(context.Background(), b.Session.Token).Valid() {
		t.Fatal("kept session must be gone after LogoutAll")
	}
}

func TestSessionsAreScopedByNamespace(t *testing.T) {
	env := newTestEnv(t)
	m := &deskauth.Identity{Namespace: deskauth.NamespaceMatrix, ID: "1", Active: true}
	c := &deskauth.Identity{Namespace: deskauth.NamespaceContext, ID: "1", Active: true}

	mi, err := env.engine.IssueSession(context.Background(), m)
	if err != nil {
		t.Fatalf("issue matrix: %v", err)
	}
	ci, err := env.engine.IssueSession(context.Background(), c)
	if err != nil {
		t.Fatalf("issue context: %v", err)
	}
	if ci.Superseded != 0 {
		t.Fatal("same id in another namespace must not be superseded")
	}
	if !env.engine.ValidateSession(context.Background(), mi.Token).Valid() {
		t.Fatal("matrix session must survive a context sign-in with the same id")
	}
}

func TestValidateReturnsOwnerAuthContext(t *testing.T) {
	for _, check := range []bool{true, false} {
		t.Run("check_identity="+strconv.FormatBool(check), func(t *testing.T) {
			env := newTestEnv(t, withConfig(func(c *deskauth.Config) {
				c.Validation.CheckIdentity = check
			}))
			tenant := env.identities.PutTenant(deskauth.Tenant{ID: "T1", Name: "Acme", Slug: "acme"})
			env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceContext, Email: "cust@example.com", Role: "user", Active: true, TenantID: tenant.ID})
			res := login(t, env, "cust@example.com")

			out := env.engine.ValidateSession(context.Background(), res.Session.Token)
			if !out.Valid() {
				t.Fatalf("outcome = %s", out.Outcome)
			}
			if out.Auth == nil {
				t.Fatal("valid result carries no auth context")
			}
			if out.Auth.Role != "user" || out.Auth.TenantID != "T1" || out.Auth.Namespace != deskauth.NamespaceContext {
				t.Fatalf("auth = %+v", out.Auth)
			}
			if out.Auth.Tenant == nil || out.Auth.Tenant.Name != "Acme" {
				t.Fatalf("tenant = %+v", out.Auth.Tenant)
			}
			if len(out.Auth.Capabilities) == 0 || len(out.Auth.Capabilities) != len(res.Auth.Capabilities) {
				t.Fatalf("capabilities = %v, login had %v", out.Auth.Capabilities, res.Auth.Capabilities)
			}
		})
	}
}

func TestInvalidResultCarriesNoAuthContext(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "x@example.com", Role: "agent", Active: true})
	res := login(t, env, "x@example.com")
	if err := env.engine.Logout(context.Background(), res.Session.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if out := env.engine.ValidateSession(context.Background(), res.Session.Token); out.Auth != nil {
		t.Fatalf("invalid result exposed auth %+v", out.Auth)
	}
}

func TestCorruptSessionRowIsInvalidNotUnverified(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, deskauth.Identity{Namespace: deskauth.NamespaceMatrix, Email: "g@example.com", Role: "agent", Active: true})
	res := login(t, env, "g@example.com")

	key := "da:s:" + internal.TokenDigest(res.Session.Token)
	if err := env.mr.Set(key, "\x01garbage"); err != nil {
		t.Fatalf("overwrite row: %v", err)
	}

	out := env.engine.ValidateSession(context.Background(), res.Session.Token)
	if out.Outcome != deskauth.OutcomeInvalid || out.Reason != "corrupt" {
		t.Fatalf("outcome = %s/%s, want invalid/corrupt", out.Outcome, out.Reason)
	}
	if got := deskauth.PublicMessage(out.Err); got != deskauth.PublicMessage(deskauth.ErrSessionInvalid) {
		t.Fatalf("public message = %q", got)
	}
	if env.mr.Exists(key) {
		t.Fatal("corrupt row should be deleted")
	}

	for i := 0; i < 2; i++ {
		if out := env.engine.ValidateSession(context.Background(), res.Session.Token); out.Outcome != deskauth.OutcomeInvalid {
			t.Fatalf("repeat %d: outcome = %s", i, out.Outcome)
		}
	}
}

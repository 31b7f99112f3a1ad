package flows

import (
	"context"
	"errors"
	"testing"
)

type row struct {
	active bool
	secret string
	err    error
}

func resolveDeps(rows map[string]row, lookups *[]string) ResolveDeps {
	return ResolveDeps{
		Order: []string{"matrix", "context", "legacy"},
		Lookup: func(_ context.Context, ns, email string) (*Candidate, error) {
			if lookups != nil {
				*lookups = append(*lookups, ns)
			}
			r, ok := rows[ns]
			if !ok {
				return nil, nil
			}
			if r.err != nil {
				return nil, r.err
			}
			return &Candidate{Namespace: ns, Active: r.active, SecretHash: "hash:" + r.secret, Ref: ns + "/" + email}, nil
		},
		Verify: func(secret, hash string) (bool, error) {
			if hash == "corrupt" {
				return false, errors.New("bad hash")
			}
			return hash == "hash:"+secret, nil
		},
	}
}

func TestRunResolve(t *testing.T) {
	tests := []struct {
		name        string
		rows        map[string]row
		secret      string
		hint        string
		wantFailure ResolveFailure
		wantNS      string
		wantLookups []string
	}{
		{
			name:        "matrix match stops scan",
			rows:        map[string]row{"matrix": {active: true, secret: "s3cret"}, "legacy": {active: true, secret: "s3cret"}},
			secret:      "s3cret",
			wantNS:      "matrix",
			wantLookups: []string{"matrix"},
		},
		{
			name:        "falls through to legacy",
			rows:        map[string]row{"legacy": {active: true, secret: "s3cret"}},
			secret:      "s3cret",
			wantNS:      "legacy",
			wantLookups: []string{"matrix", "context", "legacy"},
		},
		{
			name:        "mismatch in first active namespace stops scan",
			rows:        map[string]row{"context": {active: true, secret: "other"}, "legacy": {active: true, secret: "s3cret"}},
			secret:      "s3cret",
			wantFailure: ResolveFailureSecretMismatch,
			wantNS:      "context",
			wantLookups: []string{"matrix", "context"},
		},
		{
			name:        "inactive row skipped",
			rows:        map[string]row{"matrix": {active: false, secret: "s3cret"}, "context": {active: true, secret: "s3cret"}},
			secret:      "s3cret",
			wantNS:      "context",
			wantLookups: []string{"matrix", "context"},
		},
		{
			name:        "only inactive rows",
			rows:        map[string]row{"context": {active: false, secret: "s3cret"}},
			secret:      "s3cret",
			wantFailure: ResolveFailureInactive,
			wantNS:      "context",
			wantLookups: []string{"matrix", "context", "legacy"},
		},
		{
			name:        "nothing anywhere",
			rows:        map[string]row{},
			secret:      "s3cret",
			wantFailure: ResolveFailureNotFound,
			wantLookups: []string{"matrix", "context", "legacy"},
		},
		{
			name:        "lookup error moves on",
			rows:        map[string]row{"matrix": {err: errors.New("timeout")}, "legacy": {active: true, secret: "s3cret"}},
			secret:      "s3cret",
			wantNS:      "legacy",
			wantLookups: []string{"matrix", "context", "legacy"},
		},
		{
			name:        "hint restricts search",
			rows:        map[string]row{"matrix": {active: true, secret: "s3cret"}, "legacy": {active: true, secret: "s3cret"}},
			secret:      "s3cret",
			hint:        "legacy",
			wantNS:      "legacy",
			wantLookups: []string{"legacy"},
		},
		{
			name:        "hint with no row",
			rows:        map[string]row{"matrix": {active: true, secret: "s3cret"}},
			secret:      "s3cret",
			hint:        "context",
			wantFailure: ResolveFailureNotFound,
			wantLookups: []string{"context"},
		},
		{
			name:        "empty secret never hits the store",
			rows:        map[string]row{"matrix": {active: true, secret: ""}},
			secret:      "",
			wantFailure: ResolveFailureNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var lookups []string
			res := RunResolve(context.Background(), " User@Example.com ", tc.secret, tc.hint, resolveDeps(tc.rows, &lookups))

			if res.Failure != tc.wantFailure {
				t.Fatalf("failure: expected %s, got %s", tc.wantFailure, res.Failure)
			}
			if res.Namespace != tc.wantNS {
				t.Fatalf("namespace: expected %q, got %q", tc.wantNS, res.Namespace)
			}
			if tc.wantFailure == ResolveFailureNone {
				if res.Match == nil || res.Match.Ref != tc.wantNS+"/user@example.com" {
					t.Fatalf("unexpected match %+v", res.Match)
				}
			} else if res.Match != nil {
				t.Fatalf("failure must not carry a match")
			}
			if len(lookups) != len(tc.wantLookups) {
				t.Fatalf("lookups: expected %v, got %v", tc.wantLookups, lookups)
			}
			for i := range lookups {
				if lookups[i] != tc.wantLookups[i] {
					t.Fatalf("lookups: expected %v, got %v", tc.wantLookups, lookups)
				}
			}
		})
	}
}

func TestRunResolveVerifyErrorIsMismatch(t *testing.T) {
	deps := resolveDeps(nil, nil)
	deps.Lookup = func(context.Context, string, string) (*Candidate, error) {
		return &Candidate{Namespace: "matrix", Active: true, SecretHash: "corrupt"}, nil
	}
	var reported error
	deps.OnVerifyError = func(_ string, err error) { reported = err }

	res := RunResolve(context.Background(), "a@b.c", "secret", "", deps)
	if res.Failure != ResolveFailureSecretMismatch {
		t.Fatalf("expected mismatch, got %s", res.Failure)
	}
	if reported == nil {
		t.Fatal("verify error not reported")
	}
}

func TestRunResolveDummyVerifyOnMiss(t *testing.T) {
	deps := resolveDeps(map[string]row{}, nil)
	deps.DummyHash = "dummy"
	calls := 0
	verify := deps.Verify
	deps.Verify = func(s, h string) (bool, error) {
		calls++
		return verify(s, h)
	}

	RunResolve(context.Background(), "a@b.c", "secret", "", deps)
	if calls != 1 {
		t.Fatalf("expected one dummy verification, got %d", calls)
	}
}

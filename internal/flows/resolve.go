package flows

import (
	"context"
	"strings"
)

// ResolveFailure classifies a failed credential resolution. The kinds are
// for logs and audit only; callers see one uniform error.
type ResolveFailure int

const (
	ResolveFailureNone ResolveFailure = iota
	ResolveFailureNotFound
	ResolveFailureSecretMismatch
	ResolveFailureInactive
)

func (f ResolveFailure) String() string {
	switch f {
	case ResolveFailureNone:
		return "none"
	case ResolveFailureNotFound:
		return "not_found"
	case ResolveFailureSecretMismatch:
		return "secret_mismatch"
	case ResolveFailureInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Candidate is the flow-local view of one identity row. Ref carries the
// host's full record back to the caller untouched.
type Candidate struct {
	Namespace  string
	Active     bool
	SecretHash string
	Ref        any
}

// ResolveDeps captures credential resolution dependencies.
type ResolveDeps struct {
	// Order is the namespace search order used without a hint.
	Order []string

	// Lookup returns (nil, nil) when the namespace has no row for email.
	Lookup func(ctx context.Context, namespace, email string) (*Candidate, error)
	Verify func(secret, hash string) (bool, error)

	// DummyHash, when set, is verified against once whenever no active row
	// is found so that the miss costs about as much as a mismatch.
	DummyHash string

	OnLookupError func(namespace string, err error)
	OnVerifyError func(namespace string, err error)
}

// ResolveResult is either a verified Match or a Failure.
type ResolveResult struct {
	Match   *Candidate
	Failure ResolveFailure
	// Namespace is the namespace that decided the outcome, if any.
	Namespace string
}

// NormalizeEmail trims and lower-cases an email for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RunResolve searches namespaces in order (or only hint when non-empty) and
// verifies the secret against the first active row. Lookup errors skip the
// namespace. Inactive rows are skipped too; if the scan ends without an
// active row the failure is Inactive when one was seen, NotFound otherwise.
func RunResolve(ctx context.Context, email, secret, hint string, deps ResolveDeps) ResolveResult {
	email = NormalizeEmail(email)
	if email == "" || secret == "" {
		return ResolveResult{Failure: ResolveFailureNotFound}
	}

	order := deps.Order
	if hint != "" {
		order = []string{hint}
	}

	inactiveIn := ""
	for _, ns := range order {
		cand, err := deps.Lookup(ctx, ns, email)
		if err != nil {
			if deps.OnLookupError != nil {
				deps.OnLookupError(ns, err)
			}
			continue
		}
		if cand == nil {
			continue
		}
		if !cand.Active {
			if inactiveIn == "" {
				inactiveIn = ns
			}
			continue
		}

		ok, err := deps.Verify(secret, cand.SecretHash)
		if err != nil && deps.OnVerifyError != nil {
			deps.OnVerifyError(ns, err)
		}
		if err != nil || !ok {
			return ResolveResult{Failure: ResolveFailureSecretMismatch, Namespace: ns}
		}
		return ResolveResult{Match: cand, Namespace: ns}
	}

	if deps.DummyHash != "" {
		_, _ = deps.Verify(secret, deps.DummyHash)
	}
	if inactiveIn != "" {
		return ResolveResult{Failure: ResolveFailureInactive, Namespace: inactiveIn}
	}
	return ResolveResult{Failure: ResolveFailureNotFound}
}

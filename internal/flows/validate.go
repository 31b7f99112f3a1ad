package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/deskauth/session"
)

// ValidateOutcome is the three-way validation result. Unverified is never a
// pass: it means the store could not answer.
type ValidateOutcome int

const (
	ValidateInvalid ValidateOutcome = iota
	ValidateValid
	ValidateUnverified
)

// ValidateReason explains an Invalid or Unverified outcome.
type ValidateReason string

const (
	ReasonNone         ValidateReason = ""
	ReasonMalformed    ValidateReason = "malformed"
	ReasonNotFound     ValidateReason = "not_found"
	ReasonExpired      ValidateReason = "expired"
	ReasonIdentityGone ValidateReason = "identity_gone"
	ReasonInactive     ValidateReason = "inactive"
	ReasonStoreError   ValidateReason = "store_error"
	ReasonCorrupt      ValidateReason = "corrupt"
)

// IdentityState is the flow-local answer to "does this identity still sign in".
type IdentityState int

const (
	IdentityActive IdentityState = iota
	IdentityInactive
	IdentityMissing
)

// ValidateDeps captures session validation dependencies.
type ValidateDeps struct {
	Now        func() time.Time
	CheckToken func(token string) error
	Digest     func(token string) string

	Find       func(ctx context.Context, digest string) (*session.Session, error)
	IsNotFound func(error) bool
	// IsCorrupt reports a row that exists but cannot be decoded. Such a row
	// is deleted and the session is Invalid. Nil treats every non-NotFound
	// error as a store failure.
	IsCorrupt func(error) bool
	// Delete is best effort; its error is ignored.
	Delete func(ctx context.Context, digest string) error

	// Identity reports the current state of the session owner and returns
	// the host's record as ref. Nil skips the check.
	Identity func(ctx context.Context, namespace, identityID string) (state IdentityState, ref any, err error)
}

type ValidateResult struct {
	Outcome ValidateOutcome
	Reason  ValidateReason
	Session *session.Session
	// Identity is the ref returned by deps.Identity on a Valid outcome.
	Identity any
	Err      error
}

// RunValidate checks a raw session token. Expiry is judged against Now, not
// against row presence, so a row that outlived its expiry is still invalid.
func RunValidate(ctx context.Context, token string, deps ValidateDeps) ValidateResult {
	if err := deps.CheckToken(token); err != nil {
		return ValidateResult{Outcome: ValidateInvalid, Reason: ReasonMalformed}
	}
	return RunValidateDigest(ctx, deps.Digest(token), deps)
}

// RunValidateDigest is RunValidate for callers that only hold the digest,
// such as a bearer credential's session reference.
func RunValidateDigest(ctx context.Context, digest string, deps ValidateDeps) ValidateResult {
	if digest == "" {
		return ValidateResult{Outcome: ValidateInvalid, Reason: ReasonMalformed}
	}

	sess, err := deps.Find(ctx, digest)
	if err != nil {
		if deps.IsNotFound(err) {
			return ValidateResult{Outcome: ValidateInvalid, Reason: ReasonNotFound}
		}
		if deps.IsCorrupt != nil && deps.IsCorrupt(err) {
			if deps.Delete != nil {
				_ = deps.Delete(ctx, digest)
			}
			return ValidateResult{Outcome: ValidateInvalid, Reason: ReasonCorrupt, Err: err}
		}
		return ValidateResult{Outcome: ValidateUnverified, Reason: ReasonStoreError, Err: err}
	}

	if sess.Expired(deps.Now()) {
		if deps.Delete != nil {
			_ = deps.Delete(ctx, digest)
		}
		return ValidateResult{Outcome: ValidateInvalid, Reason: ReasonExpired, Session: sess}
	}

	if deps.Identity != nil {
		state, ref, err := deps.Identity(ctx, sess.Namespace, sess.IdentityID)
		if err != nil {
			return ValidateResult{Outcome: ValidateUnverified, Reason: ReasonStoreError, Session: sess, Err: err}
		}
		if state != IdentityActive {
			if deps.Delete != nil {
				_ = deps.Delete(ctx, digest)
			}
			reason := ReasonInactive
			if state == IdentityMissing {
				reason = ReasonIdentityGone
			}
			return ValidateResult{Outcome: ValidateInvalid, Reason: reason, Session: sess}
		}
		return ValidateResult{Outcome: ValidateValid, Session: sess, Identity: ref}
	}

	return ValidateResult{Outcome: ValidateValid, Session: sess}
}

package deskauth

import (
	"errors"
)

var (
	// ErrInvalidCredentials is the only error callers see for a failed
	// sign-in, whatever the internal reason.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionInvalid means the caller must sign in again.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionPersistence means a session could not be durably recorded.
	// No token is returned alongside it.
	ErrSessionPersistence = errors.New("session persistence failed")
	// ErrTransientStore means a store read failed or timed out. It is never
	// treated as success.
	ErrTransientStore = errors.New("store temporarily unavailable")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrBearerDisabled is returned when bearer credentials are not configured.
	ErrBearerDisabled = errors.New("bearer credentials disabled")
	// ErrInvalidNamespace is returned for unknown namespace names.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrIdentityNotFound is returned by IdentityStore implementations when
	// no row exists.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrTenantNotFound is returned by IdentityStore.GetTenant.
	ErrTenantNotFound = errors.New("tenant not found")
)

// FailureReason is the internal classification of a failed sign-in. It is
// recorded in logs, metrics and audit events and never shown to callers.
type FailureReason string

const (
	FailureNotFound       FailureReason = "not_found"
	FailureSecretMismatch FailureReason = "secret_mismatch"
	FailureInactive       FailureReason = "inactive"
)

// AuthFailure is returned by Authenticate and Login. Its message is the same
// for every reason, and errors.Is(err, ErrInvalidCredentials) holds.
type AuthFailure struct {
	Reason FailureReason
}

func (e *AuthFailure) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *AuthFailure) Unwrap() error {
	return ErrInvalidCredentials
}

// FailureReasonOf extracts the internal reason from an authentication error.
func FailureReasonOf(err error) (FailureReason, bool) {
	var af *AuthFailure
	if errors.As(err, &af) {
		return af.Reason, true
	}
	return "", false
}

// PublicMessage maps an engine error onto the text a client may see.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid credentials"
	case errors.Is(err, ErrSessionInvalid):
		return "please sign in again"
	default:
		return "service unavailable"
	}
}

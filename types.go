package deskauth

import (
	"strings"
	"time"

	"github.com/MrEthical07/deskauth/permission"
)

// Namespace discriminates the three identity tables.
type Namespace string

const (
	NamespaceMatrix  Namespace = "matrix"
	NamespaceContext Namespace = "context"
	NamespaceLegacy  Namespace = "legacy"
)

// resolutionOrder is the search order without a hint.
var resolutionOrder = []Namespace{NamespaceMatrix, NamespaceContext, NamespaceLegacy}

// Namespaces returns the search order.
func Namespaces() []Namespace {
	out := make([]Namespace, len(resolutionOrder))
	copy(out, resolutionOrder)
	return out
}

// Valid reports whether n is one of the known namespaces.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceMatrix, NamespaceContext, NamespaceLegacy:
		return true
	}
	return false
}

// ParseNamespace accepts a namespace name case-insensitively. The empty
// string parses to the empty namespace, meaning "no hint".
func ParseNamespace(s string) (Namespace, error) {
	n := Namespace(strings.ToLower(strings.TrimSpace(s)))
	if n == "" || n.Valid() {
		return n, nil
	}
	return "", ErrInvalidNamespace
}

// Identity is one row of one namespace. TenantID is set for Context
// identities only. Email is unique within a namespace, not across them.
type Identity struct {
	Namespace           Namespace
	ID                  string
	Email               string
	DisplayName         string
	Role                string
	SecretHash          string
	Active              bool
	TenantID            string
	LastAuthenticatedAt time.Time
}

// TenantKind distinguishes organizations from departments.
type TenantKind string

const (
	TenantOrganization TenantKind = "organization"
	TenantDepartment   TenantKind = "department"
)

type Tenant struct {
	ID   string
	Name string
	Slug string
	Kind TenantKind
}

// TenantAssociation links a Matrix identity to a tenant.
type TenantAssociation struct {
	IdentityID string
	TenantID   string
	CanManage  bool
}

// AuthContext is the effective identity of a signed-in caller. Tenant
// visibility is deliberately absent; ask Engine.TenantScope per request.
type AuthContext struct {
	Namespace    Namespace
	IdentityID   string
	Email        string
	Name         string
	Role         string
	Capabilities permission.Set
	// TenantID and Tenant are set for Context identities.
	TenantID string
	Tenant   *Tenant
}

// Can reports whether capability is granted.
func (a *AuthContext) Can(capability string) bool {
	return a != nil && a.Capabilities.Has(capability)
}

// IssuedSession is the result of IssueSession. Token is returned only after
// the session was durably recorded.
type IssuedSession struct {
	Token      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Superseded int
}

// LoginResult is returned by Engine.Login. Bearer is empty when bearer
// credentials are disabled.
type LoginResult struct {
	Auth    *AuthContext
	Session IssuedSession
	Bearer  string
}

// ValidationOutcome is the three-way session validation result.
type ValidationOutcome uint8

const (
	// OutcomeInvalid: sign in again.
	OutcomeInvalid ValidationOutcome = iota
	// OutcomeValid: the session exists, is unexpired and its owner is active.
	OutcomeValid
	// OutcomeUnverified: the store could not answer. Not a pass.
	OutcomeUnverified
)

func (o ValidationOutcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeUnverified:
		return "unverified"
	default:
		return "invalid"
	}
}

// ValidationResult is returned by ValidateSession.
type ValidationResult struct {
	Outcome    ValidationOutcome
	Reason     string
	Namespace  Namespace
	IdentityID string
	ExpiresAt  time.Time
	// Auth is the effective context of the session owner. It is set only
	// for Valid, and left nil when the owner could not be reloaded while
	// Validation.CheckIdentity is off.
	Auth *AuthContext
	// Err is nil for Valid, wraps ErrSessionInvalid for Invalid and
	// ErrTransientStore for Unverified.
	Err error
}

// Valid is shorthand for Outcome == OutcomeValid.
func (r ValidationResult) Valid() bool {
	return r.Outcome == OutcomeValid
}

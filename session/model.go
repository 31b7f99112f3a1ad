package session

import "time"

// Session is one persisted sign-in. Timestamps are unix seconds.
type Session struct {
	Digest     string
	IdentityID string
	Namespace  string
	IssuedAt   int64
	ExpiresAt  int64
}

// Subject is the namespace-qualified identity key. Identity ids are only
// unique inside one namespace.
func (s *Session) Subject() string {
	return Subject(s.Namespace, s.IdentityID)
}

// Subject joins namespace and identity id.
func Subject(namespace, identityID string) string {
	return namespace + ":" + identityID
}

// Expired reports whether the session has reached its expiry at now. A row
// that still exists past its expiry is expired all the same.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}

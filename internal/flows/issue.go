package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/deskauth/session"
)

// IssueDeps captures session issuance dependencies.
type IssueDeps struct {
	SingleSession bool
	TTL           time.Duration

	Now      func() time.Time
	NewToken func() (string, error)
	Digest   func(token string) string

	Insert  func(ctx context.Context, s *session.Session, ttl time.Duration) error
	Replace func(ctx context.Context, s *session.Session, ttl time.Duration) (int, error)
}

// IssueResult carries the raw token only when the session was persisted.
type IssueResult struct {
	Token      string
	Session    *session.Session
	Superseded int
	Err        error
}

// RunIssue mints a token and persists its session. Under the single-session
// policy the insert and the removal of older sessions are one store call.
func RunIssue(ctx context.Context, namespace, identityID string, deps IssueDeps) IssueResult {
	token, err := deps.NewToken()
	if err != nil {
		return IssueResult{Err: err}
	}

	now := deps.Now()
	sess := &session.Session{
		Digest:     deps.Digest(token),
		IdentityID: identityID,
		Namespace:  namespace,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(deps.TTL).Unix(),
	}

	superseded := 0
	if deps.SingleSession {
		superseded, err = deps.Replace(ctx, sess, deps.TTL)
	} else {
		err = deps.Insert(ctx, sess, deps.TTL)
	}
	if err != nil {
		return IssueResult{Err: err}
	}

	return IssueResult{Token: token, Session: sess, Superseded: superseded}
}

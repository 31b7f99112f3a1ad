package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/session"
	"github.com/jackc/pgx/v5"
)

// SessionStore keeps sessions in the sessions table. Expiry is stored but
// not enforced by the database; the engine compares it against its clock
// and PurgeExpired reclaims old rows.
type SessionStore struct {
	db DB
}

func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db}
}

const insertSession = `INSERT INTO sessions (digest, namespace, identity_id, issued_at, expires_at)
	VALUES ($1, $2, $3, $4, $5)`

func (s *SessionStore) Insert(ctx context.Context, sess *session.Session, _ time.Duration) error {
	_, err := s.db.Exec(ctx, insertSession,
		sess.Digest, sess.Namespace, sess.IdentityID, sess.IssuedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// ReplaceForIdentity deletes the identity's sessions and inserts sess in
// one transaction. A transaction-scoped advisory lock on the identity
// serializes concurrent replacements.
func (s *SessionStore) ReplaceForIdentity(ctx context.Context, sess *session.Session, _ time.Duration) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace: %w", err)
	}

	removed, err := replaceInTx(ctx, tx, sess)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return removed, nil
}

func replaceInTx(ctx context.Context, tx pgx.Tx, sess *session.Session) (int, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sess.Subject()); err != nil {
		return 0, fmt.Errorf("lock identity: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM sessions WHERE namespace = $1 AND identity_id = $2`,
		sess.Namespace, sess.IdentityID)
	if err != nil {
		return 0, fmt.Errorf("delete superseded sessions: %w", err)
	}
	if _, err := tx.Exec(ctx, insertSession,
		sess.Digest, sess.Namespace, sess.IdentityID, sess.IssuedAt, sess.ExpiresAt); err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *SessionStore) Find(ctx context.Context, digest string) (*session.Session, error) {
	sess := session.Session{Digest: digest}
	err := s.db.QueryRow(ctx,
		`SELECT namespace, identity_id, issued_at, expires_at FROM sessions WHERE digest = $1`, digest,
	).Scan(&sess.Namespace, &sess.IdentityID, &sess.IssuedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) DeleteByDigest(ctx context.Context, digest string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE digest = $1`, digest); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByIdentity removes the identity's sessions except keepDigest.
func (s *SessionStore) DeleteByIdentity(ctx context.Context, namespace, identityID, keepDigest string) (int, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM sessions WHERE namespace = $1 AND identity_id = $2 AND digest <> $3`,
		namespace, identityID, keepDigest)
	if err != nil {
		return 0, fmt.Errorf("delete identity sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeExpired deletes rows whose expiry is at or before now.
func (s *SessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ deskauth.SessionStore = (*SessionStore)(nil)

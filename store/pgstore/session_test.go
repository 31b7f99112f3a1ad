package pgstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/deskauth/session"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() *session.Session {
	return &session.Session{
		Digest:     "d1",
		IdentityID: "m-1",
		Namespace:  "matrix",
		IssuedAt:   1_760_000_000,
		ExpiresAt:  1_760_086_400,
	}
}

func TestReplaceForIdentityCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSessionStore(mock)
	sess := testSession()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("matrix:m-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("DELETE FROM sessions WHERE namespace").
		WithArgs("matrix", "m-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("d1", "matrix", "m-1", sess.IssuedAt, sess.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	removed, err := store.ReplaceForIdentity(context.Background(), sess, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceForIdentityRollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSessionStore(mock)
	sess := testSession()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("matrix:m-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("DELETE FROM sessions WHERE namespace").
		WithArgs("matrix", "m-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("d1", "matrix", "m-1", sess.IssuedAt, sess.ExpiresAt).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = store.ReplaceForIdentity(context.Background(), sess, 24*time.Hour)
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSessionStore(mock)
	mock.ExpectQuery("FROM sessions WHERE digest").
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"namespace", "identity_id", "issued_at", "expires_at"}).
			AddRow("matrix", "m-1", int64(10), int64(20)))
	mock.ExpectQuery("FROM sessions WHERE digest").
		WithArgs("d2").
		WillReturnError(pgx.ErrNoRows)

	sess, err := store.Find(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", sess.Digest)
	assert.Equal(t, "m-1", sess.IdentityID)
	assert.Equal(t, int64(20), sess.ExpiresAt)

	_, err = store.Find(context.Background(), "d2")
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByIdentityKeepsOne(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSessionStore(mock)
	mock.ExpectExec("DELETE FROM sessions WHERE namespace").
		WithArgs("context", "c-1", "keep").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := store.DeleteByIdentity(context.Background(), "context", "c-1", "keep")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSessionStore(mock)
	now := time.Unix(1_760_000_000, 0)
	mock.ExpectExec("DELETE FROM sessions WHERE expires_at").
		WithArgs(now.Unix()).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := store.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAppliesSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tenants").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, Migrate(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}

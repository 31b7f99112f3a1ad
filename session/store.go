package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no session exists for a digest.
	ErrNotFound = errors.New("session not found")
	// ErrRedisUnavailable wraps every Redis transport or server error.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// purgeScript removes every digest in the identity index except ARGV[1].
// With ARGV[3] set it then writes the new session and indexes it.
//
// KEYS[1] identity index, KEYS[2] new session key (optional)
// ARGV[1] digest to keep, ARGV[2] session key prefix,
// ARGV[3] blob (optional), ARGV[4] ttl in ms (optional)
const purgeScript = `
local removed = 0
local members = redis.call("SMEMBERS", KEYS[1])
for _, digest in ipairs(members) do
  if digest ~= ARGV[1] then
    removed = removed + redis.call("DEL", ARGV[2] .. digest)
    redis.call("SREM", KEYS[1], digest)
  end
end
if ARGV[3] then
  redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[4])
  redis.call("SADD", KEYS[1], ARGV[1])
  redis.call("PEXPIRE", KEYS[1], ARGV[4])
end
return removed
`

var purgeLua = redis.NewScript(purgeScript)

// Store is the Redis session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore builds a Store. prefix namespaces every key.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "da"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) sessionPrefix() string {
	return s.prefix + ":s:"
}

func (s *Store) key(digest string) string {
	return s.sessionPrefix() + digest
}

func (s *Store) indexKey(namespace, identityID string) string {
	return s.prefix + ":i:" + Subject(namespace, identityID)
}

// Insert stores sess and adds it to its identity index. Other sessions of the
// identity are left alone.
func (s *Store) Insert(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	idx := s.indexKey(sess.Namespace, sess.IdentityID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.Digest), data, ttl)
		pipe.SAdd(ctx, idx, sess.Digest)
		pipe.Expire(ctx, idx, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ReplaceForIdentity stores sess and deletes every other session of the same
// identity atomically. It returns the number of sessions removed.
func (s *Store) ReplaceForIdentity(ctx context.Context, sess *Session, ttl time.Duration) (int, error) {
	data, err := Encode(sess)
	if err != nil {
		return 0, err
	}

	removed, err := purgeLua.Run(ctx, s.redis,
		[]string{s.indexKey(sess.Namespace, sess.IdentityID), s.key(sess.Digest)},
		sess.Digest, s.sessionPrefix(), data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}

// Find loads the session for digest. Expiry is not checked here.
func (s *Store) Find(ctx context.Context, digest string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// DeleteByDigest removes one session. Deleting a missing session is not an
// error.
func (s *Store) DeleteByDigest(ctx context.Context, digest string) error {
	sess, err := s.Find(ctx, digest)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case errors.Is(err, ErrCorrupt):
		if err := s.redis.Del(ctx, s.key(digest)).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	case err != nil:
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(digest))
		pipe.SRem(ctx, s.indexKey(sess.Namespace, sess.IdentityID), digest)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteByIdentity removes every session of the identity except keepDigest,
// which may be empty. It returns the number of sessions removed.
func (s *Store) DeleteByIdentity(ctx context.Context, namespace, identityID, keepDigest string) (int, error) {
	removed, err := purgeLua.Run(ctx, s.redis,
		[]string{s.indexKey(namespace, identityID)},
		keepDigest, s.sessionPrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}

// ActiveDigests lists the indexed digests of one identity. Entries whose
// session already expired in Redis are skipped.
func (s *Store) ActiveDigests(ctx context.Context, namespace, identityID string) ([]string, error) {
	members, err := s.redis.SMembers(ctx, s.indexKey(namespace, identityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	checks := make([]*redis.IntCmd, len(members))
	for i, d := range members {
		checks[i] = pipe.Exists(ctx, s.key(d))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]string, 0, len(members))
	for i, d := range members {
		if checks[i].Val() == 1 {
			out = append(out, d)
		}
	}
	return out, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

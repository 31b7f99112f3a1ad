package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

const (
	tokenPrefixSize = 16
	tokenSecretSize = 32
	tokenRawSize    = tokenPrefixSize + tokenSecretSize
)

// ErrMalformedToken is returned for tokens that cannot have been issued here.
var ErrMalformedToken = errors.New("malformed session token")

// NewSessionToken returns an opaque token: a UUIDv7 (millisecond time plus
// randomness) followed by 32 bytes from crypto/rand, base64url without padding.
func NewSessionToken() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	var raw [tokenRawSize]byte
	copy(raw[:tokenPrefixSize], id[:])
	if _, err := rand.Read(raw[tokenPrefixSize:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// CheckSessionToken rejects strings that are not shaped like a session token.
// It lets callers skip a store round trip for garbage input.
func CheckSessionToken(token string) error {
	if base64.RawURLEncoding.DecodedLen(len(token)) != tokenRawSize {
		return ErrMalformedToken
	}
	if _, err := base64.RawURLEncoding.DecodeString(token); err != nil {
		return ErrMalformedToken
	}
	return nil
}

// TokenDigest is the storage key for a token: hex SHA-256.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ShortDigest is a log-safe prefix of a digest.
func ShortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const formatVersion = 1

// ErrCorrupt is returned when a stored blob cannot be decoded.
var ErrCorrupt = errors.New("session blob corrupt")

// Encode serializes s as: version byte, three length-prefixed strings
// (digest, identity id, namespace), then issued and expiry as big-endian int64.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(1 + 3 + len(s.Digest) + len(s.IdentityID) + len(s.Namespace) + 16)

	buf.WriteByte(formatVersion)
	for _, field := range []struct {
		name, value string
	}{
		{"digest", s.Digest},
		{"identity id", s.IdentityID},
		{"namespace", s.Namespace},
	} {
		if len(field.value) > 255 {
			return nil, fmt.Errorf("%s too long", field.name)
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	var ts [16]byte
	binary.BigEndian.PutUint64(ts[:8], uint64(s.IssuedAt))
	binary.BigEndian.PutUint64(ts[8:], uint64(s.ExpiresAt))
	buf.Write(ts[:])

	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorrupt, version)
	}

	var s Session
	for _, dst := range []*string{&s.Digest, &s.IdentityID, &s.Namespace} {
		if *dst, err = readString(r); err != nil {
			return nil, ErrCorrupt
		}
	}

	var ts [16]byte
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return nil, ErrCorrupt
	}
	s.IssuedAt = int64(binary.BigEndian.Uint64(ts[:8]))
	s.ExpiresAt = int64(binary.BigEndian.Uint64(ts[8:]))

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", ErrCorrupt)
	}
	return &s, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

package password

// Multi dispatches on the stored hash encoding. New hashes always use the
// Argon2id hasher.
type Multi struct {
	primary *Argon2
	legacy  *Bcrypt
}

// NewMulti builds a dispatching hasher around p. Bcrypt verification uses the
// default cost for tooling hashes only.
func NewMulti(p Params) (*Multi, error) {
	primary, err := NewArgon2(p)
	if err != nil {
		return nil, err
	}
	legacy, err := NewBcrypt(0)
	if err != nil {
		return nil, err
	}
	return &Multi{primary: primary, legacy: legacy}, nil
}

func (m *Multi) Hash(secret string) (string, error) {
	return m.primary.Hash(secret)
}

func (m *Multi) Verify(secret, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return m.legacy.Verify(secret, encoded)
	}
	return m.primary.Verify(secret, encoded)
}

// NeedsUpgrade is true for every bcrypt hash and for Argon2id hashes with
// weaker parameters.
func (m *Multi) NeedsUpgrade(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}
	return m.primary.NeedsUpgrade(encoded)
}

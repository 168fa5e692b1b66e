package login

import (
	"errors"

	"github.com/SuNNjek/identity"
)

const (
	identityV3Marker = 0x01
	identityV3Header = 13
)

// IdentityV3Hasher reads and writes the PBKDF2 layout used by ASP.NET Core Identity,
// which is what accounts migrated from the previous platform carry.
// Verification follows the PRF and iteration count recorded in each stored hash.
type IdentityV3Hasher struct{}

func NewIdentityV3Hasher() *IdentityV3Hasher {
	return &IdentityV3Hasher{}
}

func (h *IdentityV3Hasher) Hash(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	salt, err := identity.GenerateSalt(identity.DefaultSaltLength)
	if err != nil {
		return nil, err
	}
	return identity.HashPasswordV3(
		[]byte(password),
		salt,
		identity.DefaultHashAlgorithm,
		identity.DefaultIterations,
		identity.DefaultNumBytes,
	), nil
}

func (h *IdentityV3Hasher) Verify(password string, stored []byte) (bool, error) {
	if password == "" || len(stored) == 0 {
		return false, errors.New("password and hashed password cannot be empty")
	}
	if len(stored) < identityV3Header || stored[0] != identityV3Marker {
		return false, ErrInvalidHashFormat
	}
	return identity.Verify(stored, []byte(password)), nil
}

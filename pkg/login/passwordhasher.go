package login

import (
	"bytes"
	"errors"
	"fmt"
)

// PasswordVersion represents the version of the password hashing algorithm
type PasswordVersion int

const (
	PasswordUnknown PasswordVersion = 0
	// PasswordV1 is bcrypt
	PasswordV1 PasswordVersion = 1
	// PasswordV2 is the PBKDF2 layout shared with ASP.NET Core Identity (format marker 0x01)
	PasswordV2 PasswordVersion = 2
	// PasswordV3 is Argon2id in PHC string form
	PasswordV3 PasswordVersion = 3

	// CurrentPasswordVersion is the current version used for new passwords
	CurrentPasswordVersion = PasswordV2
)

var (
	ErrEmptyPassword      = errors.New("password cannot be empty")
	ErrInvalidHashFormat  = errors.New("invalid password hash format")
	ErrUnsupportedVersion = errors.New("unsupported password hash version")
)

// PasswordHasher defines the interface for password hashing implementations
type PasswordHasher interface {
	Hash(password string) ([]byte, error)

	// Verify checks if the provided password matches the stored hash.
	// A mismatch is reported as false with a nil error.
	Verify(password string, hash []byte) (bool, error)
}

// DetectVersion inspects a stored hash and reports which algorithm produced it
func DetectVersion(hash []byte) PasswordVersion {
	switch {
	case len(hash) == 0:
		return PasswordUnknown
	case hash[0] == identityV3Marker:
		return PasswordV2
	case bytes.HasPrefix(hash, []byte("$2a$")), bytes.HasPrefix(hash, []byte("$2b$")), bytes.HasPrefix(hash, []byte("$2y$")):
		return PasswordV1
	case bytes.HasPrefix(hash, []byte("$argon2id$")):
		return PasswordV3
	}
	return PasswordUnknown
}

// VersionedHasher hashes with the current version and verifies any known version.
// Accounts migrated from the previous platform carry V2 hashes.
type VersionedHasher struct {
	hashers map[PasswordVersion]PasswordHasher
	current PasswordVersion
}

func NewVersionedHasher() *VersionedHasher {
	return &VersionedHasher{
		hashers: map[PasswordVersion]PasswordHasher{
			PasswordV1: NewBcryptHasher(0),
			PasswordV2: NewIdentityV3Hasher(),
			PasswordV3: NewArgon2Hasher(),
		},
		current: CurrentPasswordVersion,
	}
}

// WithCurrent returns a copy hashing new passwords with version v
func (h *VersionedHasher) WithCurrent(v PasswordVersion) (*VersionedHasher, error) {
	if _, ok := h.hashers[v]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	return &VersionedHasher{hashers: h.hashers, current: v}, nil
}

func (h *VersionedHasher) Hash(password string) ([]byte, error) {
	return h.hashers[h.current].Hash(password)
}

func (h *VersionedHasher) Verify(password string, hash []byte) (bool, error) {
	hasher, ok := h.hashers[DetectVersion(hash)]
	if !ok {
		return false, ErrInvalidHashFormat
	}
	return hasher.Verify(password, hash)
}

// NeedsRehash reports whether hash was produced by an older version
func (h *VersionedHasher) NeedsRehash(hash []byte) bool {
	return DetectVersion(hash) != h.current
}

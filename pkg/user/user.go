package user

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrEmptyUserName     = errors.New("user name cannot be empty")
)

// User is a local account
type User struct {
	ID             uuid.UUID
	UserName       string
	Email          string
	FirstName      string
	LastName       string
	MiddleName     string
	Roles          []string
	IsRegistered   bool
	EmailConfirmed bool
	IsBlocked      bool
	PasswordHash   []byte
	SecurityStamp  string
	FailedAttempts int
	LockedUntil    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DisplayName is the name shown in tokens and on consent screens
func (u User) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.LastName, u.FirstName, u.MiddleName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return u.UserName
	}
	return strings.Join(parts, " ")
}

// PrimaryRole is the first assigned role, or "" when the user has none
func (u User) PrimaryRole() string {
	if len(u.Roles) == 0 {
		return ""
	}
	return u.Roles[0]
}

func (u User) HasRole(role string) bool {
	return slices.ContainsFunc(u.Roles, func(r string) bool { return strings.EqualFold(r, role) })
}

// IsLockedOut reports whether a lockout is active at now
func (u User) IsLockedOut(now time.Time) bool {
	return !u.LockedUntil.IsZero() && now.Before(u.LockedUntil)
}

// NormalizeUserName is the form used for unique lookups
func NormalizeUserName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NewUser holds the fields accepted when creating an account
type NewUser struct {
	UserName       string
	Email          string
	FirstName      string
	LastName       string
	MiddleName     string
	IsRegistered   bool
	EmailConfirmed bool
	Password       string
}

package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/edu-idm/pkg/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountBlocked     = errors.New("account is blocked")
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

type Option func(*LoginService)

func WithPasswordHasher(hasher PasswordHasher) Option {
	return func(s *LoginService) {
		s.hasher = hasher
	}
}

// WithMaxFailedAttempts sets how many consecutive failures trigger a lockout; zero disables lockout
func WithMaxFailedAttempts(n int) Option {
	return func(s *LoginService) {
		s.maxFailedAttempts = n
	}
}

func WithLockoutDuration(d time.Duration) Option {
	return func(s *LoginService) {
		s.lockoutDuration = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LoginService) {
		s.now = now
	}
}

// LoginService verifies local passwords and tracks failed attempts
type LoginService struct {
	users             *user.UserService
	repo              user.UserRepository
	hasher            PasswordHasher
	maxFailedAttempts int
	lockoutDuration   time.Duration
	now               func() time.Time
}

func NewLoginService(repo user.UserRepository, users *user.UserService, opts ...Option) *LoginService {
	s := &LoginService{
		users:             users,
		repo:              repo,
		hasher:            NewVersionedHasher(),
		maxFailedAttempts: DefaultMaxFailedAttempts,
		lockoutDuration:   DefaultLockoutDuration,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hasher exposes the configured hasher so account creation stores compatible hashes
func (s *LoginService) Hasher() PasswordHasher {
	return s.hasher
}

// CheckPassword verifies password for u. Each mismatch counts towards a lockout;
// a success resets the counter.
func (s *LoginService) CheckPassword(ctx context.Context, u user.User, password string) error {
	if u.IsBlocked {
		return ErrAccountBlocked
	}
	if u.IsLockedOut(s.now()) {
		return ErrAccountLocked
	}
	if len(u.PasswordHash) == 0 || password == "" {
		return ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		slog.Warn("stored password hash could not be verified", "user_id", u.ID, "error", err)
		ok = false
	}
	if !ok {
		return s.recordFailure(ctx, u)
	}

	if u.FailedAttempts > 0 || !u.LockedUntil.IsZero() {
		if err := s.repo.ResetFailedLoginAttempts(ctx, u.ID); err != nil {
			return fmt.Errorf("failed to reset failed attempts: %w", err)
		}
	}
	return nil
}

func (s *LoginService) recordFailure(ctx context.Context, u user.User) error {
	attempts, err := s.repo.IncrementFailedLoginAttempts(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("failed to record failed attempt: %w", err)
	}
	if s.maxFailedAttempts > 0 && attempts >= s.maxFailedAttempts {
		until := s.now().Add(s.lockoutDuration)
		if err := s.repo.LockAccount(ctx, u.ID, until); err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}
		slog.Warn("account locked after repeated failures", "user_id", u.ID, "attempts", attempts, "until", until)
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// PasswordSignIn resolves userName and checks the password. Unknown users are reported
// as ErrInvalidCredentials.
func (s *LoginService) PasswordSignIn(ctx context.Context, userName, password string) (user.User, error) {
	u, err := s.users.FindByName(ctx, userName)
	if errors.Is(err, user.ErrUserNotFound) {
		return user.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return user.User{}, err
	}
	if err := s.CheckPassword(ctx, u, password); err != nil {
		return user.User{}, err
	}
	return u, nil
}

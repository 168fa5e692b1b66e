package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// PasswordHasher produces the stored form of a password
type PasswordHasher interface {
	Hash(password string) ([]byte, error)
}

// PasswordPolicy rejects passwords that do not meet complexity rules
type PasswordPolicy interface {
	CheckPasswordComplexity(password string) error
}

type Option func(*UserService)

func WithPasswordHasher(hasher PasswordHasher) Option {
	return func(s *UserService) {
		s.hasher = hasher
	}
}

func WithPasswordPolicy(policy PasswordPolicy) Option {
	return func(s *UserService) {
		s.policy = policy
	}
}

// WithOnUserCreated registers a hook invoked after every successful Create
func WithOnUserCreated(fn func(User)) Option {
	return func(s *UserService) {
		s.onCreated = fn
	}
}

type UserService struct {
	repo      UserRepository
	hasher    PasswordHasher
	policy    PasswordPolicy
	onCreated func(User)
}

func NewUserService(repo UserRepository, opts ...Option) *UserService {
	s := &UserService{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindByID parses id and loads the user; a malformed id is reported as not found
func (s *UserService) FindByID(ctx context.Context, id string) (User, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return s.repo.GetUserByID(ctx, parsed)
}

func (s *UserService) FindByName(ctx context.Context, name string) (User, error) {
	normalized := NormalizeUserName(name)
	if normalized == "" {
		return User{}, ErrUserNotFound
	}
	return s.repo.GetUserByName(ctx, normalized)
}

// Create stores a new account; the password is optional for externally verified users
func (s *UserService) Create(ctx context.Context, params NewUser) (User, error) {
	if strings.TrimSpace(params.UserName) == "" {
		return User{}, ErrEmptyUserName
	}

	var u User
	if err := copier.Copy(&u, &params); err != nil {
		return User{}, fmt.Errorf("failed to copy user fields: %w", err)
	}
	u.UserName = strings.TrimSpace(params.UserName)
	u.ID = uuid.New()
	u.SecurityStamp = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt

	if params.Password != "" {
		if s.policy != nil {
			if err := s.policy.CheckPasswordComplexity(params.Password); err != nil {
				return User{}, err
			}
		}
		if s.hasher == nil {
			return User{}, fmt.Errorf("password supplied but no password hasher configured")
		}
		hash, err := s.hasher.Hash(params.Password)
		if err != nil {
			return User{}, fmt.Errorf("failed to hash password: %w", err)
		}
		u.PasswordHash = hash
	}

	created, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		return User{}, err
	}
	slog.Info("user created", "user_id", created.ID, "registered", created.IsRegistered)
	if s.onCreated != nil {
		s.onCreated(created)
	}
	return created, nil
}

func (s *UserService) AddToRole(ctx context.Context, id uuid.UUID, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil
	}
	if err := s.repo.AddUserRole(ctx, id, role); err != nil {
		return fmt.Errorf("failed to add user %s to role %s: %w", id, role, err)
	}
	return nil
}

func (s *UserService) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	return s.repo.SetBlocked(ctx, id, blocked)
}

// CanSignIn reports whether the account may currently be signed in
func (s *UserService) CanSignIn(u User) bool {
	return !u.IsBlocked
}

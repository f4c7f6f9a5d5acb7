package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/streamchat/backend/internal/model/user"
)

var (
	ErrMissingFields      = errors.New("missing fields")
	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service handles registration and login. Credentials are stored as bcrypt
// hashes and compared with constant-time verification, never as plaintext.
type Service struct {
	users user.Store
}

// NewService returns an auth service over the given user store.
func NewService(users user.Store) *Service {
	return &Service{users: users}
}

// Register creates an account and returns it without the credential hash
// populated for callers to serialize.
func (s *Service) Register(ctx context.Context, name, email, password string) (user.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return user.User{}, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	created, err := s.users.Create(ctx, user.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return user.User{}, ErrEmailTaken
		}
		return user.User{}, err
	}

	return created, nil
}

// Login verifies the credentials. Unknown emails and wrong passwords report
// the same error so accounts cannot be enumerated.
func (s *Service) Login(ctx context.Context, email, password string) (user.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return user.User{}, ErrMissingFields
	}

	found, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, ErrInvalidCredentials
		}
		return user.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
		return user.User{}, ErrInvalidCredentials
	}

	return found, nil
}

package user

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("user already exists")
)

// User 账户信息。PasswordHash 保存 bcrypt 摘要，核心逻辑不关心其内容。
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Store exposes user lookup and creation for the auth service.
type Store interface {
	Create(ctx context.Context, u User) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
}

// MemoryStore implements Store with an in-memory map keyed by email.
type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]User
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]User)}
}

// Create stores a new user, enforcing email uniqueness.
func (s *MemoryStore) Create(_ context.Context, u User) (User, error) {
	key := strings.ToLower(u.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[key]; ok {
		return User{}, ErrDuplicateEmail
	}

	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	s.byEmail[key] = u
	return u, nil
}

// FindByEmail looks a user up by email, case-insensitively.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

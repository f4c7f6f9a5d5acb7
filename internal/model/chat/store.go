package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a conversation does not exist or is not
// owned by the requesting user. The two cases are deliberately
// indistinguishable so ownership cannot be probed.
var ErrNotFound = errors.New("conversation not found")

// Store exposes conversation persistence for the chat services.
//
// Every mutation is a single atomic document operation; the store never
// serializes across requests. AppendMessage fills in the message ID and
// timestamp at the moment of persistence.
type Store interface {
	Create(ctx context.Context, userID, title string) (Conversation, error)
	Get(ctx context.Context, conversationID, userID string) (Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, msg Message) error
	ListForUser(ctx context.Context, userID string, limit int64) ([]Summary, error)
	Delete(ctx context.Context, conversationID, userID string) error
	CountUserMessages(ctx context.Context, userID string) (int, error)
}

// MemoryStore implements Store with in-memory maps, suitable for tests and
// local runs without MongoDB.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]Conversation)}
}

// Create provisions an empty conversation owned by userID.
func (s *MemoryStore) Create(_ context.Context, userID, title string) (Conversation, error) {
	now := time.Now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Messages:  make([]Message, 0, 8),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	return conv, nil
}

// Get fetches a conversation scoped to its claimed owner.
func (s *MemoryStore) Get(_ context.Context, conversationID, userID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return Conversation{}, ErrNotFound
	}

	copied := conv
	copied.Messages = append([]Message(nil), conv.Messages...)
	return copied, nil
}

// AppendMessage adds one message to the end of the sequence and bumps the
// last-modified time.
func (s *MemoryStore) AppendMessage(_ context.Context, conversationID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}

	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now().UTC()

	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp
	s.conversations[conversationID] = conv
	return nil
}

// ListForUser returns summaries ordered by last-modified descending.
func (s *MemoryStore) ListForUser(_ context.Context, userID string, limit int64) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, 16)
	for _, conv := range s.conversations {
		if conv.UserID != userID {
			continue
		}
		summaries = append(summaries, Summary{
			ID:        conv.ID,
			Title:     conv.Title,
			UpdatedAt: conv.UpdatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	if limit > 0 && int64(len(summaries)) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Delete removes a conversation if it is owned by userID.
func (s *MemoryStore) Delete(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return ErrNotFound
	}

	delete(s.conversations, conversationID)
	return nil
}

// CountUserMessages counts user-role messages across all of a user's
// conversations. Recomputed on every call so it never drifts from the log.
func (s *MemoryStore) CountUserMessages(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, conv := range s.conversations {
		if conv.UserID != userID {
			continue
		}
		for _, msg := range conv.Messages {
			if msg.Role == RoleUser {
				count++
			}
		}
	}
	return count, nil
}

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/streamchat/backend/internal/model/chat"
)

// GetConversation fetches a conversation scoped to its owner.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (chat.Conversation, error) {
	return s.store.Get(ctx, conversationID, userID)
}

// History lists the user's conversations (newest first, capped) together
// with the quota counter shown in the sidebar.
func (s *Service) History(ctx context.Context, userID string) ([]chat.Summary, int, error) {
	summaries, err := s.store.ListForUser(ctx, userID, s.historyLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	used, err := s.store.CountUserMessages(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return summaries, used, nil
}

// DeleteConversation removes a conversation owned by userID. Deleting an
// unknown or foreign id succeeds silently so existence cannot be probed.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	err := s.store.Delete(ctx, conversationID, userID)
	if errors.Is(err, chat.ErrNotFound) {
		return nil
	}
	return err
}

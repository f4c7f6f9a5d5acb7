package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/streamchat/backend/internal/model/chat"
	"github.com/zhouzirui/streamchat/backend/internal/service/quota"
)

var (
	ErrMessageRequired       = errors.New("message is required")
	ErrUserRequired          = errors.New("user id is required")
	ErrGenerationUnavailable = errors.New("ai generation unavailable")
)

// QuotaExceededError reports a denied send together with the usage figures.
type QuotaExceededError struct {
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("message limit reached: %d/%d used", e.Used, e.Limit)
}

// Generator produces a reply to a prompt as a finite, single-pass fragment
// stream. Closing the stream early must release the upstream connection.
type Generator interface {
	StreamReply(ctx context.Context, prompt string, history []chat.Message) (*schema.StreamReader[*schema.Message], error)
}

// Service orchestrates a send: validation, quota admission, conversation
// resolution, user-message persistence, fragment relay and model-message
// persistence. Requests share no in-memory state; all coordination goes
// through the Store.
type Service struct {
	store        chat.Store
	gate         *quota.Gate
	gen          Generator
	historyLimit int64
}

// NewService wires the relay. gen may be nil when no model credentials are
// configured; Stream then fails with ErrGenerationUnavailable.
func NewService(store chat.Store, gate *quota.Gate, gen Generator, historyLimit int64) *Service {
	return &Service{
		store:        store,
		gate:         gate,
		gen:          gen,
		historyLimit: historyLimit,
	}
}

// GenerationEnabled reports whether a model backend is configured.
func (s *Service) GenerationEnabled() bool {
	return s.gen != nil
}

// SendRequest carries one send-message call. History is the client-supplied
// generation context and is passed to the model verbatim.
type SendRequest struct {
	UserID         string
	ConversationID string
	Message        string
	History        []chat.Message
}

// Exchange is a prepared send: the user message is already persisted and
// the resolved conversation id is known before any fragment is produced.
type Exchange struct {
	ConversationID string

	prompt  string
	history []chat.Message
}

// Prepare validates the request, checks the quota, resolves or creates the
// conversation and persists the user message. No generation happens yet, so
// a denial or storage failure here leaves no partial reply behind.
func (s *Service) Prepare(ctx context.Context, req SendRequest) (*Exchange, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrMessageRequired
	}
	if req.UserID == "" {
		return nil, ErrUserRequired
	}

	decision, err := s.gate.Check(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("quota check failed: %w", err)
	}
	if !decision.Allowed {
		return nil, &QuotaExceededError{Used: decision.Used, Limit: decision.Limit}
	}

	conv, err := s.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	userMsg := chat.Message{Role: chat.RoleUser, Text: req.Message}
	if err := s.store.AppendMessage(ctx, conv.ID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	return &Exchange{
		ConversationID: conv.ID,
		prompt:         req.Message,
		history:        req.History,
	}, nil
}

// Stream drives the generator and forwards each fragment to emit in arrival
// order, accumulating a copy. Once the stream ends, the accumulated text is
// persisted as the model message. That also happens on generation failure
// and on consumer disconnect, so partial output is never lost. An error
// before the first fragment persists nothing.
//
// The returned string is the accumulated reply, complete or not.
func (s *Service) Stream(ctx context.Context, ex *Exchange, emit func(fragment string) error) (string, error) {
	if s.gen == nil {
		return "", ErrGenerationUnavailable
	}

	stream, err := s.gen.StreamReply(ctx, ex.prompt, ex.history)
	if err != nil {
		return "", fmt.Errorf("failed to start generation: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			s.saveModelMessage(ctx, ex.ConversationID, full.String())
			return full.String(), fmt.Errorf("generation failed: %w", recvErr)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		if emitErr := emit(chunk.Content); emitErr != nil {
			// Consumer is gone. The fragment was not delivered, so it is
			// not part of the accumulated reply either.
			s.saveModelMessage(ctx, ex.ConversationID, full.String())
			return full.String(), fmt.Errorf("consumer closed stream: %w", emitErr)
		}
		full.WriteString(chunk.Content)
	}

	if full.Len() > 0 {
		modelMsg := chat.Message{Role: chat.RoleModel, Text: full.String()}
		if err := s.store.AppendMessage(ctx, ex.ConversationID, modelMsg); err != nil {
			return full.String(), fmt.Errorf("failed to save model message: %w", err)
		}
	}
	return full.String(), nil
}

// saveModelMessage persists accumulated text best-effort after a failed or
// abandoned stream. Detached from the request context so a client
// disconnect cannot cancel the save.
func (s *Service) saveModelMessage(ctx context.Context, conversationID, text string) {
	if text == "" {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	modelMsg := chat.Message{Role: chat.RoleModel, Text: text}
	if err := s.store.AppendMessage(saveCtx, conversationID, modelMsg); err != nil {
		log.Printf("[chat] failed to save partial model message for conversation=%s: %v", conversationID, err)
	}
}

// resolveConversation loads the supplied conversation scoped to the user,
// or starts a fresh one titled from the prompt. A stale or foreign id falls
// back to creation rather than erroring.
func (s *Service) resolveConversation(ctx context.Context, req SendRequest) (chat.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.store.Get(ctx, req.ConversationID, req.UserID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, chat.ErrNotFound) {
			return chat.Conversation{}, fmt.Errorf("failed to load conversation: %w", err)
		}
	}

	conv, err := s.store.Create(ctx, req.UserID, deriveTitle(req.Message))
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// deriveTitle builds the conversation title from the first message: at most
// 30 characters, with an ellipsis when truncated.
func deriveTitle(message string) string {
	const titleRuneLimit = 30

	runes := []rune(message)
	if len(runes) <= titleRuneLimit {
		return message
	}
	return strings.TrimRight(string(runes[:titleRuneLimit]), " ") + "…"
}

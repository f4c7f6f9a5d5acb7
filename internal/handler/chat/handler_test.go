package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	chatmodel "github.com/zhouzirui/streamchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/streamchat/backend/internal/service/chat"
	"github.com/zhouzirui/streamchat/backend/internal/service/quota"
)

type stubGenerator struct {
	fragments []string
	err       error
}

func (g *stubGenerator) StreamReply(_ context.Context, _ string, _ []chatmodel.Message) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](len(g.fragments) + 1)
	go func() {
		defer sw.Close()
		for _, fragment := range g.fragments {
			sw.Send(schema.AssistantMessage(fragment, nil), nil)
		}
		if g.err != nil {
			sw.Send(nil, g.err)
		}
	}()
	return sr, nil
}

func setupRouter(limit int, gen chatservice.Generator) (*chi.Mux, *chatmodel.MemoryStore) {
	store := chatmodel.NewMemoryStore()
	svc := chatservice.NewService(store, quota.NewGate(store, limit), gen, 50)
	handler := New(svc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func sendChat(t *testing.T, r http.Handler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)
	return resp
}

func TestSendMessageStreamsReply(t *testing.T) {
	r, store := setupRouter(20, &stubGenerator{fragments: []string{"Hel", "lo", " world"}})

	resp := sendChat(t, r, map[string]any{"message": "hi", "userId": "user-1"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Body.String(); got != "Hello world" {
		t.Fatalf("unexpected body: %q", got)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type: %q", ct)
	}

	conversationID := resp.Header().Get("X-Chat-Id")
	if conversationID == "" {
		t.Fatal("expected X-Chat-Id header")
	}

	conv, err := store.Get(context.Background(), conversationID, "user-1")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if len(conv.Messages) != 2 || conv.Messages[1].Text != "Hello world" {
		t.Fatalf("unexpected persisted conversation: %+v", conv.Messages)
	}
}

func TestSendMessageMissingMessage(t *testing.T) {
	r, _ := setupRouter(20, &stubGenerator{fragments: []string{"ok"}})

	resp := sendChat(t, r, map[string]any{"userId": "user-1"})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSendMessageMissingUser(t *testing.T) {
	r, _ := setupRouter(20, &stubGenerator{fragments: []string{"ok"}})

	resp := sendChat(t, r, map[string]any{"message": "hi"})

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestSendMessageQuotaExceeded(t *testing.T) {
	r, store := setupRouter(1, &stubGenerator{fragments: []string{"ok"}})

	seed, _ := store.Create(context.Background(), "user-1", "seed")
	store.AppendMessage(context.Background(), seed.ID, chatmodel.Message{Role: chatmodel.RoleUser, Text: "used"})

	resp := sendChat(t, r, map[string]any{"message": "one more", "userId": "user-1"})

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	if body := resp.Body.String(); !strings.Contains(body, "1/1") {
		t.Fatalf("expected usage figures in body, got %q", body)
	}
}

func TestSendMessageGenerationUnavailable(t *testing.T) {
	r, _ := setupRouter(20, nil)

	resp := sendChat(t, r, map[string]any{"message": "hi", "userId": "user-1"})

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestSendMessageFailedStreamKeepsPartialBody(t *testing.T) {
	r, store := setupRouter(20, &stubGenerator{
		fragments: []string{"Hel", "lo"},
		err:       errors.New("upstream reset"),
	})

	resp := sendChat(t, r, map[string]any{"message": "hi", "userId": "user-1"})

	// Status was already committed; the body is simply cut short.
	if resp.Code != http.StatusOK {
		t.Fatalf("expected committed 200, got %d", resp.Code)
	}
	if got := resp.Body.String(); got != "Hello" {
		t.Fatalf("unexpected partial body: %q", got)
	}

	conv, err := store.Get(context.Background(), resp.Header().Get("X-Chat-Id"), "user-1")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if len(conv.Messages) != 2 || conv.Messages[1].Text != "Hello" {
		t.Fatalf("expected salvaged model message, got %+v", conv.Messages)
	}
}

func TestGetConversation(t *testing.T) {
	r, store := setupRouter(20, nil)
	ctx := context.Background()

	conv, _ := store.Create(ctx, "user-1", "greetings")
	store.AppendMessage(ctx, conv.ID, chatmodel.Message{Role: chatmodel.RoleUser, Text: "hi"})
	store.AppendMessage(ctx, conv.ID, chatmodel.Message{Role: chatmodel.RoleModel, Text: "hello"})

	req := httptest.NewRequest(http.MethodGet, "/chat/"+conv.ID+"?userId=user-1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Messages []chatmodel.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(body.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(body.Messages))
	}
	if body.Messages[0].Role != chatmodel.RoleUser || body.Messages[1].Role != chatmodel.RoleModel {
		t.Fatalf("unexpected roles: %+v", body.Messages)
	}
}

func TestGetConversationMissingUser(t *testing.T) {
	r, store := setupRouter(20, nil)
	conv, _ := store.Create(context.Background(), "user-1", "private")

	req := httptest.NewRequest(http.MethodGet, "/chat/"+conv.ID, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestGetConversationForeignOwner(t *testing.T) {
	r, store := setupRouter(20, nil)
	conv, _ := store.Create(context.Background(), "user-1", "private")

	req := httptest.NewRequest(http.MethodGet, "/chat/"+conv.ID+"?userId=user-2", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

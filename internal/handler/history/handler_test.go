package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/zhouzirui/streamchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/streamchat/backend/internal/service/chat"
	"github.com/zhouzirui/streamchat/backend/internal/service/quota"
)

func setupRouter() (*chi.Mux, *chatmodel.MemoryStore) {
	store := chatmodel.NewMemoryStore()
	svc := chatservice.NewService(store, quota.NewGate(store, 20), nil, 50)
	handler := New(svc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func TestListHistory(t *testing.T) {
	r, store := setupRouter()
	ctx := context.Background()

	first, _ := store.Create(ctx, "user-1", "first")
	store.AppendMessage(ctx, first.ID, chatmodel.Message{Role: chatmodel.RoleUser, Text: "q"})
	store.AppendMessage(ctx, first.ID, chatmodel.Message{Role: chatmodel.RoleModel, Text: "a"})
	store.Create(ctx, "user-1", "second")
	store.Create(ctx, "user-2", "not mine")

	req := httptest.NewRequest(http.MethodGet, "/history?userId=user-1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Chats        []chatmodel.Summary `json:"chats"`
		MessageCount int                 `json:"messageCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(body.Chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(body.Chats))
	}
	if body.MessageCount != 1 {
		t.Fatalf("expected messageCount=1, got %d", body.MessageCount)
	}
}

func TestListHistoryMissingUser(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestDeleteHistory(t *testing.T) {
	r, store := setupRouter()
	conv, _ := store.Create(context.Background(), "user-1", "bye")

	req := httptest.NewRequest(http.MethodDelete, "/history?id="+conv.ID+"&userId=user-1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if !body["success"] {
		t.Fatal("expected success=true")
	}

	summaries, _ := store.ListForUser(context.Background(), "user-1", 50)
	if len(summaries) != 0 {
		t.Fatalf("conversation not deleted, %d left", len(summaries))
	}
}

func TestDeleteHistoryIdempotent(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodDelete, "/history?id=never-existed&userId=user-1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown id, got %d", resp.Code)
	}

	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if !body["success"] {
		t.Fatal("expected the same success shape for unknown ids")
	}
}

func TestDeleteHistoryMissingParams(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodDelete, "/history?id=some-id", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestDeleteHistoryForeignOwnerLooksIdentical(t *testing.T) {
	r, store := setupRouter()
	conv, _ := store.Create(context.Background(), "user-1", "private")

	req := httptest.NewRequest(http.MethodDelete, "/history?id="+conv.ID+"&userId=user-2", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	// And the conversation must survive untouched.
	if _, err := store.Get(context.Background(), conv.ID, "user-1"); err != nil {
		t.Fatalf("foreign delete mutated the conversation: %v", err)
	}
}
